package lottery

import "time"

// WindowState reports whether a draw's sales window is open.
type WindowState string

const (
	WindowActive WindowState = "active"
	WindowClosed WindowState = "closed"
)

// WindowStateAt derives the window state of a draw at the given instant.
// The window is active for start <= now <= end, inclusive on both ends.
func WindowStateAt(d Draw, now time.Time) WindowState {
	if now.Before(d.WindowStart) || now.After(d.WindowEnd) {
		return WindowClosed
	}
	return WindowActive
}

// resolutionPermitted reports whether a resolution request is allowed: strictly
// after the window end, never at the boundary instant.
func resolutionPermitted(d Draw, now time.Time) bool {
	return now.After(d.WindowEnd)
}
