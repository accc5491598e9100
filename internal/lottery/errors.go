package lottery

import "errors"

// Errors
var (
	ErrInvalidPick          = errors.New("invalid pick")
	ErrInsufficientPayment  = errors.New("payment does not match ticket price")
	ErrDrawNotActive        = errors.New("draw window is not active")
	ErrDrawStillActive      = errors.New("draw window is still active")
	ErrAlreadyRequested     = errors.New("randomness already requested for draw")
	ErrAlreadyCompleted     = errors.New("draw already completed")
	ErrMalformedRandomness  = errors.New("malformed randomness delivery")
	ErrDrawNotFound         = errors.New("draw not found")
	ErrTransferFailed       = errors.New("transfer failed")
	ErrUnauthorized         = errors.New("caller not authorized")
	ErrPaused               = errors.New("engine is paused")
	ErrNotPaused            = errors.New("engine is not paused")
	ErrWithdrawalBlocked    = errors.New("emergency withdrawal blocked while draw holds live funds")
	ErrRequestNotFound      = errors.New("randomness request not found")
	ErrTicketNotFound       = errors.New("ticket not found")
)
