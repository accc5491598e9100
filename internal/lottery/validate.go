package lottery

import "fmt"

// PickKind names which pick failed validation so callers can report it.
type PickKind string

const (
	PickMain  PickKind = "main numbers"
	PickBonus PickKind = "bonus numbers"
)

// ValidatePick checks a pick against the cardinality, range and uniqueness
// rules. Pure and deterministic. The error distinguishes the pick kind but not
// the exact sub-reason.
func ValidatePick(values []int, cardinality, max int, kind PickKind) error {
	if len(values) != cardinality {
		return fmt.Errorf("%w: %s: want exactly %d values", ErrInvalidPick, kind, cardinality)
	}
	seen := make(map[int]bool, len(values))
	for _, v := range values {
		if v < 1 || v > max {
			return fmt.Errorf("%w: %s: values must be between 1 and %d", ErrInvalidPick, kind, max)
		}
		if seen[v] {
			return fmt.Errorf("%w: %s: values must be unique", ErrInvalidPick, kind)
		}
		seen[v] = true
	}
	return nil
}

// validatePicks applies the configured rules to a ticket's main and bonus picks.
func (p Params) validatePicks(main, bonus []int) error {
	if err := ValidatePick(main, p.MainCount, p.MainMax, PickMain); err != nil {
		return err
	}
	return ValidatePick(bonus, p.BonusCount, p.BonusMax, PickBonus)
}
