package lottery

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePick(t *testing.T) {
	testCases := []struct {
		name        string
		values      []int
		cardinality int
		max         int
		wantErr     bool
	}{
		{"valid main", []int{1, 20, 35, 49, 50}, 5, 50, false},
		{"valid bonus", []int{1, 12}, 2, 12, false},
		{"too few", []int{1, 2, 3, 4}, 5, 50, true},
		{"too many", []int{1, 2, 3, 4, 5, 6}, 5, 50, true},
		{"empty", nil, 5, 50, true},
		{"zero value", []int{0, 2, 3, 4, 5}, 5, 50, true},
		{"negative value", []int{-1, 2, 3, 4, 5}, 5, 50, true},
		{"above max", []int{1, 2, 3, 4, 51}, 5, 50, true},
		{"duplicate", []int{7, 7, 3, 4, 5}, 5, 50, true},
		{"bonus above max", []int{1, 13}, 2, 12, true},
		{"bonus duplicate", []int{4, 4}, 2, 12, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePick(tc.values, tc.cardinality, tc.max, PickMain)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidatePick(%v) error = %v, wantErr %v", tc.values, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPick) {
				t.Errorf("error should wrap ErrInvalidPick, got %v", err)
			}
		})
	}
}

func TestValidatePick_KindInError(t *testing.T) {
	err := ValidatePick([]int{1, 1}, 2, 12, PickBonus)
	if err == nil {
		t.Fatal("expected error for duplicate bonus pick")
	}
	if got := err.Error(); !strings.Contains(got, string(PickBonus)) {
		t.Errorf("error %q should name the bonus pick", got)
	}
}
