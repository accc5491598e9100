package lottery

import (
	"fmt"
	"math/big"
	"sort"
)

// ResolveOutcome converts a batch of random words into the canonical winning
// picks. Pure and deterministic: identical word sequences always yield the same
// sorted, duplicate-free picks.
//
// Each of the first MainCount words maps to a main number via word mod MainMax
// plus one. If the value is already taken, the same word's value is walked
// forward cyclically (value mod max plus one) until a free value is found; a
// word is never reused for a second number. The loop terminates because at most
// MainCount of MainMax values (and BonusCount of BonusMax) are ever taken. The
// remaining BonusCount words map to bonus numbers the same way.
func ResolveOutcome(words []*big.Int, p Params) (main, bonus []int, err error) {
	if len(words) != p.WordCount() {
		return nil, nil, fmt.Errorf("%w: want %d words, got %d", ErrMalformedRandomness, p.WordCount(), len(words))
	}
	for i, w := range words {
		if w == nil || w.Sign() < 0 {
			return nil, nil, fmt.Errorf("%w: word %d is not an unsigned integer", ErrMalformedRandomness, i)
		}
	}

	main = drawUnique(words[:p.MainCount], p.MainMax)
	bonus = drawUnique(words[p.MainCount:], p.BonusMax)

	sort.Ints(main)
	sort.Ints(bonus)
	return main, bonus, nil
}

// drawUnique maps each word to a distinct value in [1, max] using the forward
// rejection walk.
func drawUnique(words []*big.Int, max int) []int {
	taken := make(map[int]bool, len(words))
	values := make([]int, 0, len(words))
	mod := big.NewInt(int64(max))
	for _, w := range words {
		n := int(new(big.Int).Mod(w, mod).Int64()) + 1
		for taken[n] {
			n = n%max + 1
		}
		taken[n] = true
		values = append(values, n)
	}
	return values
}
