package accumulator

import "math/big"

// Delta is a tagged signed magnitude, replacing the "prepend a minus sign
// to a decimal string" pattern with a type the accumulator can apply
// without ever parsing a sign out of text.
type Delta struct {
	sign      int8
	magnitude *big.Int
}

// Increase returns a positive delta of magnitude.
func Increase(magnitude *big.Int) Delta { return Delta{sign: 1, magnitude: magnitude} }

// Decrease returns a negative delta of magnitude.
func Decrease(magnitude *big.Int) Delta { return Delta{sign: -1, magnitude: magnitude} }

// Zero is a no-op delta, used when an event touches a key without changing
// its value (not currently needed by any routing rule, kept for symmetry).
func Zero() Delta { return Delta{sign: 0, magnitude: big.NewInt(0)} }

// apply computes max(0, prev + delta), saturating at zero rather than
// going negative.
func (d Delta) apply(prev *big.Int) *big.Int {
	switch d.sign {
	case 1:
		return new(big.Int).Add(prev, d.magnitude)
	case -1:
		next := new(big.Int).Sub(prev, d.magnitude)
		if next.Sign() < 0 {
			return big.NewInt(0)
		}
		return next
	default:
		return new(big.Int).Set(prev)
	}
}
