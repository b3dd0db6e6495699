package api

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits in a KING base unit
const Decimals = 18

var unit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil))

// ParseAmount converts a decimal base-unit string into whole tokens.
// Negative, fractional or non-numeric input is rejected.
func ParseAmount(raw string) (float64, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v.ToBig()), unit).Float64()
	return f, nil
}
