// Package amount converts between human-readable token amounts and base-unit
// integers. All settlement arithmetic happens on base units; human-readable
// decimals appear only at the boundaries (config, chat messages).
package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/bcxlabs/buybackd/internal/config"
)

// baseUnit is 10^TokenDecimals.
var baseUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(config.TokenDecimals), nil)

// FromTokens converts a whole-token count to base units.
func FromTokens(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), baseUnit)
}

// Format renders a base-unit amount as a human-readable decimal string.
func Format(units *big.Int) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -config.TokenDecimals).String()
}

// Parse converts a base-unit integer string back to *big.Int.
func Parse(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-unit integer", s)
	}
	return v, nil
}
