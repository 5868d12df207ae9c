package engine

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Pricing computes payout amounts from deposit amounts. All arithmetic runs on
// base-unit integers through fixed-point decimals; the final conversion back
// to an integer truncates toward zero so rounding always favors the reserve.
type Pricing struct {
	price decimal.Decimal // payout tokens per deposit token
	fee   decimal.Decimal // in [0, 1)
}

// NewPricing creates a pricing rule. price and fee must already be validated.
func NewPricing(price, fee decimal.Decimal) Pricing {
	return Pricing{price: price, fee: fee}
}

// PayoutAmount returns amountIn * price * (1 - fee), truncated to base units.
func (p Pricing) PayoutAmount(amountIn *big.Int) *big.Int {
	in := decimal.NewFromBigInt(amountIn, 0)
	out := in.Mul(p.price).Mul(decimal.NewFromInt(1).Sub(p.fee))
	return out.Truncate(0).BigInt()
}
