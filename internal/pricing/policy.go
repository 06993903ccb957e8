package pricing

import "github.com/shopspring/decimal"

const basisPointsPerUnit = 10000

// FeePolicy is the platform fee schedule. The calculator only aggregates what
// the policy returns per ticket line.
type FeePolicy interface {
	LineFee(subtotalMinor int64, qty int) int64
}

// FlatPlusPercent charges a flat amount per line plus a percentage of the line
// subtotal, expressed in basis points (150 = 1.5%).
type FlatPlusPercent struct {
	FlatMinor  int64
	PercentBps int64
}

// LineFee rounds the percentage part half away from zero to a whole minor unit.
func (p FlatPlusPercent) LineFee(subtotalMinor int64, qty int) int64 {
	if qty <= 0 || subtotalMinor < 0 {
		return 0
	}
	pct := decimal.NewFromInt(subtotalMinor).
		Mul(decimal.NewFromInt(p.PercentBps)).
		Div(decimal.NewFromInt(basisPointsPerUnit)).
		Round(0)
	return p.FlatMinor + pct.IntPart()
}

// NoFees is a policy that never charges.
type NoFees struct{}

func (NoFees) LineFee(int64, int) int64 { return 0 }
