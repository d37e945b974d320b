package inventory

import "github.com/shopspring/decimal"

// Stock quantities carry at most three fractional digits. Both operands and
// results are normalized at every write boundary so repeated small receipts
// cannot accumulate drift.

const stockScale = 3

// Round3 normalizes a quantity to the stock scale (half away from zero).
func Round3(d decimal.Decimal) decimal.Decimal {
	return d.Round(stockScale)
}

// applyDelta computes the new stock for one item. It rounds the operands,
// applies the signed change, rounds again, and clamps at zero on
// subtraction when the policy demands it. The returned signedDelta is the
// change actually applied after clamping, so qtyAfter-qtyBefore always
// equals signedDelta exactly.
func applyDelta(current, qty decimal.Decimal, dir Direction, policy Policy) (newStock, signedDelta decimal.Decimal, err error) {
	before := Round3(current)
	change := Round3(qty)
	if dir == DirectionSubtract {
		change = change.Neg()
	}
	after := Round3(before.Add(change))
	if after.IsNegative() {
		if !policy.ClampAtZero {
			return decimal.Decimal{}, decimal.Decimal{}, ErrInsufficientStock
		}
		after = decimal.Zero
	}
	return after, after.Sub(before), nil
}
