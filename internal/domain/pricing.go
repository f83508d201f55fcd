package domain

const (
	// BulkDiscountMinServices is the total quantity that unlocks the bulk discount.
	BulkDiscountMinServices = 3
	// BulkDiscountRateBP is the bulk discount in basis points (10%).
	BulkDiscountRateBP = 1000
	// DepositRateBP is the upfront share of the total in basis points (30%).
	DepositRateBP = 3000

	basisPoints = 10000
)

// PricedLine is the minimum pricing input for one order line.
type PricedLine struct {
	UnitPrice int64
	Quantity  int
}

// CalculateOrderTotals prices order lines in centavos. The remainder absorbs rounding so that
// Deposit + Remainder always equals Total.
func CalculateOrderTotals(lines []PricedLine) OrderTotals {
	var subtotal int64
	var quantity int
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			continue
		}
		subtotal += line.UnitPrice * int64(line.Quantity)
		quantity += line.Quantity
	}

	totals := OrderTotals{Subtotal: subtotal}
	if quantity >= BulkDiscountMinServices {
		totals.DiscountRate = BulkDiscountRateBP
		totals.Discount = applyRate(subtotal, BulkDiscountRateBP)
	}
	totals.Total = subtotal - totals.Discount
	totals.Deposit = applyRate(totals.Total, DepositRateBP)
	totals.Remainder = totals.Total - totals.Deposit
	return totals
}

// applyRate multiplies amount by a basis-point rate rounding half up.
func applyRate(amount int64, rateBP int) int64 {
	if amount <= 0 || rateBP <= 0 {
		return 0
	}
	return (amount*int64(rateBP) + basisPoints/2) / basisPoints
}
