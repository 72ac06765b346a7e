package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals are the derived amounts of a bill.
type Totals struct {
	Subtotal decimal.Decimal
	Total    decimal.Decimal
	Due      decimal.Decimal
}

// ComputeTotals derives subtotal, total and due from the raw fields of b:
//
//	subtotal = consultation + entry + room + medicine + lab + other
//	total    = subtotal - discount + tax
//	due      = total - paid - claim
//
// A negative due (overpayment) is returned as-is.
func ComputeTotals(b Bill) Totals {
	subtotal := decimal.Sum(b.ConsultationFee, b.EntryFee, b.RoomCharges,
		b.MedicineCharges, b.LabCharges, b.OtherCharges)
	total := subtotal.Sub(b.Discount).Add(b.Tax)
	due := total.Sub(b.PaidAmount).Sub(b.ClaimAmount)
	return Totals{Subtotal: subtotal, Total: total, Due: due}
}

// Recompute writes ComputeTotals(b) back into b.
func (b *Bill) Recompute() {
	t := ComputeTotals(*b)
	b.Subtotal = t.Subtotal
	b.TotalAmount = t.Total
	b.DueAmount = t.Due
}

// SumPayments adds up payment amounts.
func SumPayments(payments []*Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// ApplyPayments sets PaidAmount to the sum of payments, recomputes totals and
// derives the payment status: paid once the sum reaches the total, partial
// while it is positive. With no payments the status is left unchanged.
// PaymentDate is stamped with now whenever the sum reaches the total and
// cleared if it drops back below.
func ApplyPayments(b *Bill, payments []*Payment, now time.Time) {
	paid := SumPayments(payments)
	b.PaidAmount = paid
	b.Recompute()

	if len(payments) == 0 {
		return
	}
	switch {
	case paid.GreaterThanOrEqual(b.TotalAmount):
		at := now
		b.PaymentDate = &at
		b.PaymentStatus = StatusPaid
	case paid.IsPositive():
		b.PaymentStatus = StatusPartial
		b.PaymentDate = nil
	}
}

// ItemTotal is quantity x unit price.
func ItemTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// money rounds an input amount to two decimal places.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
