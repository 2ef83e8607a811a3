package fulfillment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

var hundred = decimal.NewFromInt(100)

type totals struct {
	total     decimal.Decimal
	fee       decimal.Decimal
	final     decimal.Decimal
	down      decimal.NullDecimal
	remaining decimal.NullDecimal
}

// priceOrder derives the order amounts from snapshotted line prices.
//
// Home delivery adds the fee to the total. Store pickup has no fee; a down payment, when given,
// is what the customer pays now and the rest stays outstanding.
func priceOrder(items []orders.OrderItem, in CreateOrderInput, defaultFee decimal.Decimal) (totals, error) {
	var t totals
	for _, it := range items {
		t.total = t.total.Add(it.LineTotal())
	}

	switch in.DeliveryMethod {
	case orders.DeliveryHome:
		t.fee = defaultFee
		if in.DeliveryFee.Valid {
			t.fee = in.DeliveryFee.Decimal
		}
		t.final = t.total.Add(t.fee)
	case orders.DeliveryPickup:
		t.fee = decimal.Zero
		t.final = t.total
	}

	if in.DownPayment.Valid {
		down := in.DownPayment.Decimal
		gross := t.total.Add(t.fee)
		if down.IsNegative() || down.GreaterThan(gross) {
			return totals{}, orders.InvalidInput("down payment %s outside 0..%s", down.StringFixed(2), gross.StringFixed(2))
		}
		t.down = decimal.NewNullDecimal(down)
		t.remaining = decimal.NewNullDecimal(gross.Sub(down))
		if in.DeliveryMethod == orders.DeliveryPickup {
			t.final = down
		}
	}
	return t, nil
}

// installmentPlan returns nil for non-installment payment methods. The financed amount is
// everything owed after the down payment, spread evenly with simple interest.
func installmentPlan(orderID string, method orders.PaymentMethod, t totals, rate decimal.NullDecimal, start time.Time) *orders.InstallmentPlan {
	months := method.InstallmentMonths()
	if months == 0 {
		return nil
	}
	interest := decimal.Zero
	if rate.Valid {
		interest = rate.Decimal
	}
	gross := t.total.Add(t.fee)
	down := decimal.Zero
	if t.down.Valid {
		down = t.down.Decimal
	}
	financed := gross.Sub(down).Mul(decimal.NewFromInt(1).Add(interest.Div(hundred)))
	return &orders.InstallmentPlan{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		TotalAmount:    gross,
		DownPayment:    down,
		MonthlyAmount:  financed.Div(decimal.NewFromInt(int64(months))).Round(2),
		NumberOfMonths: months,
		InterestRate:   interest,
		StartDate:      start,
		EndDate:        start.AddDate(0, months, 0),
	}
}
