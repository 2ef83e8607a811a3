// Package handoff turns orders into the messages couriers and the carrier intake consume.
package handoff

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

var CourierInstructions = []string{
	"Verify the customer's name and phone number before handing over the parcel.",
	"Let the customer inspect the goods; record ACCEPTED or REJECTED in the app.",
	"Collect only the amount shown as total due, or the delivery fee if the order is rejected.",
	"Do not leave the parcel unattended or with a third party without the customer's consent.",
}

type Line struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

// Payload is what the carrier intake receives for one home-delivery order.
type Payload struct {
	OrderID       string   `json:"order_id"`
	OrderNumber   string   `json:"order_number"`
	CustomerName  string   `json:"customer_name"`
	CustomerPhone string   `json:"customer_phone"`
	Address       string   `json:"address"`
	Governorate   string   `json:"governorate,omitempty"`
	Items         []Line   `json:"items"`
	Subtotal      string   `json:"subtotal"`
	DeliveryFee   string   `json:"delivery_fee"`
	Total         string   `json:"total"`
	Notes         string   `json:"notes,omitempty"`
	Instructions  []string `json:"instructions"`
}

func BuildPayload(o orders.Order) Payload {
	p := Payload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerPhone: o.DeliveryPhone,
		Address:       o.DeliveryAddress,
		Governorate:   o.Governorate,
		Items:         make([]Line, 0, len(o.Items)),
		Subtotal:      o.TotalAmount.StringFixed(2),
		DeliveryFee:   o.DeliveryFee.StringFixed(2),
		Total:         o.FinalAmount.StringFixed(2),
		Notes:         o.Notes,
		Instructions:  append([]string(nil), CourierInstructions...),
	}
	if o.Customer != nil {
		p.CustomerName = o.Customer.Name
		if p.CustomerPhone == "" {
			p.CustomerPhone = o.Customer.Phone
		}
	}
	for _, it := range o.Items {
		p.Items = append(p.Items, Line{
			Name:      it.ProductName,
			Quantity:  it.Quantity,
			UnitPrice: it.Price.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
		})
	}
	return p
}

// ComposeStaffMessage renders the plain-text brief sent to the assigned courier.
func ComposeStaffMessage(o orders.Order, staff orders.DeliveryStaff) string {
	p := BuildPayload(o)
	var b strings.Builder

	fmt.Fprintf(&b, "Hello %s, you have a new delivery.\n", staff.Name)
	fmt.Fprintf(&b, "Order: %s\n\n", o.OrderNumber)

	b.WriteString("Customer\n")
	fmt.Fprintf(&b, "  Name: %s\n", p.CustomerName)
	fmt.Fprintf(&b, "  Phone: %s\n", p.CustomerPhone)
	address := p.Address
	if p.Governorate != "" {
		address += ", " + p.Governorate
	}
	fmt.Fprintf(&b, "  Address: %s\n\n", address)

	b.WriteString("Items\n")
	for _, l := range p.Items {
		fmt.Fprintf(&b, "  - %s x%d @ %s = %s\n", l.Name, l.Quantity, l.UnitPrice, l.LineTotal)
	}

	b.WriteString("\nPayment\n")
	fmt.Fprintf(&b, "  Method: %s\n", o.PaymentMethod)
	fmt.Fprintf(&b, "  Subtotal: %s\n", p.Subtotal)
	fmt.Fprintf(&b, "  Delivery fee: %s\n", p.DeliveryFee)
	if o.DownPayment.Valid {
		fmt.Fprintf(&b, "  Down payment: %s\n", o.DownPayment.Decimal.StringFixed(2))
	}
	if o.RemainingAmount.Valid {
		fmt.Fprintf(&b, "  Remaining: %s\n", o.RemainingAmount.Decimal.StringFixed(2))
	}
	fmt.Fprintf(&b, "  Total due: %s\n", p.Total)

	if p.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", p.Notes)
	}

	b.WriteString("\nInstructions\n")
	for i, s := range p.Instructions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, s)
	}
	return b.String()
}
