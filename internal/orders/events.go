package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated        = "OrderCreated"
	EventOrderConfirmed      = "OrderConfirmed"
	EventOrderOutForDelivery = "OrderOutForDelivery"
	EventOrderDelivered      = "OrderDelivered"
	EventOrderRejected       = "OrderRejected"
	EventOrderCancelled      = "OrderCancelled"
	EventDeliveryDispatch    = "DeliveryDispatch"
	EventStaffNotification   = "StaffNotification"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// ---- Payload tipe per event ----

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Price     string `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	CustomerID     string      `json:"customer_id"`
	VendorID       string      `json:"vendor_id"`
	Items          []ItemPrice `json:"items"`
	TotalAmount    string      `json:"total_amount"`
	FinalAmount    string      `json:"final_amount"`
	DeliveryMethod string      `json:"delivery_method"`
}

// OrderStatusPayload is shared by every lifecycle event after creation.
type OrderStatusPayload struct {
	OrderID         string `json:"order_id"`
	VendorID        string `json:"vendor_id"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"payment_status"`
	DeliveryStaffID string `json:"delivery_staff_id,omitempty"`
	FinalAmount     string `json:"final_amount"`
	Reason          string `json:"reason,omitempty"`
}

func NewStatusPayload(o Order) OrderStatusPayload {
	return OrderStatusPayload{
		OrderID:         o.ID,
		VendorID:        o.VendorID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		DeliveryStaffID: o.DeliveryStaffID,
		FinalAmount:     o.FinalAmount.StringFixed(2),
		Reason:          o.RejectionReason,
	}
}

func NewCreatedPayload(o Order) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, Price: it.Price.StringFixed(2)})
	}
	return OrderCreatedPayload{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		CustomerID:     o.CustomerID,
		VendorID:       o.VendorID,
		Items:          items,
		TotalAmount:    o.TotalAmount.StringFixed(2),
		FinalAmount:    o.FinalAmount.StringFixed(2),
		DeliveryMethod: string(o.DeliveryMethod),
	}
}

// StatusEvent maps a lifecycle status to the event announcing it.
func StatusEvent(s Status) string {
	switch s {
	case StatusPending:
		return EventOrderCreated
	case StatusConfirmed:
		return EventOrderConfirmed
	case StatusOutForDelivery:
		return EventOrderOutForDelivery
	case StatusDelivered:
		return EventOrderDelivered
	case StatusRejected:
		return EventOrderRejected
	case StatusCancelled:
		return EventOrderCancelled
	}
	return ""
}
