package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

type StaffNotificationPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	StaffID     string `json:"staff_id"`
	StaffName   string `json:"staff_name"`
	StaffPhone  string `json:"staff_phone"`
	Message     string `json:"message"`
}

// Dispatcher puts carrier payloads and courier briefs on the outbound topics.
type Dispatcher struct {
	pub      Publisher
	cb       *Breaker
	producer string
	log      *zap.Logger
	now      func() time.Time
}

func NewDispatcher(pub Publisher, producer string, cb *Breaker, logger *zap.Logger) *Dispatcher {
	if cb == nil {
		cb = NewBreaker(DefaultBreakerConfig("handoff-publish"), logger)
	}
	return &Dispatcher{
		pub:      pub,
		cb:       cb,
		producer: producer,
		log:      logx.OrNop(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) DispatchOrder(ctx context.Context, o orders.Order) error {
	return d.publish(ctx, orders.EventDeliveryDispatch, o.ID, BuildPayload(o))
}

func (d *Dispatcher) NotifyStaff(ctx context.Context, o orders.Order, staff orders.DeliveryStaff) error {
	return d.publish(ctx, orders.EventStaffNotification, o.ID, StaffNotificationPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		StaffID:     staff.ID,
		StaffName:   staff.Name,
		StaffPhone:  staff.Phone,
		Message:     ComposeStaffMessage(o, staff),
	})
}

func (d *Dispatcher) publish(ctx context.Context, eventType, orderID string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    d.now(),
		Producer:      d.producer,
		CorrelationID: orderID,
		Payload:       body,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	topic := orders.TopicFor(eventType)
	err = d.cb.Do(func() error {
		return d.pub.Publish(topic, orders.PartitionKey(orderID), value, kafkax.EventHeaders(eventType, ev.EventVersion)...)
	})
	if err != nil {
		return fmt.Errorf("publish %s for order %s: %w", eventType, orderID, err)
	}
	d.log.Debug("handoff published",
		zap.String("event_type", eventType),
		zap.String("event_id", ev.EventID),
		zap.String("order_id", orderID),
	)
	return nil
}
