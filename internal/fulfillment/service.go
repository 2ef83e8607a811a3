// Package fulfillment drives an order from checkout to final disposition. Every state change
// and its stock and ledger effects commit in one transaction; events, carrier handoff and
// courier messages are sent after commit and never fail the operation.
package fulfillment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/capital"
	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

const DefaultDeliveryFee = 30

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

// Dispatcher is satisfied by *handoff.Dispatcher.
type Dispatcher interface {
	DispatchOrder(ctx context.Context, o orders.Order) error
	NotifyStaff(ctx context.Context, o orders.Order, staff orders.DeliveryStaff) error
}

type Options struct {
	// DefaultDeliveryFee applies to home delivery when the request carries no fee.
	DefaultDeliveryFee decimal.NullDecimal
	ServiceName        string

	Publisher  Publisher
	Dispatcher Dispatcher
	Locker     Locker
	Metrics    *metrics.Metrics
}

type Service struct {
	store      orders.Store
	inventory  *inventory.Ledger
	capital    *capital.Ledger
	log        *zap.Logger
	pub        Publisher
	dispatcher Dispatcher
	locker     Locker
	metrics    *metrics.Metrics
	fee        decimal.Decimal
	service    string
	now        func() time.Time
	newID      func() string
}

func NewService(store orders.Store, inv *inventory.Ledger, capl *capital.Ledger, logger *zap.Logger, opts Options) *Service {
	s := &Service{
		store:      store,
		inventory:  inv,
		capital:    capl,
		log:        logx.OrNop(logger),
		pub:        opts.Publisher,
		dispatcher: opts.Dispatcher,
		locker:     opts.Locker,
		metrics:    opts.Metrics,
		fee:        decimal.NewFromInt(DefaultDeliveryFee),
		service:    opts.ServiceName,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	if opts.DefaultDeliveryFee.Valid {
		s.fee = opts.DefaultDeliveryFee.Decimal
	}
	if s.locker == nil {
		s.locker = NewKeyedMutex()
	}
	if s.service == "" {
		s.service = "order-api"
	}
	return s
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// ---- best-effort side effects ----

func (s *Service) emit(ctx context.Context, eventType string, o orders.Order, payload any) {
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.sideEffectFailed("events", o.ID, err)
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.service,
		CorrelationID: o.ID,
		Payload:       body,
	}
	if id, ok := ctx.Value(traceKey{}).(string); ok {
		ev.TraceID = id
	}
	value, err := json.Marshal(ev)
	if err != nil {
		s.sideEffectFailed("events", o.ID, err)
		return
	}
	if err := s.pub.Publish(orders.TopicFor(eventType), orders.PartitionKey(o.ID), value, kafkax.EventHeaders(eventType, 1)...); err != nil {
		s.sideEffectFailed("events", o.ID, err)
	}
}

func (s *Service) emitStatus(ctx context.Context, o orders.Order) {
	s.metrics.Transition(string(o.Status))
	s.emit(ctx, orders.StatusEvent(o.Status), o, orders.NewStatusPayload(o))
}

func (s *Service) sideEffectFailed(channel, orderID string, err error) {
	s.metrics.SideEffectFailed(channel)
	s.log.Warn("best-effort side effect failed",
		zap.String("channel", channel),
		zap.String("order_id", orderID),
		zap.Error(err),
	)
}

type traceKey struct{}

// WithTraceID tags events emitted under ctx with a request id.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}
