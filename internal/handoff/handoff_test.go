package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

func sampleOrder() orders.Order {
	return orders.Order{
		ID:              "o1",
		OrderNumber:     "ORD-20260101-abcd1234",
		DeliveryAddress: "12 Nile St",
		DeliveryPhone:   "0100",
		Governorate:     "Giza",
		PaymentMethod:   orders.PaymentCashOnDelivery,
		Notes:           "ring twice",
		TotalAmount:     decimal.NewFromInt(300),
		DeliveryFee:     decimal.NewFromInt(30),
		FinalAmount:     decimal.NewFromInt(330),
		Customer:        &orders.Customer{ID: "c1", Name: "Mona", Phone: "0111"},
		Items: []orders.OrderItem{
			{ProductID: "p1", ProductName: "Kettle", Quantity: 3, Price: decimal.NewFromInt(100)},
		},
	}
}

type recordedMsg struct {
	topic   string
	key     string
	value   []byte
	headers []kafkago.Header
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []recordedMsg
	err  error
}

func (f *fakePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, recordedMsg{topic: topic, key: string(key), value: value, headers: headers})
	return nil
}

func TestBuildPayload(t *testing.T) {
	p := BuildPayload(sampleOrder())

	assert.Equal(t, "ORD-20260101-abcd1234", p.OrderNumber)
	assert.Equal(t, "Mona", p.CustomerName)
	assert.Equal(t, "0100", p.CustomerPhone, "delivery phone wins over profile phone")
	assert.Equal(t, "300.00", p.Subtotal)
	assert.Equal(t, "30.00", p.DeliveryFee)
	assert.Equal(t, "330.00", p.Total)
	require.Len(t, p.Items, 1)
	assert.Equal(t, Line{Name: "Kettle", Quantity: 3, UnitPrice: "100.00", LineTotal: "300.00"}, p.Items[0])
	assert.Equal(t, CourierInstructions, p.Instructions)
}

func TestComposeStaffMessage(t *testing.T) {
	o := sampleOrder()
	o.DownPayment = decimal.NewNullDecimal(decimal.NewFromInt(100))
	o.RemainingAmount = decimal.NewNullDecimal(decimal.NewFromInt(200))

	msg := ComposeStaffMessage(o, orders.DeliveryStaff{ID: "s1", Name: "Karim"})

	for _, want := range []string{
		"Hello Karim",
		"Order: ORD-20260101-abcd1234",
		"Address: 12 Nile St, Giza",
		"Kettle x3 @ 100.00 = 300.00",
		"Delivery fee: 30.00",
		"Down payment: 100.00",
		"Remaining: 200.00",
		"Total due: 330.00",
		"Notes: ring twice",
		"1. Verify the customer's name",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestDispatcherPublishesEnvelopes(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, "order-api", nil, nil)
	o := sampleOrder()

	require.NoError(t, d.DispatchOrder(context.Background(), o))
	require.NoError(t, d.NotifyStaff(context.Background(), o, orders.DeliveryStaff{ID: "s1", Name: "Karim"}))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, orders.TopicDispatch, pub.msgs[0].topic)
	assert.Equal(t, orders.TopicStaffNotify, pub.msgs[1].topic)
	assert.Equal(t, "o1", pub.msgs[0].key)

	var ev orders.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &ev))
	assert.Equal(t, orders.EventDeliveryDispatch, ev.EventType)
	assert.Equal(t, 1, ev.EventVersion)
	assert.Equal(t, "order-api", ev.Producer)
	assert.Equal(t, "o1", ev.CorrelationID)
	payload, err := kafkax.UnwrapPayload[Payload](ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, "330.00", payload.Total)
	assert.Equal(t, orders.EventDeliveryDispatch, kafkax.HeaderValue(kafkago.Message{Headers: pub.msgs[0].headers}, kafkax.HeaderEventType))

	require.NoError(t, json.Unmarshal(pub.msgs[1].value, &ev))
	staff, err := kafkax.UnwrapPayload[StaffNotificationPayload](ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, "s1", staff.StaffID)
	assert.Contains(t, staff.Message, "Hello Karim")
}

func TestDispatcherTripsBreaker(t *testing.T) {
	pub := &fakePublisher{err: errors.New("inbox full")}
	cb := NewBreaker(BreakerConfig{Name: "test", Timeout: time.Minute, FailureThreshold: 2}, nil)
	d := NewDispatcher(pub, "order-api", cb, nil)

	for i := 0; i < 2; i++ {
		err := d.DispatchOrder(context.Background(), sampleOrder())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	err := d.DispatchOrder(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memDedup) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[id], nil
}

func (m *memDedup) Mark(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = true
	return nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func dispatchMessage(t *testing.T, eventID string) kafkago.Message {
	t.Helper()
	ev := orders.Envelope{
		EventID:       eventID,
		EventType:     orders.EventDeliveryDispatch,
		EventVersion:  1,
		CorrelationID: "o1",
		Payload:       mustJSON(t, BuildPayload(sampleOrder())),
	}
	return kafkago.Message{Value: mustJSON(t, ev)}
}

func TestForwarderPostsOncePerEvent(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		keys  []string
		body  Payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL, srv.Client(), &memDedup{seen: map[string]bool{}}, nil, nil)
	m := dispatchMessage(t, "ev-1")

	require.NoError(t, f.Handle(context.Background(), m))
	require.NoError(t, f.Handle(context.Background(), m))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"ev-1"}, keys)
	assert.Equal(t, "ORD-20260101-abcd1234", body.OrderNumber)
}

func TestForwarderStatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "accepted", status: http.StatusOK},
		{name: "bad request is skipped", status: http.StatusBadRequest},
		{name: "server error is retried", status: http.StatusBadGateway, wantErr: true},
		{name: "throttled is retried", status: http.StatusTooManyRequests, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			dedup := &memDedup{seen: map[string]bool{}}
			f := NewForwarder(srv.URL, srv.Client(), dedup, nil, nil)

			err := f.Handle(context.Background(), dispatchMessage(t, "ev-x"))
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, dedup.seen["ev-x"])
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestForwarderSkipsForeignAndMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("carrier must not be called")
	}))
	defer srv.Close()
	f := NewForwarder(srv.URL, srv.Client(), nil, nil, nil)

	assert.NoError(t, f.Handle(context.Background(), kafkago.Message{Value: []byte("{not json")}))

	other := orders.Envelope{EventID: "e", EventType: orders.EventStaffNotification, Payload: []byte(`{}`)}
	assert.NoError(t, f.Handle(context.Background(), kafkago.Message{Value: mustJSON(t, other)}))

	// a foreign event-type header wins over the body
	m := dispatchMessage(t, "ev-h")
	m.Headers = kafkax.EventHeaders(orders.EventStaffNotification, 1)
	assert.NoError(t, f.Handle(context.Background(), m))
}
