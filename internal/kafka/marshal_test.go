package kafka

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}

	got, err := UnwrapPayload[payload](json.RawMessage(`{"order_id":"o1"}`))
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)

	_, err = UnwrapPayload[payload](json.RawMessage(`{"order_id":`))
	assert.ErrorContains(t, err, "decode payload")
}

func TestEventHeaders(t *testing.T) {
	m := kafka.Message{Headers: EventHeaders("OrderCreated", 1)}

	assert.Equal(t, "OrderCreated", HeaderValue(m, HeaderEventType))
	assert.Equal(t, "1", HeaderValue(m, HeaderEventVersion))
	assert.Empty(t, HeaderValue(m, "x-missing"))
}

func TestProducerPublishAfterClose(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, 1, nil)

	require.NoError(t, p.Publish("t", []byte("k"), []byte("v")))
	assert.ErrorIs(t, p.Publish("t", []byte("k"), []byte("v")), ErrInboxFull)

	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Publish("t", []byte("k"), []byte("v")), ErrProducerClosed)
}
