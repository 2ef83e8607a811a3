package handoff

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

// Dedup tracks envelopes already delivered to the carrier.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Forwarder consumes dispatch envelopes and posts their payload to the carrier intake.
type Forwarder struct {
	url    string
	client *http.Client
	dedup  Dedup
	cb     *Breaker
	log    *zap.Logger
}

func NewForwarder(url string, client *http.Client, dedup Dedup, cb *Breaker, logger *zap.Logger) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cb == nil {
		cb = NewBreaker(DefaultBreakerConfig("carrier-intake"), logger)
	}
	return &Forwarder{url: url, client: client, dedup: dedup, cb: cb, log: logx.OrNop(logger)}
}

// Handle is a kafka.Handler. Returning nil commits the offset, so malformed or refused
// envelopes are logged and skipped instead of blocking the partition.
func (f *Forwarder) Handle(ctx context.Context, m kafkago.Message) error {
	// header dulu, envelope lain tidak perlu di-decode
	if et := kafkax.HeaderValue(m, kafkax.HeaderEventType); et != "" && et != orders.EventDeliveryDispatch {
		return nil
	}
	var ev orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &ev); err != nil {
		f.log.Error("skip malformed envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if ev.EventType != orders.EventDeliveryDispatch {
		return nil
	}
	log := f.log.With(zap.String("event_id", ev.EventID), zap.String("order_id", ev.CorrelationID))

	if _, err := kafkax.UnwrapPayload[Payload](ev.Payload); err != nil {
		log.Error("skip undecodable dispatch payload", zap.Error(err))
		return nil
	}

	if f.dedup != nil {
		seen, err := f.dedup.Seen(ctx, ev.EventID)
		if err != nil {
			// dedup cuma optimasi; carrier juga dapat Idempotency-Key
			log.Warn("dedup lookup failed", zap.Error(err))
		}
		if seen {
			log.Debug("dispatch already forwarded")
			return nil
		}
	}

	var status int
	err := f.cb.Do(func() error {
		var err error
		status, err = f.post(ctx, ev)
		return err
	})
	if err != nil {
		return err
	}
	if status >= 400 {
		log.Error("carrier rejected dispatch", zap.Int("status", status))
		return nil
	}

	if f.dedup != nil {
		if err := f.dedup.Mark(ctx, ev.EventID); err != nil {
			log.Warn("dedup mark failed", zap.Error(err))
		}
	}
	log.Info("dispatch forwarded to carrier")
	return nil
}

// post reports carrier 4xx answers as a status, not an error, so they do not trip the breaker.
func (f *Forwarder) post(ctx context.Context, ev orders.Envelope) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(ev.Payload))
	if err != nil {
		return 0, fmt.Errorf("build carrier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", ev.EventID)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("carrier intake: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, fmt.Errorf("carrier intake: status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
