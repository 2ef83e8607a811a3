package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// idemPending marks a key whose order is still being created.
const idemPending = "pending"

// Idempotency maps Idempotency-Key headers to created order ids. A key is claimed with SETNX
// before the order is written, so two requests with the same key never both create.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Reserve claims key. When the key is already taken, orderID is the stored order, or empty
// while the first request is still running.
func (i *Idempotency) Reserve(ctx context.Context, key string) (orderID string, reserved bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	ok, err := i.rdb.SetNX(ctx, k, idemPending, TTLIdempotency).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return i.Reserve(ctx, key)
	}
	if err != nil {
		return "", false, err
	}
	if v == idemPending {
		return "", false, nil
	}
	return v, false, nil
}

// Complete overwrites the placeholder with the created order id.
func (i *Idempotency) Complete(ctx context.Context, key, orderID string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

// Release drops a placeholder after a failed create so the client may retry with the same key.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Err()
}
