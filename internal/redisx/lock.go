package redisx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
)

var ErrLockNotObtained = errors.New("lock not obtained")

// Locker serialises work on one key across api replicas.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	log    *zap.Logger
}

func NewLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		log:    logx.OrNop(logger),
	}
}

// Lock waits up to the lock TTL for key. The lock is refreshed every ttl/2 until the
// returned func releases it, so holders may outlive the TTL.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	attempts := int(l.ttl / l.retry)
	key = fmt.Sprintf(KeyLock, key)
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.retry), attempts),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	stop := keepAlive(l.ttl/2, func(rctx context.Context) error {
		return lock.Refresh(rctx, l.ttl, nil)
	}, func(err error) {
		l.log.Warn("refresh lock", zap.String("key", key), zap.Error(err))
	})
	return func() {
		stop()
		// release pakai context baru, request ctx bisa sudah habis
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn("release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// keepAlive calls refresh every interval until stop is called. It gives up after a failed
// refresh; a lost lock cannot be refreshed back.
func keepAlive(interval time.Duration, refresh func(context.Context) error, onErr func(error)) (stop func()) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rctx, cancel := context.WithTimeout(context.Background(), interval)
				err := refresh(rctx)
				cancel()
				if err != nil {
					onErr(err)
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}
