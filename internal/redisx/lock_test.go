package redisx

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeepAliveRefreshesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, func(err error) { t.Errorf("unexpected refresh error: %v", err) })

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	stop()
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())

	// stop twice is harmless
	stop()
}

func TestKeepAliveGivesUpAfterFailedRefresh(t *testing.T) {
	var calls atomic.Int32
	lost := errors.New("lock not held")
	reported := make(chan error, 4)
	stop := keepAlive(5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return lost
	}, func(err error) { reported <- err })

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, lost)
	case <-time.After(time.Second):
		t.Fatal("refresh failure never reported")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	stop()
}
