package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memIdempotency mirrors the SETNX placeholder semantics of redisx.Idempotency.
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemIdempotency() *memIdempotency { return &memIdempotency{keys: map[string]string{}} }

func (m *memIdempotency) Reserve(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		m.keys[key] = "pending"
		return "", true, nil
	}
	if v == "pending" {
		return "", false, nil
	}
	return v, false, nil
}

func (m *memIdempotency) Complete(_ context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memIdempotency) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	return v, ok
}

func postWithKey(t *testing.T, r http.Handler, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/orders", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func saleCount(t *testing.T, r http.Handler, productID string) int {
	t.Helper()
	rec := do(t, r, http.MethodGet, "/products/"+productID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []logResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	return len(logs)
}

func TestIdempotencyKeyReplaysOrder(t *testing.T) {
	idem := newMemIdempotency()
	r := newIdempotentRouter(t, idem)

	rec := postWithKey(t, r, "k1", orderBody("p1", 2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first orderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.Idempotent)

	stored, ok := idem.get("k1")
	require.True(t, ok)
	assert.Equal(t, first.ID, stored)

	rec = postWithKey(t, r, "k1", orderBody("p1", 2))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again orderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.True(t, again.Idempotent)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, saleCount(t, r, "p1"))
}

func TestIdempotencyKeyInFlightIsRefused(t *testing.T) {
	idem := newMemIdempotency()
	idem.keys["k2"] = "pending"
	r := newIdempotentRouter(t, idem)

	rec := postWithKey(t, r, "k2", orderBody("p1", 1))
	require.Equal(t, http.StatusConflict, rec.Code)
	var ae apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ae))
	assert.Equal(t, CodeIdempotencyInProgress, ae.Code)
	assert.Equal(t, 0, saleCount(t, r, "p1"))
}

func TestIdempotencyKeyReleasedAfterFailure(t *testing.T) {
	idem := newMemIdempotency()
	r := newIdempotentRouter(t, idem)

	rec := postWithKey(t, r, "k3", orderBody("p1", 99))
	require.Equal(t, http.StatusConflict, rec.Code)
	_, ok := idem.get("k3")
	assert.False(t, ok)

	rec = postWithKey(t, r, "k3", orderBody("p1", 1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestIdempotencyKeyConcurrentCreatesOnce(t *testing.T) {
	idem := newMemIdempotency()
	r := newIdempotentRouter(t, idem)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := postWithKey(t, r, "k4", orderBody("p2", 1))
			mu.Lock()
			codes[rec.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, codes[http.StatusCreated])
	assert.Equal(t, 7, codes[http.StatusOK]+codes[http.StatusConflict])
	assert.Equal(t, 1, saleCount(t, r, "p2"))
}
