package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCaller(urls []string) *Caller {
	return NewCaller(NewPool(urls, zerolog.Nop()), zerolog.Nop())
}

func TestCallSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.Jsonrpc)
		assert.Equal(t, "getSlot", req.Method)

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"yaffatrack","result":{"value":42}}`))
	}))
	defer server.Close()

	caller := newTestCaller([]string{server.URL})

	var out struct {
		Value int `json:"value"`
	}
	found, err := caller.Call(context.Background(), "getSlot", nil, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, out.Value)
}

func TestCallNullResultMeansNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"yaffatrack","result":null}`))
	}))
	defer server.Close()

	caller := newTestCaller([]string{server.URL})

	var out map[string]interface{}
	found, err := caller.Call(context.Background(), "getTransaction", nil, &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, out)
}

func TestCallDoesNotRetryProtocolErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"yaffatrack","error":{"code":-32602,"message":"invalid params"}}`))
	}))
	defer server.Close()

	caller := newTestCaller([]string{server.URL})

	_, err := caller.Call(context.Background(), "getTransaction", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCallRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	caller := newTestCaller([]string{"http://127.0.0.1:0"})

	_, err := caller.Call(ctx, "getSlot", nil, nil)
	assert.Error(t, err)
}

func TestPoolRoundRobin(t *testing.T) {
	pool := NewPool([]string{"http://a", "http://b"}, zerolog.Nop())

	first, err := pool.Next(context.Background())
	require.NoError(t, err)
	second, err := pool.Next(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.URL, second.URL)
	assert.Equal(t, 2, pool.HealthyCount())
}

func TestPoolCooldownAndRecovery(t *testing.T) {
	pool := NewPool([]string{"http://a", "http://b"}, zerolog.Nop())

	pool.SetCooldown("http://a", time.Minute)
	assert.Equal(t, 1, pool.HealthyCount())

	// A cooled-down endpoint is skipped by rotation
	for i := 0; i < 3; i++ {
		endpoint, err := pool.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "http://b", endpoint.URL)
	}

	pool.MarkHealthy("http://a")
	assert.Equal(t, 2, pool.HealthyCount())
}

func TestPoolMarkUnhealthy(t *testing.T) {
	pool := NewPool([]string{"http://a"}, zerolog.Nop())

	pool.MarkUnhealthy("http://a")
	assert.Equal(t, 0, pool.HealthyCount())

	// Unknown URLs are ignored
	pool.MarkUnhealthy("http://nope")
	pool.MarkHealthy("http://a")
	assert.Equal(t, 1, pool.HealthyCount())
}
