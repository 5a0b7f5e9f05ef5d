package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/yaffatrack/internal/metrics"
)

// Request is a JSON RPC request envelope
type Request struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response is a JSON RPC response envelope with the result left raw
type Response struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Error is a JSON RPC error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Caller issues JSON RPC calls over the endpoint pool with retries and backoff
type Caller struct {
	pool   *Pool
	logger zerolog.Logger
}

// NewCaller creates a new Caller on top of the given pool
func NewCaller(pool *Pool, logger zerolog.Logger) *Caller {
	return &Caller{
		pool:   pool,
		logger: logger.With().Str("component", "rpc_caller").Logger(),
	}
}

// Call invokes a JSON RPC method and unmarshals the result into out.
// A null result with no error means the requested entity does not exist:
// out is left untouched and (false, nil) is returned.
func (c *Caller) Call(ctx context.Context, method string, params []interface{}, out interface{}) (bool, error) {
	const maxRetries = 5
	baseDelay := 250 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff, capped
			delay := baseDelay * time.Duration(1<<(attempt-1))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				metrics.RecordRPCRequest("cancelled")
				return false, ctx.Err()
			}
		}

		found, err := c.callOnce(ctx, method, params, out)
		if err == nil {
			metrics.RecordRPCRequest("success")
			return found, nil
		}
		lastErr = err

		c.logger.Warn().
			Err(err).
			Str("method", method).
			Int("attempt", attempt+1).
			Msg("RPC call failed")

		// Protocol-level errors are deterministic, retrying won't help
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			break
		}
	}

	metrics.RecordRPCRequest("failed")
	return false, fmt.Errorf("%s failed: %w", method, lastErr)
}

func (c *Caller) callOnce(ctx context.Context, method string, params []interface{}, out interface{}) (bool, error) {
	endpoint, err := c.pool.Next(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get RPC endpoint: %w", err)
	}

	body, err := json.Marshal(Request{
		Jsonrpc: "2.0",
		ID:      "yaffatrack",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := endpoint.client.Do(httpReq)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL)
		metrics.RecordRPCRequest("error")
		return false, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		c.pool.SetCooldown(endpoint.URL, 5*time.Minute)
		metrics.RecordRPCRequest("rate_limited")
		return false, fmt.Errorf("rate limited by endpoint %s: status %d", endpoint.URL, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.pool.MarkUnhealthy(endpoint.URL)
		return false, fmt.Errorf("unexpected status code from %s: %d", endpoint.URL, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response body: %w", err)
	}

	var rpcResponse Response
	if err := json.Unmarshal(respBody, &rpcResponse); err != nil {
		return false, fmt.Errorf("failed to unmarshal RPC response: %w", err)
	}

	if rpcResponse.Error != nil {
		return false, fmt.Errorf("RPC error from %s: %w", endpoint.URL, rpcResponse.Error)
	}

	c.pool.MarkHealthy(endpoint.URL)

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint.URL).
		Dur("duration", time.Since(start)).
		Msg("RPC call succeeded")

	// A null result is a valid "not found" answer, e.g. for getTransaction
	if len(rpcResponse.Result) == 0 || string(rpcResponse.Result) == "null" {
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal(rpcResponse.Result, out); err != nil {
			return false, fmt.Errorf("failed to unmarshal RPC result: %w", err)
		}
	}

	return true, nil
}
