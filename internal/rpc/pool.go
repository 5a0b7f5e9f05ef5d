package rpc

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/yaffatrack/internal/metrics"
	"golang.org/x/time/rate"
)

// Pool rotates across RPC endpoints with per-endpoint rate limiting,
// health tracking and cooldown after upstream throttling.
type Pool struct {
	endpoints []*Endpoint
	current   int
	mutex     sync.Mutex
	logger    zerolog.Logger
}

// Endpoint is a single RPC endpoint with its own HTTP client and limiter
type Endpoint struct {
	URL     string
	client  *http.Client
	limiter *rate.Limiter

	mutex         sync.RWMutex
	healthy       bool
	cooldownUntil time.Time
}

// NewPool creates a new RPC pool over the given endpoint URLs
func NewPool(urls []string, logger zerolog.Logger) *Pool {
	endpoints := make([]*Endpoint, len(urls))

	for i, url := range urls {
		endpoints[i] = &Endpoint{
			URL: url,
			client: &http.Client{
				Timeout: 30 * time.Second,
			},
			// ~2 req/s per endpoint to stay under free tier limits
			limiter: rate.NewLimiter(rate.Limit(2.0), 5),
			healthy: true,
		}

		metrics.SetRPCEndpointHealth(url, true)
	}

	return &Pool{
		endpoints: endpoints,
		current:   rand.Intn(len(endpoints)),
		logger:    logger.With().Str("component", "rpc_pool").Logger(),
	}
}

// available reports whether the endpoint can take a request right now
func (e *Endpoint) available() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.healthy && time.Now().After(e.cooldownUntil)
}

// Next returns the next usable endpoint using round-robin. When every
// endpoint is rate limited it blocks on the current endpoint's limiter
// until a slot frees up or the context is cancelled.
func (p *Pool) Next(ctx context.Context) (*Endpoint, error) {
	p.mutex.Lock()
	start := p.current

	for attempts := 0; attempts < len(p.endpoints); attempts++ {
		endpoint := p.endpoints[p.current]
		p.current = (p.current + 1) % len(p.endpoints)

		if !endpoint.available() {
			p.logger.Debug().Str("endpoint", endpoint.URL).Msg("Endpoint unavailable, skipping")
			continue
		}

		if endpoint.limiter.Allow() {
			p.mutex.Unlock()
			return endpoint, nil
		}
	}

	// Everything throttled, wait for the starting endpoint to free up
	endpoint := p.endpoints[start]
	p.mutex.Unlock()

	p.logger.Debug().
		Str("endpoint", endpoint.URL).
		Msg("All endpoints rate limited, waiting for availability")

	reservation := endpoint.limiter.Reserve()
	if !reservation.OK() {
		return nil, fmt.Errorf("rate limiter failed to make reservation")
	}

	if delay := reservation.Delay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			reservation.Cancel()
			return nil, ctx.Err()
		}
	}

	return endpoint, nil
}

// MarkUnhealthy marks an endpoint as unhealthy
func (p *Pool) MarkUnhealthy(url string) {
	if endpoint := p.find(url); endpoint != nil {
		endpoint.mutex.Lock()
		endpoint.healthy = false
		endpoint.mutex.Unlock()

		metrics.SetRPCEndpointHealth(url, false)
		p.logger.Warn().Str("endpoint", url).Msg("Marked endpoint as unhealthy")
	}
}

// MarkHealthy marks an endpoint as healthy and clears any cooldown
func (p *Pool) MarkHealthy(url string) {
	if endpoint := p.find(url); endpoint != nil {
		endpoint.mutex.Lock()
		wasUnhealthy := !endpoint.healthy
		endpoint.healthy = true
		endpoint.cooldownUntil = time.Time{}
		endpoint.mutex.Unlock()

		metrics.SetRPCEndpointHealth(url, true)
		if wasUnhealthy {
			p.logger.Info().Str("endpoint", url).Msg("Marked endpoint as healthy")
		}
	}
}

// SetCooldown puts an endpoint in cooldown for the specified duration
func (p *Pool) SetCooldown(url string, duration time.Duration) {
	if endpoint := p.find(url); endpoint != nil {
		endpoint.mutex.Lock()
		endpoint.cooldownUntil = time.Now().Add(duration)
		endpoint.mutex.Unlock()

		p.logger.Warn().
			Str("endpoint", url).
			Dur("duration", duration).
			Msg("Set endpoint cooldown")
	}
}

// HealthyCount returns the number of currently usable endpoints
func (p *Pool) HealthyCount() int {
	count := 0
	for _, endpoint := range p.endpoints {
		if endpoint.available() {
			count++
		}
	}
	return count
}

func (p *Pool) find(url string) *Endpoint {
	for _, endpoint := range p.endpoints {
		if endpoint.URL == url {
			return endpoint
		}
	}
	return nil
}
