package crawler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wnt/yaffatrack/internal/metrics"
)

// ErrSessionActive is returned when a crawl session is already running
var ErrSessionActive = errors.New("a crawl session is already running")

// Runner owns the single background crawl session: the ingress trigger
// returns immediately while the session runs detached but cancellable.
type Runner struct {
	crawler *Crawler
	logger  zerolog.Logger

	mutex   sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewRunner creates a new session runner
func NewRunner(crawler *Crawler, logger zerolog.Logger) *Runner {
	return &Runner{
		crawler: crawler,
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// Start launches a detached crawl over the given seed addresses. Only one
// session may run at a time.
func (r *Runner) Start(addresses []string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.running {
		return ErrSessionActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true
	metrics.SetCrawlSessionActive(true)

	go func() {
		defer func() {
			r.mutex.Lock()
			r.running = false
			r.cancel = nil
			r.mutex.Unlock()
			metrics.SetCrawlSessionActive(false)
		}()

		r.logger.Info().Int("seeds", len(addresses)).Msg("Crawl session started")

		if err := r.crawler.CrawlAllMotherWallets(ctx, addresses); err != nil {
			if errors.Is(err, context.Canceled) {
				r.logger.Info().Msg("Crawl session cancelled")
				return
			}
			r.logger.Error().Err(err).Msg("Crawl session failed")
			return
		}

		r.logger.Info().Msg("Crawl session completed")
	}()

	return nil
}

// Running reports whether a session is currently active
func (r *Runner) Running() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.running
}

// Stop cancels the active session, if any
func (r *Runner) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}
