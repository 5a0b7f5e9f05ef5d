package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/yaffatrack/internal/crawler"
	"gorm.io/gorm"
)

// Server is the HTTP ingress and reporting layer: it registers seed
// wallets, launches crawl sessions and serves read-only projections of
// the lineage data model.
type Server struct {
	db      *gorm.DB
	crawler *crawler.Crawler
	runner  *crawler.Runner
	logger  zerolog.Logger
}

// NewServer creates a new API server
func NewServer(db *gorm.DB, c *crawler.Crawler, runner *crawler.Runner, logger zerolog.Logger) *Server {
	return &Server{
		db:      db,
		crawler: c,
		runner:  runner,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Routes returns the HTTP handler for all API endpoints
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/start-crawl", s.handleStartCrawl)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/mother-wallets", s.handleMotherWallets)
	mux.HandleFunc("GET /api/mother-wallet/{id}/descendants", s.handleDescendants)
	mux.HandleFunc("GET /api/crawl-status", s.handleCrawlStatus)
	mux.HandleFunc("GET /api/wallet/{id}/lineages", s.handleWalletLineages)
	mux.HandleFunc("GET /api/export/{id}", s.handleExport)

	return mux
}

// Serve runs the HTTP server until the context is cancelled
func (s *Server) Serve(ctx context.Context, port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// round keeps display values tidy at the reporting boundary. All internal
// arithmetic stays unrounded.
func round(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

// truncate caps a message for compact status listings
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
