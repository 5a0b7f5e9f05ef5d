package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wnt/yaffatrack/internal/api"
	"github.com/wnt/yaffatrack/internal/config"
	"github.com/wnt/yaffatrack/internal/crawler"
	"github.com/wnt/yaffatrack/internal/database"
	"github.com/wnt/yaffatrack/internal/logger"
	"github.com/wnt/yaffatrack/internal/rpc"
	"github.com/wnt/yaffatrack/internal/solana"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command-line arguments
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	// Load environment variables from the specified file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info().
		Str("token_mint", cfg.YaffaTokenMint).
		Int("rpc_endpoints", len(cfg.RPCEndpoints)).
		Msg("Starting yaffatrack")

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	pool := rpc.NewPool(cfg.RPCEndpoints, appLogger)
	caller := rpc.NewCaller(pool, appLogger)

	feed, err := solana.NewClient(cfg.RPCEndpoints, cfg.YaffaTokenMint, caller, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize Solana feed: %v", err)
	}

	c := crawler.New(db, feed, cfg, appLogger)
	runner := crawler.NewRunner(c, appLogger)
	server := api.NewServer(db, c, runner, appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		appLogger.Info().Str("port", cfg.APIPort).Msg("API server listening")
		return server.Serve(ctx, cfg.APIPort)
	})

	group.Go(func() error {
		return serveMetrics(ctx, cfg.MetricsPort, appLogger)
	})

	group.Go(func() error {
		<-ctx.Done()
		runner.Stop()
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	appLogger.Info().Msg("Shutdown complete")
}

// serveMetrics runs the Prometheus scrape endpoint until shutdown
func serveMetrics(ctx context.Context, port string, appLogger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info().Str("port", port).Msg("Metrics server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
