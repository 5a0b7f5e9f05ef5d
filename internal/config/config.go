package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Yaffa lineage tracker
type Config struct {
	// Database configuration
	DBName     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBPort     string
	DBSSLMode  string

	// RPC configuration
	RPCEndpoints []string

	// Token configuration
	YaffaTokenMint string

	// Crawl configuration
	MaxCrawlDepth   int
	BatchSize       int
	MaxBatches      int
	MaxTransactions int
	RateLimitDelay  time.Duration
	MotherDelay     time.Duration

	// Logging configuration
	LogLevel string

	// Server configuration
	APIPort     string
	MetricsPort string
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		DBName:         getEnv("DB_NAME", ""),
		DBHost:         getEnv("DB_HOST", ""),
		DBUser:         getEnv("DB_USER", ""),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		YaffaTokenMint: getEnv("YAFFA_TOKEN_MINT", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		APIPort:        getEnv("API_PORT", "8000"),
		MetricsPort:    getEnv("METRICS_PORT", "9100"),
	}

	// Parse RPC endpoints
	rpcEndpointsStr := getEnv("RPC_ENDPOINTS", "")
	if rpcEndpointsStr == "" {
		return cfg, fmt.Errorf("RPC_ENDPOINTS environment variable is required")
	}
	cfg.RPCEndpoints = strings.Split(rpcEndpointsStr, ",")
	for i, endpoint := range cfg.RPCEndpoints {
		cfg.RPCEndpoints[i] = strings.TrimSpace(endpoint)
	}

	// Parse crawl configuration
	var err error
	cfg.MaxCrawlDepth, err = parseIntEnv("MAX_CRAWL_DEPTH", 10)
	if err != nil {
		return cfg, fmt.Errorf("invalid MAX_CRAWL_DEPTH: %w", err)
	}

	cfg.BatchSize, err = parseIntEnv("BATCH_SIZE", 100)
	if err != nil {
		return cfg, fmt.Errorf("invalid BATCH_SIZE: %w", err)
	}

	cfg.MaxBatches, err = parseIntEnv("MAX_BATCHES", 50)
	if err != nil {
		return cfg, fmt.Errorf("invalid MAX_BATCHES: %w", err)
	}

	cfg.MaxTransactions, err = parseIntEnv("MAX_TRANSACTIONS", 1000)
	if err != nil {
		return cfg, fmt.Errorf("invalid MAX_TRANSACTIONS: %w", err)
	}

	cfg.RateLimitDelay, err = parseDurationEnv("RATE_LIMIT_DELAY", 500*time.Millisecond)
	if err != nil {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_DELAY: %w", err)
	}

	cfg.MotherDelay, err = parseDurationEnv("MOTHER_DELAY", time.Second)
	if err != nil {
		return cfg, fmt.Errorf("invalid MOTHER_DELAY: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that the configuration is valid
func (c Config) validate() error {
	if c.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.YaffaTokenMint == "" {
		return fmt.Errorf("YAFFA_TOKEN_MINT is required")
	}

	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}

	if c.MaxCrawlDepth < 1 {
		return fmt.Errorf("MAX_CRAWL_DEPTH must be at least 1")
	}

	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return fmt.Errorf("BATCH_SIZE must be between 1 and 1000")
	}

	if c.MaxBatches < 1 {
		return fmt.Errorf("MAX_BATCHES must be at least 1")
	}

	if c.MaxTransactions < c.BatchSize {
		return fmt.Errorf("MAX_TRANSACTIONS must be greater than or equal to BATCH_SIZE")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

// parseDurationEnv parses a duration environment variable with a default value
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(str)
}
