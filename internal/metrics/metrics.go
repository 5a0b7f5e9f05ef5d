package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WalletsDiscovered tracks discovered wallets by attribution
	WalletsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaffatrack_wallets_discovered_total",
			Help: "The total number of wallets discovered by the crawler",
		},
		[]string{"attribution"}, // mother, descendant, external
	)

	// RPCRequestsTotal tracks RPC requests by status
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaffatrack_rpc_requests_total",
			Help: "The total number of RPC requests",
		},
		[]string{"status"},
	)

	// WalletCrawlSeconds tracks time taken to crawl one wallet's history
	WalletCrawlSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yaffatrack_wallet_crawl_seconds",
		Help:    "Time taken to crawl a wallet in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
	})

	// TransactionsClassified tracks classifier outcomes
	TransactionsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaffatrack_transactions_classified_total",
			Help: "The total number of transactions classified",
		},
		[]string{"kind"}, // transfer, trade, complex, skipped, duplicate
	)

	// DatabaseOperations tracks database operations
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaffatrack_database_operations_total",
			Help: "The total number of database operations",
		},
		[]string{"operation", "status"}, // insert/update, success/failed
	)

	// RPCEndpointHealth tracks RPC endpoint health
	RPCEndpointHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yaffatrack_rpc_endpoint_health",
			Help: "Health status of RPC endpoints (1 = healthy, 0 = unhealthy)",
		},
		[]string{"endpoint"},
	)

	// CrawlSessionActive indicates whether a crawl session is running
	CrawlSessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yaffatrack_crawl_session_active",
		Help: "Whether a crawl session is currently running (1 = active)",
	})

	// CrawlGenerationDepth tracks the generation currently being crawled
	CrawlGenerationDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yaffatrack_crawl_generation_depth",
		Help: "The lineage generation currently being crawled",
	})
)

// RecordRPCRequest records an RPC request with the given status
func RecordRPCRequest(status string) {
	RPCRequestsTotal.WithLabelValues(status).Inc()
}

// RecordWalletCrawl records the time taken to crawl a wallet
func RecordWalletCrawl(duration float64) {
	WalletCrawlSeconds.Observe(duration)
}

// RecordWalletDiscovered records a discovered wallet
func RecordWalletDiscovered(attribution string) {
	WalletsDiscovered.WithLabelValues(attribution).Inc()
}

// RecordTransactionClassified records a classifier outcome
func RecordTransactionClassified(kind string) {
	TransactionsClassified.WithLabelValues(kind).Inc()
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string) {
	DatabaseOperations.WithLabelValues(operation, status).Inc()
}

// SetRPCEndpointHealth sets the health status of an RPC endpoint
func SetRPCEndpointHealth(endpoint string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	RPCEndpointHealth.WithLabelValues(endpoint).Set(value)
}

// SetCrawlGenerationDepth sets the current crawl generation gauge
func SetCrawlGenerationDepth(generation int) {
	CrawlGenerationDepth.Set(float64(generation))
}

// SetCrawlSessionActive sets the crawl session gauge
func SetCrawlSessionActive(active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	CrawlSessionActive.Set(value)
}
