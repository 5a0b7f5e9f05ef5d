package crawler

import (
	"fmt"
	"time"

	"github.com/wnt/yaffatrack/internal/models"
	"gorm.io/gorm"
)

// Tracker maintains the per-address crawl status rows, the sole
// observability surface of a running crawl.
type Tracker struct {
	db *gorm.DB
}

// NewTracker creates a new status tracker
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// MarkCrawling moves an address into the crawling state
func (t *Tracker) MarkCrawling(address string) error {
	return t.upsert(address, map[string]interface{}{
		"status":        models.CrawlCrawling,
		"error_message": "",
	})
}

// MarkCompleted records a successful crawl of an address
func (t *Tracker) MarkCompleted(address string, depth int) error {
	now := time.Now().UTC()
	return t.upsert(address, map[string]interface{}{
		"status":        models.CrawlCompleted,
		"error_message": "",
		"last_crawled":  now,
		"crawl_depth":   depth,
	})
}

// MarkError records a failed crawl of an address
func (t *Tracker) MarkError(address string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return t.upsert(address, map[string]interface{}{
		"status":        models.CrawlError,
		"error_message": message,
	})
}

// SetLastSignature records the pagination cursor reached for an address
func (t *Tracker) SetLastSignature(address, signature string) {
	// Cursor bookkeeping is best effort
	_ = t.upsert(address, map[string]interface{}{
		"last_transaction_signature": signature,
	})
}

func (t *Tracker) upsert(address string, updates map[string]interface{}) error {
	var status models.CrawlStatus
	err := t.db.Where("wallet_address = ?", address).
		FirstOrCreate(&status, models.CrawlStatus{WalletAddress: address}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert crawl status for %s: %w", address, err)
	}

	if err := t.db.Model(&status).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update crawl status for %s: %w", address, err)
	}
	return nil
}
