package models

import (
	"time"

	"gorm.io/gorm"
)

// Crawl states
const (
	CrawlPending   = "pending"
	CrawlCrawling  = "crawling"
	CrawlCompleted = "completed"
	CrawlError     = "error"
)

// CrawlStatus tracks traversal progress per wallet address.
// State machine: pending -> crawling -> {completed, error}.
type CrawlStatus struct {
	gorm.Model
	WalletAddress string `gorm:"size:44;uniqueIndex;not null"`
	Status        string `gorm:"size:20;default:pending;index"`
	ErrorMessage  string `gorm:"type:text"`

	LastCrawled              *time.Time
	LastTransactionSignature string `gorm:"size:100"`
	CrawlDepth               int    `gorm:"default:0"`
}
