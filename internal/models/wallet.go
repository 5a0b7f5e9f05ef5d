package models

import (
	"time"

	"gorm.io/gorm"
)

// ExternalGeneration marks wallets that were reached from outside any known
// lineage (e.g. the counterparty of a sale). The sentinel sits far above any
// reachable depth, so a later lineage transfer into such a wallet re-assigns
// it a real generation and the traversal descends into it.
const ExternalGeneration = 999

// MotherWallet is a seed address whose descendant transfer graph is tracked.
// Rows are created once at seeding time and never deleted.
type MotherWallet struct {
	gorm.Model
	Address string `gorm:"size:44;uniqueIndex;not null"`
	Label   string `gorm:"size:100"`

	// Denormalized tree totals, refreshed after the mother's tree completes
	TotalYaffaCurrent float64 `gorm:"default:0"`
	TotalSolProfit    float64 `gorm:"default:0"`
	TotalDescendants  int     `gorm:"default:0"`

	Wallets []Wallet `gorm:"foreignKey:MotherWalletID"`
}

// Wallet is any address touched by the traversal, seed or discovered.
// Address is the global identity: a wallet reachable from two lineages is
// still a single row, with the extra membership recorded in WalletLineage.
type Wallet struct {
	gorm.Model
	Address string `gorm:"size:44;uniqueIndex;not null"`

	// Primary lineage attribution, decided at first discovery
	MotherWalletID     *uint `gorm:"index"`
	ParentWalletID     *uint `gorm:"index"`
	DiscoveredByMother *uint `gorm:"index"`
	Generation         int   `gorm:"default:0;index"`
	IsExternal         bool  `gorm:"default:false"`

	// Snapshot state
	CurrentYaffaBalance float64    `gorm:"default:0"`
	BalanceCheckedAt    *time.Time `gorm:"index"`

	// Derived aggregates, recomputed from persisted facts
	TotalYaffaReceived   float64 `gorm:"default:0"`
	TotalYaffaSent       float64 `gorm:"default:0"`
	TotalYaffaSold       float64 `gorm:"default:0"`
	TotalYaffaBought     float64 `gorm:"default:0"`
	TotalSolReceived     float64 `gorm:"default:0"`
	TotalSolSpent        float64 `gorm:"default:0"`
	LineageYaffaReceived float64 `gorm:"default:0"`
	NetYaffaBalance      float64 `gorm:"default:0"`
	NetSolBalance        float64 `gorm:"default:0"`
	LineageYaffaBalance  float64 `gorm:"default:0"`
	LineageCount         int     `gorm:"default:0"`

	FirstYaffaReceived *time.Time
	LastActivity       *time.Time

	// Relationships
	MotherWallet *MotherWallet `gorm:"foreignKey:MotherWalletID"`
	ParentWallet *Wallet       `gorm:"foreignKey:ParentWalletID"`
	Children     []Wallet      `gorm:"foreignKey:ParentWalletID"`
	Trades       []Trade       `gorm:"foreignKey:WalletID"`
}

// WalletLineage records that a wallet already owned by one lineage is also
// reachable from another mother's tree. At most one row per (wallet, mother).
type WalletLineage struct {
	gorm.Model
	WalletID       uint   `gorm:"not null;uniqueIndex:idx_wallet_lineages_wallet_mother"`
	MotherWalletID uint   `gorm:"not null;uniqueIndex:idx_wallet_lineages_wallet_mother"`
	ConnectionType string `gorm:"size:50"`

	Wallet       Wallet       `gorm:"foreignKey:WalletID"`
	MotherWallet MotherWallet `gorm:"foreignKey:MotherWalletID"`
}
