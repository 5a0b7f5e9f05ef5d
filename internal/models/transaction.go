package models

import (
	"time"

	"gorm.io/gorm"
)

// Transaction types
const (
	TypeTransfer = "transfer"
	// TypeComplexTransfer marks token movement near a DEX program that the
	// classifier could not confirm as a trade
	TypeComplexTransfer = "transfer_or_complex_trade"
)

// Trade types
const (
	TradeBuy  = "buy"
	TradeSell = "sell"
)

// Transaction is one directed token transfer between two wallets.
//
// TransactionHash is a synthetic key derived from the ledger signature plus
// both endpoints, so a single ledger transaction can yield multiple logical
// transfer rows while each sender/recipient pair stays unique.
// OriginalSignature carries the raw ledger signature and is the global
// dedup key checked before a signature is processed at all.
type Transaction struct {
	gorm.Model
	TransactionHash   string `gorm:"size:100;uniqueIndex;not null"`
	OriginalSignature string `gorm:"size:88;index;not null"`

	FromWalletID *uint `gorm:"index"`
	ToWalletID   *uint `gorm:"index"`

	YaffaAmount     float64 `gorm:"not null"`
	Timestamp       time.Time
	BlockHeight     int64
	TransactionType string `gorm:"size:20;index"`

	// True when the sender itself carries lineage attribution
	IsLineageTransfer   bool  `gorm:"default:false;index"`
	DiscoveringMotherID *uint `gorm:"index"`

	RawData string `gorm:"type:jsonb"`

	FromWallet *Wallet `gorm:"foreignKey:FromWalletID"`
	ToWallet   *Wallet `gorm:"foreignKey:ToWalletID"`
}

// Trade is one DEX buy or sell for a wallet, unique per (signature, wallet).
type Trade struct {
	gorm.Model
	WalletID        uint   `gorm:"not null;uniqueIndex:idx_trades_signature_wallet"`
	TransactionHash string `gorm:"size:100;not null;uniqueIndex:idx_trades_signature_wallet"`

	TradeType     string  `gorm:"size:10;not null;index"`
	YaffaAmount   float64 `gorm:"not null"`
	SolAmount     float64 `gorm:"not null"`
	PricePerToken float64
	DexUsed       string `gorm:"size:50"`
	Timestamp     time.Time
	RawData       string `gorm:"type:jsonb"`

	Wallet Wallet `gorm:"foreignKey:WalletID"`
}
