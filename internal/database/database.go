package database

import (
	"fmt"
	"time"

	"github.com/wnt/yaffatrack/internal/config"
	"github.com/wnt/yaffatrack/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the Postgres connection and migrates the schema
func Connect(cfg config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)

	// Configure GORM with optimized settings
	gormConfig := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true, // Prepare statement for better performance
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	// Set connection pool limits
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Migrate database schema
	if err := migrateSchema(db); err != nil {
		return nil, err
	}

	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	// Migrate models
	if err := db.AutoMigrate(
		&models.MotherWallet{},
		&models.Wallet{},
		&models.WalletLineage{},
		&models.Transaction{},
		&models.Trade{},
		&models.CrawlStatus{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Add composite indexes for common query patterns
	db.Exec("CREATE INDEX IF NOT EXISTS idx_transactions_from_to ON transactions(from_wallet_id, to_wallet_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_transactions_original_signature ON transactions(original_signature)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_wallets_mother_generation ON wallets(mother_wallet_id, generation)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_trades_wallet_type ON trades(wallet_id, trade_type)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_crawl_statuses_status_updated ON crawl_statuses(status, updated_at)")

	return nil
}
