package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/yaffatrack/internal/classifier"
	"github.com/wnt/yaffatrack/internal/config"
	"github.com/wnt/yaffatrack/internal/logger"
	"github.com/wnt/yaffatrack/internal/metrics"
	"github.com/wnt/yaffatrack/internal/models"
	"github.com/wnt/yaffatrack/internal/solana"
	"gorm.io/gorm"
)

// Crawler walks the lineage graph: it ingests each wallet's transaction
// history from the feed, classifies and persists the facts, discovers
// descendant wallets and descends into them depth-first.
type Crawler struct {
	db      *gorm.DB
	feed    *solana.Client
	tracker *Tracker
	cfg     config.Config
	logger  zerolog.Logger
}

// New creates a new Crawler
func New(db *gorm.DB, feed *solana.Client, cfg config.Config, log zerolog.Logger) *Crawler {
	return &Crawler{
		db:      db,
		feed:    feed,
		tracker: NewTracker(db),
		cfg:     cfg,
		logger:  log.With().Str("component", "crawler").Logger(),
	}
}

// CrawlAllMotherWallets crawls each seed tree sequentially with an
// inter-mother delay. A failure for one seed is recorded in its crawl
// status and does not abort the remaining seeds.
func (c *Crawler) CrawlAllMotherWallets(ctx context.Context, addresses []string) error {
	for i, address := range addresses {
		if i > 0 {
			select {
			case <-time.After(c.cfg.MotherDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		log := logger.WithMother(c.logger, address)
		log.Info().Msg("Crawling mother wallet tree")

		mother, _, err := c.EnsureMother(address)
		if err != nil {
			log.Error().Err(err).Msg("Failed to register mother wallet")
			c.tracker.MarkError(address, err)
			continue
		}

		if err := c.crawlWalletTree(ctx, address, nil, &mother.ID, 0); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Mother wallet crawl failed")
			continue
		}

		if err := c.RefreshMotherTotals(mother); err != nil {
			log.Warn().Err(err).Msg("Failed to refresh mother totals")
		}

		log.Info().Msg("Mother wallet tree completed")
	}

	return nil
}

// crawlWalletTree crawls one wallet and recurses into its discovered
// recipients. Depth overruns stop silently; other failures mark the
// wallet's crawl status and stop only this branch.
func (c *Crawler) crawlWalletTree(ctx context.Context, address string, parentID, motherID *uint, generation int) error {
	if generation > c.cfg.MaxCrawlDepth {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	log := logger.WithWallet(c.logger, address)
	metrics.SetCrawlGenerationDepth(generation)

	if err := c.tracker.MarkCrawling(address); err != nil {
		return err
	}

	err := c.crawlWallet(ctx, log, address, parentID, motherID, generation)
	if err != nil {
		c.tracker.MarkError(address, err)
		return err
	}

	if err := c.tracker.MarkCompleted(address, generation); err != nil {
		// The crawl itself succeeded, but the address must not be left
		// showing as crawling
		log.Warn().Err(err).Msg("Failed to mark crawl completed")
	}
	metrics.RecordWalletCrawl(time.Since(start).Seconds())
	return nil
}

func (c *Crawler) crawlWallet(ctx context.Context, log zerolog.Logger, address string, parentID, motherID *uint, generation int) error {
	wallet, err := c.getOrCreateCrawlWallet(address, parentID, motherID, generation)
	if err != nil {
		return err
	}

	// Balance snapshot; feed failures degrade to zero inside the adapter
	now := time.Now().UTC()
	wallet.CurrentYaffaBalance = c.feed.TokenBalance(ctx, address)
	wallet.BalanceCheckedAt = &now
	if err := c.db.Model(wallet).Updates(map[string]interface{}{
		"current_yaffa_balance": wallet.CurrentYaffaBalance,
		"balance_checked_at":    wallet.BalanceCheckedAt,
	}).Error; err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	if err := c.ingestHistory(ctx, log, wallet, motherID); err != nil {
		return err
	}

	if err := c.recurseIntoRecipients(ctx, log, wallet, generation); err != nil {
		return err
	}

	return c.RecomputeAggregates(wallet)
}

// ingestHistory pages through the wallet's signature history newest first,
// fetching and classifying each transaction. Bounded by the batch and
// transaction ceilings; hitting a ceiling is a graceful stop, not an error.
func (c *Crawler) ingestHistory(ctx context.Context, log zerolog.Logger, wallet *models.Wallet, discoveringMotherID *uint) error {
	cursor := ""
	processed := 0

	for batch := 0; batch < c.cfg.MaxBatches; batch++ {
		if batch > 0 {
			select {
			case <-time.After(c.cfg.RateLimitDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		page, err := c.feed.Signatures(ctx, wallet.Address, cursor, c.cfg.BatchSize)
		if err != nil {
			// Feed errors are not fatal to the branch, keep what we have
			log.Warn().Err(err).Msg("Failed to fetch signature page, stopping ingestion")
			return nil
		}
		if len(page) == 0 {
			break
		}

		for _, info := range page {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := c.processSignature(ctx, log, wallet, discoveringMotherID, info); err != nil {
				return err
			}

			processed++
			if processed >= c.cfg.MaxTransactions {
				log.Info().Int("processed", processed).Msg("Transaction ceiling reached")
				return nil
			}
		}

		cursor = page[len(page)-1].Signature
		c.tracker.SetLastSignature(wallet.Address, cursor)

		if len(page) < c.cfg.BatchSize {
			break
		}
	}

	log.Debug().Int("processed", processed).Msg("Transaction history ingested")
	return nil
}

// processSignature fetches one transaction and records its classified
// facts. Already-seen signatures and classification anomalies are skipped.
func (c *Crawler) processSignature(ctx context.Context, log zerolog.Logger, wallet *models.Wallet, discoveringMotherID *uint, info solana.SignatureInfo) error {
	if info.Signature == "" {
		return nil
	}

	// Global signature dedup against persisted facts
	seen, err := c.signatureSeen(info.Signature)
	if err != nil {
		return err
	}
	if seen {
		metrics.RecordTransactionClassified("duplicate")
		return nil
	}

	detail, err := c.feed.TransactionDetail(ctx, info.Signature)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("signature", info.Signature).Msg("Failed to fetch transaction, skipping")
		return nil
	}
	if detail == nil {
		return nil
	}

	result := classifier.ClassifyForWallet(detail, wallet.Address, c.cfg.YaffaTokenMint)

	switch result.Kind {
	case classifier.KindTrade:
		metrics.RecordTransactionClassified("trade")
		return c.recordTrade(wallet, info.Signature, detail, result.Trade)
	case classifier.KindTransfer:
		metrics.RecordTransactionClassified("transfer")
		return c.recordTransfer(wallet, discoveringMotherID, info.Signature, detail, result.Transfer, models.TypeTransfer)
	case classifier.KindComplex:
		metrics.RecordTransactionClassified("complex")
		return c.recordTransfer(wallet, discoveringMotherID, info.Signature, detail, result.Transfer, models.TypeComplexTransfer)
	default:
		metrics.RecordTransactionClassified("skipped")
		return nil
	}
}

func (c *Crawler) signatureSeen(signature string) (bool, error) {
	var count int64
	if err := c.db.Model(&models.Transaction{}).
		Where("original_signature = ?", signature).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check signature dedup: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	if err := c.db.Model(&models.Trade{}).
		Where("transaction_hash = ?", signature).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check trade dedup: %w", err)
	}
	return count > 0, nil
}

// recordTransfer persists one directed transfer fact, resolving the
// counterparty wallet and any multi-lineage membership it reveals.
func (c *Crawler) recordTransfer(wallet *models.Wallet, discoveringMotherID *uint, signature string, detail *solana.TransactionDetail, transfer *classifier.Transfer, transferType string) error {
	if transfer == nil {
		return nil
	}

	if discoveringMotherID == nil {
		discoveringMotherID = wallet.MotherWalletID
		if discoveringMotherID == nil && !wallet.IsExternal {
			// The crawled wallet roots its own lineage
			discoveringMotherID = &wallet.ID
		}
	}

	var sender, recipient *models.Wallet
	var err error

	if transfer.Direction == classifier.DirectionOut {
		sender = wallet
		recipient, err = c.getOrCreateWalletForTransfer(transfer.Counterparty, discoveringMotherID, false, sender)
	} else {
		sender, err = c.getOrCreateWalletForTransfer(transfer.Counterparty, discoveringMotherID, true, nil)
		recipient = wallet
	}
	if err != nil {
		return err
	}
	if sender.ID == recipient.ID {
		return nil
	}

	if err := c.handleMultiLineageMembership(recipient, sender, discoveringMotherID); err != nil {
		return err
	}

	hash := TransferHash(signature, sender.Address, recipient.Address)

	var count int64
	if err := c.db.Model(&models.Transaction{}).
		Where("transaction_hash = ?", hash).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check transfer dedup: %w", err)
	}
	if count > 0 {
		return nil
	}

	raw, err := json.Marshal(map[string]interface{}{
		"original_signature": signature,
		"slot":               detail.Slot,
		"sender":             sender.Address,
		"recipient":          recipient.Address,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal raw transfer data: %w", err)
	}

	timestamp := classifier.BlockTime(detail)
	row := models.Transaction{
		TransactionHash:     hash,
		OriginalSignature:   signature,
		FromWalletID:        &sender.ID,
		ToWalletID:          &recipient.ID,
		YaffaAmount:         transfer.Amount,
		Timestamp:           timestamp,
		BlockHeight:         detail.Slot,
		TransactionType:     transferType,
		IsLineageTransfer:   sender.MotherWalletID != nil && !sender.IsExternal,
		DiscoveringMotherID: discoveringMotherID,
		RawData:             string(raw),
	}

	if err := c.db.Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		metrics.RecordDatabaseOperation("insert", "failed")
		return fmt.Errorf("failed to save transfer %s: %w", hash, err)
	}
	metrics.RecordDatabaseOperation("insert", "success")

	if err := c.touchRecipient(recipient, timestamp); err != nil {
		return err
	}

	// A settled recipient will not be recursed into again, so fold the new
	// fact into its aggregates here. The crawled wallet itself is recomputed
	// once at the end of its crawl.
	if recipient.ID != wallet.ID {
		return c.RecomputeAggregates(recipient)
	}
	return nil
}

// touchRecipient stamps first-received and last-activity metadata
func (c *Crawler) touchRecipient(recipient *models.Wallet, timestamp time.Time) error {
	if timestamp.IsZero() {
		return nil
	}

	updates := map[string]interface{}{}
	if recipient.FirstYaffaReceived == nil || timestamp.Before(*recipient.FirstYaffaReceived) {
		recipient.FirstYaffaReceived = &timestamp
		updates["first_yaffa_received"] = timestamp
	}
	if recipient.LastActivity == nil || timestamp.After(*recipient.LastActivity) {
		recipient.LastActivity = &timestamp
		updates["last_activity"] = timestamp
	}
	if len(updates) == 0 {
		return nil
	}

	if err := c.db.Model(recipient).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update recipient metadata: %w", err)
	}
	return nil
}

// recordTrade persists one DEX trade, unique per (signature, wallet)
func (c *Crawler) recordTrade(wallet *models.Wallet, signature string, detail *solana.TransactionDetail, trade *classifier.Trade) error {
	if trade == nil {
		return nil
	}

	var count int64
	if err := c.db.Model(&models.Trade{}).
		Where("transaction_hash = ? AND wallet_id = ?", signature, wallet.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check trade dedup: %w", err)
	}
	if count > 0 {
		return nil
	}

	raw, err := json.Marshal(map[string]interface{}{
		"original_signature": signature,
		"slot":               detail.Slot,
		"dex":                trade.Dex,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal raw trade data: %w", err)
	}

	row := models.Trade{
		WalletID:        wallet.ID,
		TransactionHash: signature,
		TradeType:       trade.Type,
		YaffaAmount:     trade.TokenAmount,
		SolAmount:       trade.NativeAmount,
		PricePerToken:   trade.PricePerToken,
		DexUsed:         trade.Dex,
		Timestamp:       classifier.BlockTime(detail),
		RawData:         string(raw),
	}

	if err := c.db.Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		metrics.RecordDatabaseOperation("insert", "failed")
		return fmt.Errorf("failed to save trade %s: %w", signature, err)
	}
	metrics.RecordDatabaseOperation("insert", "success")

	c.logger.Info().
		Str("wallet", wallet.Address).
		Str("type", trade.Type).
		Float64("yaffa", trade.TokenAmount).
		Float64("sol", trade.NativeAmount).
		Str("dex", trade.Dex).
		Msg("Recorded DEX trade")

	return nil
}

// recurseIntoRecipients descends into every distinct recipient of this
// wallet's persisted outbound transfers that has not been settled at this
// depth yet. A branch failure is logged and stops only that branch.
func (c *Crawler) recurseIntoRecipients(ctx context.Context, log zerolog.Logger, wallet *models.Wallet, generation int) error {
	var recipients []models.Wallet
	err := c.db.
		Joins("JOIN transactions ON transactions.to_wallet_id = wallets.id").
		Where("transactions.from_wallet_id = ?", wallet.ID).
		Distinct("wallets.*").
		Find(&recipients).Error
	if err != nil {
		return fmt.Errorf("failed to enumerate recipients: %w", err)
	}

	childMother := wallet.MotherWalletID
	if childMother == nil {
		// The current wallet becomes a lineage root
		childMother = &wallet.ID
	}

	for i := range recipients {
		recipient := &recipients[i]
		if !shouldRecurse(recipient, generation) {
			continue
		}

		updates := map[string]interface{}{
			"generation":       generation + 1,
			"parent_wallet_id": wallet.ID,
		}
		if err := c.db.Model(recipient).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update recipient generation: %w", err)
		}

		if err := c.crawlWalletTree(ctx, recipient.Address, &wallet.ID, childMother, generation+1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("recipient", recipient.Address).Msg("Recipient branch failed")
		}
	}

	return nil
}

// shouldRecurse reports whether a recipient still needs a visit at this
// depth: either its stored generation is deeper than what we are about to
// assign, or its balance has never been fetched.
func shouldRecurse(recipient *models.Wallet, generation int) bool {
	return recipient.Generation > generation+1 || recipient.BalanceCheckedAt == nil
}

// TransferHash derives the synthetic per-pair transfer key from the ledger
// signature and both endpoints.
func TransferHash(signature, from, to string) string {
	return fmt.Sprintf("%s_%s_%s", prefix(signature, 16), prefix(from, 8), prefix(to, 8))
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// isDuplicateKey reports whether an insert failed on a unique constraint
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
