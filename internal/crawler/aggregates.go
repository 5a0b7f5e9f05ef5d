package crawler

import (
	"fmt"

	"github.com/wnt/yaffatrack/internal/metrics"
	"github.com/wnt/yaffatrack/internal/models"
)

// Totals is the full derived aggregate state of one wallet
type Totals struct {
	YaffaSent            float64
	YaffaReceived        float64
	LineageYaffaReceived float64
	YaffaSold            float64
	YaffaBought          float64
	SolReceived          float64
	SolSpent             float64
	NetYaffaBalance      float64
	NetSolBalance        float64
	LineageYaffaBalance  float64
	LineageCount         int
}

// ComputeTotals derives a wallet's aggregates from its persisted facts.
// Pure and order-independent: recomputing over the same fact set always
// converges to the same values.
func ComputeTotals(outbound, inbound []models.Transaction, trades []models.Trade, hasPrimaryMother bool, extraLineages int) Totals {
	var totals Totals

	for _, tx := range outbound {
		totals.YaffaSent += tx.YaffaAmount
	}
	for _, tx := range inbound {
		totals.YaffaReceived += tx.YaffaAmount
		if tx.IsLineageTransfer {
			totals.LineageYaffaReceived += tx.YaffaAmount
		}
	}
	for _, trade := range trades {
		switch trade.TradeType {
		case models.TradeSell:
			totals.YaffaSold += trade.YaffaAmount
			totals.SolReceived += trade.SolAmount
		case models.TradeBuy:
			totals.YaffaBought += trade.YaffaAmount
			totals.SolSpent += trade.SolAmount
		}
	}

	totals.NetYaffaBalance = totals.YaffaReceived + totals.YaffaBought - totals.YaffaSent - totals.YaffaSold
	totals.NetSolBalance = totals.SolReceived - totals.SolSpent
	totals.LineageYaffaBalance = totals.LineageYaffaReceived - totals.YaffaSent - totals.YaffaSold

	totals.LineageCount = extraLineages
	if hasPrimaryMother {
		totals.LineageCount++
	}

	return totals
}

// RecomputeAggregates reloads a wallet's full fact set and rewrites its
// derived fields. Never incremental, so it stays correct under retries
// and partial crawls.
func (c *Crawler) RecomputeAggregates(wallet *models.Wallet) error {
	var outbound, inbound []models.Transaction
	if err := c.db.Where("from_wallet_id = ?", wallet.ID).Find(&outbound).Error; err != nil {
		return fmt.Errorf("failed to load outbound transfers: %w", err)
	}
	if err := c.db.Where("to_wallet_id = ?", wallet.ID).Find(&inbound).Error; err != nil {
		return fmt.Errorf("failed to load inbound transfers: %w", err)
	}

	var trades []models.Trade
	if err := c.db.Where("wallet_id = ?", wallet.ID).Find(&trades).Error; err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}

	var extraLineages int64
	if err := c.db.Model(&models.WalletLineage{}).
		Where("wallet_id = ?", wallet.ID).
		Count(&extraLineages).Error; err != nil {
		return fmt.Errorf("failed to count lineages: %w", err)
	}

	totals := ComputeTotals(outbound, inbound, trades, wallet.MotherWalletID != nil, int(extraLineages))

	err := c.db.Model(wallet).Updates(map[string]interface{}{
		"total_yaffa_sent":       totals.YaffaSent,
		"total_yaffa_received":   totals.YaffaReceived,
		"lineage_yaffa_received": totals.LineageYaffaReceived,
		"total_yaffa_sold":       totals.YaffaSold,
		"total_yaffa_bought":     totals.YaffaBought,
		"total_sol_received":     totals.SolReceived,
		"total_sol_spent":        totals.SolSpent,
		"net_yaffa_balance":      totals.NetYaffaBalance,
		"net_sol_balance":        totals.NetSolBalance,
		"lineage_yaffa_balance":  totals.LineageYaffaBalance,
		"lineage_count":          totals.LineageCount,
	}).Error
	if err != nil {
		metrics.RecordDatabaseOperation("update", "failed")
		return fmt.Errorf("failed to persist aggregates for %s: %w", wallet.Address, err)
	}

	metrics.RecordDatabaseOperation("update", "success")
	return nil
}

// RefreshMotherTotals rewrites a mother's denormalized tree totals from its
// lineage wallets.
func (c *Crawler) RefreshMotherTotals(mother *models.MotherWallet) error {
	type sums struct {
		Current     float64
		Profit      float64
		Descendants int64
	}

	var result sums
	err := c.db.Model(&models.Wallet{}).
		Select("COALESCE(SUM(current_yaffa_balance), 0) AS current, COALESCE(SUM(net_sol_balance), 0) AS profit, COUNT(*) AS descendants").
		Where("mother_wallet_id = ? AND generation >= 1 AND is_external = false", mother.ID).
		Scan(&result).Error
	if err != nil {
		return fmt.Errorf("failed to sum lineage wallets: %w", err)
	}

	return c.db.Model(mother).Updates(map[string]interface{}{
		"total_yaffa_current": result.Current,
		"total_sol_profit":    result.Profit,
		"total_descendants":   result.Descendants,
	}).Error
}
