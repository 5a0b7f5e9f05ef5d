package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/wnt/yaffatrack/internal/crawler"
	"github.com/wnt/yaffatrack/internal/models"
	"github.com/wnt/yaffatrack/internal/solana"
	"github.com/wnt/yaffatrack/internal/utils"
)

type startCrawlRequest struct {
	Addresses []string `json:"addresses"`
}

// handleStartCrawl registers new seed wallets and launches a detached
// crawl session. Returns immediately, crawl progress is visible only via
// the crawl-status surface.
func (s *Server) handleStartCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Addresses) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one address is required")
		return
	}

	for _, address := range req.Addresses {
		if !solana.ValidAddress(address) {
			s.writeError(w, http.StatusBadRequest, "invalid address: "+address)
			return
		}
	}

	newSeeds := 0
	for _, address := range req.Addresses {
		_, created, err := s.crawler.EnsureMother(address)
		if err != nil {
			s.logger.Error().Err(err).Str("address", address).Msg("Failed to register mother wallet")
			s.writeError(w, http.StatusInternalServerError, "failed to register mother wallet")
			return
		}
		if created {
			newSeeds++
		}
	}

	if err := s.runner.Start(req.Addresses); err != nil {
		if err == crawler.ErrSessionActive {
			s.writeError(w, http.StatusConflict, "a crawl session is already running")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to start crawl session")
		s.writeError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"started":            true,
		"new_mother_wallets": newSeeds,
		"total_addresses":    len(req.Addresses),
	})
}

// handleSummary returns global counts and totals
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var mothers, wallets, external, transactions, trades int64
	s.db.Model(&models.MotherWallet{}).Count(&mothers)
	s.db.Model(&models.Wallet{}).Where("is_external = false").Count(&wallets)
	s.db.Model(&models.Wallet{}).Where("is_external = true").Count(&external)
	s.db.Model(&models.Transaction{}).Count(&transactions)
	s.db.Model(&models.Trade{}).Count(&trades)

	var totals struct {
		Yaffa  float64
		Profit float64
	}
	s.db.Model(&models.Wallet{}).
		Select("COALESCE(SUM(current_yaffa_balance), 0) AS yaffa, COALESCE(SUM(net_sol_balance), 0) AS profit").
		Where("is_external = false").
		Scan(&totals)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"mother_wallets":       mothers,
		"tracked_wallets":      wallets,
		"external_wallets":     external,
		"transactions":         transactions,
		"trades":               trades,
		"total_yaffa_held":     round(totals.Yaffa, 2),
		"total_sol_profit":     round(totals.Profit, 4),
		"crawl_session_active": s.runner.Running(),
	})
}

// handleMotherWallets lists every mother with its tree totals, most
// profitable first
func (s *Server) handleMotherWallets(w http.ResponseWriter, r *http.Request) {
	var mothers []models.MotherWallet
	if err := s.db.Order("total_sol_profit DESC").Find(&mothers).Error; err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load mother wallets")
		return
	}

	out := make([]map[string]interface{}, 0, len(mothers))
	for _, mother := range mothers {
		out = append(out, map[string]interface{}{
			"id":                  mother.ID,
			"address":             mother.Address,
			"label":               mother.Label,
			"total_yaffa_current": round(mother.TotalYaffaCurrent, 2),
			"total_sol_profit":    round(mother.TotalSolProfit, 4),
			"total_descendants":   mother.TotalDescendants,
			"created_at":          mother.CreatedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":          len(out),
		"mother_wallets": out,
	})
}

// handleDescendants lists one mother's lineage wallets with their
// aggregates, shallowest generation first, best performer first within a
// generation
func (s *Server) handleDescendants(w http.ResponseWriter, r *http.Request) {
	motherID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var mother models.MotherWallet
	if err := s.db.First(&mother, motherID).Error; err != nil {
		s.writeError(w, http.StatusNotFound, "mother wallet not found")
		return
	}

	var wallets []models.Wallet
	err := s.db.Where("mother_wallet_id = ? AND is_external = false", motherID).
		Order("generation ASC, net_sol_balance DESC").
		Find(&wallets).Error
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load descendants")
		return
	}

	childCounts := s.childCounts(wallets)
	prices := s.averageTradePrices(wallets)

	out := make([]map[string]interface{}, 0, len(wallets))
	for _, wallet := range wallets {
		entry := map[string]interface{}{
			"id":                    wallet.ID,
			"address":               wallet.Address,
			"generation":            wallet.Generation,
			"current_yaffa_balance": round(wallet.CurrentYaffaBalance, 2),
			"total_yaffa_received":  round(wallet.TotalYaffaReceived, 2),
			"total_yaffa_sent":      round(wallet.TotalYaffaSent, 2),
			"total_yaffa_sold":      round(wallet.TotalYaffaSold, 2),
			"total_yaffa_bought":    round(wallet.TotalYaffaBought, 2),
			"net_sol_balance":       round(wallet.NetSolBalance, 4),
			"lineage_yaffa_balance": round(wallet.LineageYaffaBalance, 2),
			"lineage_count":         wallet.LineageCount,
			"children":              childCounts[wallet.ID],
			"first_yaffa_received":  wallet.FirstYaffaReceived,
			"last_activity":         wallet.LastActivity,
		}
		if price, ok := prices[wallet.ID]; ok {
			entry["avg_sell_price"] = round(price.sell, 6)
			entry["avg_buy_price"] = round(price.buy, 6)
		}
		out = append(out, entry)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"mother_wallet": mother.Address,
		"label":         mother.Label,
		"count":         len(out),
		"descendants":   out,
	})
}

// handleCrawlStatus reports crawl progress and the most recent errors
func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	var statuses []models.CrawlStatus
	if err := s.db.Order("updated_at DESC").Find(&statuses).Error; err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load crawl status")
		return
	}

	completed := len(utils.Filter(statuses, func(st models.CrawlStatus) bool {
		return st.Status == models.CrawlCompleted
	}))
	crawling := len(utils.Filter(statuses, func(st models.CrawlStatus) bool {
		return st.Status == models.CrawlCrawling
	}))
	failed := utils.Filter(statuses, func(st models.CrawlStatus) bool {
		return st.Status == models.CrawlError
	})

	progress := 0.0
	if len(statuses) > 0 {
		progress = round(float64(completed)/float64(len(statuses))*100, 1)
	}

	recentErrors := make([]map[string]interface{}, 0, 5)
	for i, st := range failed {
		if i >= 5 {
			break
		}
		recentErrors = append(recentErrors, map[string]interface{}{
			"wallet_address": st.WalletAddress,
			"error":          truncate(st.ErrorMessage, 200),
			"updated_at":     st.UpdatedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_addresses":  len(statuses),
		"completed":        completed,
		"crawling":         crawling,
		"errors":           len(failed),
		"progress_percent": progress,
		"session_active":   s.runner.Running(),
		"recent_errors":    recentErrors,
	})
}

// handleWalletLineages lists a wallet's primary mother and every
// additional lineage membership
func (s *Server) handleWalletLineages(w http.ResponseWriter, r *http.Request) {
	walletID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var wallet models.Wallet
	if err := s.db.Preload("MotherWallet").First(&wallet, walletID).Error; err != nil {
		s.writeError(w, http.StatusNotFound, "wallet not found")
		return
	}

	var memberships []models.WalletLineage
	if err := s.db.Preload("MotherWallet").
		Where("wallet_id = ?", walletID).
		Find(&memberships).Error; err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load lineages")
		return
	}

	var primary map[string]interface{}
	if wallet.MotherWallet != nil {
		primary = map[string]interface{}{
			"mother_wallet_id": wallet.MotherWallet.ID,
			"address":          wallet.MotherWallet.Address,
			"label":            wallet.MotherWallet.Label,
			"generation":       wallet.Generation,
		}
	}

	additional := make([]map[string]interface{}, 0, len(memberships))
	for _, membership := range memberships {
		additional = append(additional, map[string]interface{}{
			"mother_wallet_id": membership.MotherWalletID,
			"address":          membership.MotherWallet.Address,
			"label":            membership.MotherWallet.Label,
			"connection_type":  membership.ConnectionType,
			"recorded_at":      membership.CreatedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":              wallet.Address,
		"is_external":         wallet.IsExternal,
		"lineage_count":       wallet.LineageCount,
		"primary_lineage":     primary,
		"additional_lineages": additional,
	})
}

// handleExport produces the full JSON export of one mother's subtree
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	motherID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var mother models.MotherWallet
	if err := s.db.First(&mother, motherID).Error; err != nil {
		s.writeError(w, http.StatusNotFound, "mother wallet not found")
		return
	}

	var wallets []models.Wallet
	if err := s.db.Where("mother_wallet_id = ?", motherID).
		Order("generation ASC, id ASC").
		Find(&wallets).Error; err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load wallets")
		return
	}

	walletIDs := make([]uint, len(wallets))
	for i, wallet := range wallets {
		walletIDs[i] = wallet.ID
	}

	var transactions []models.Transaction
	var trades []models.Trade
	if len(walletIDs) > 0 {
		s.db.Where("from_wallet_id IN ? OR to_wallet_id IN ?", walletIDs, walletIDs).
			Order("timestamp ASC").Find(&transactions)
		s.db.Where("wallet_id IN ?", walletIDs).
			Order("timestamp ASC").Find(&trades)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"export_version": "2.0",
		"mother_wallet": map[string]interface{}{
			"id":                  mother.ID,
			"address":             mother.Address,
			"label":               mother.Label,
			"total_yaffa_current": mother.TotalYaffaCurrent,
			"total_sol_profit":    mother.TotalSolProfit,
			"total_descendants":   mother.TotalDescendants,
		},
		"wallets":      wallets,
		"transactions": transactions,
		"trades":       trades,
	})
}

// pathID parses the {id} path segment
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// childCounts counts direct children for each wallet in one query
func (s *Server) childCounts(wallets []models.Wallet) map[uint]int64 {
	counts := make(map[uint]int64, len(wallets))
	if len(wallets) == 0 {
		return counts
	}

	ids := make([]uint, len(wallets))
	for i, wallet := range wallets {
		ids[i] = wallet.ID
	}

	var rows []struct {
		ParentWalletID uint
		Children       int64
	}
	s.db.Model(&models.Wallet{}).
		Select("parent_wallet_id, COUNT(*) AS children").
		Where("parent_wallet_id IN ?", ids).
		Group("parent_wallet_id").
		Scan(&rows)

	for _, row := range rows {
		counts[row.ParentWalletID] = row.Children
	}
	return counts
}

type tradePrices struct {
	sell float64
	buy  float64
}

// averageTradePrices computes per-wallet average buy/sell prices
func (s *Server) averageTradePrices(wallets []models.Wallet) map[uint]tradePrices {
	prices := make(map[uint]tradePrices, len(wallets))
	if len(wallets) == 0 {
		return prices
	}

	ids := make([]uint, len(wallets))
	for i, wallet := range wallets {
		ids[i] = wallet.ID
	}

	var rows []struct {
		WalletID  uint
		TradeType string
		AvgPrice  float64
	}
	s.db.Model(&models.Trade{}).
		Select("wallet_id, trade_type, AVG(price_per_token) AS avg_price").
		Where("wallet_id IN ?", ids).
		Group("wallet_id, trade_type").
		Scan(&rows)

	for _, row := range rows {
		price := prices[row.WalletID]
		switch row.TradeType {
		case models.TradeSell:
			price.sell = row.AvgPrice
		case models.TradeBuy:
			price.buy = row.AvgPrice
		}
		prices[row.WalletID] = price
	}
	return prices
}
