package crawler

import (
	"fmt"

	"github.com/wnt/yaffatrack/internal/metrics"
	"github.com/wnt/yaffatrack/internal/models"
	"gorm.io/gorm"
)

// EnsureMother registers a seed address, creating the MotherWallet row and
// its generation-0 Wallet row when new. Returns the mother and whether it
// was newly created.
func (c *Crawler) EnsureMother(address string) (*models.MotherWallet, bool, error) {
	var mother models.MotherWallet
	err := c.db.Where("address = ?", address).First(&mother).Error
	if err == nil {
		return &mother, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, fmt.Errorf("failed to look up mother wallet: %w", err)
	}

	mother = models.MotherWallet{
		Address: address,
		Label:   motherLabel(address),
	}
	if err := c.db.Create(&mother).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create mother wallet: %w", err)
	}

	metrics.RecordWalletDiscovered("mother")
	return &mother, true, nil
}

// motherLabel derives a stable human-readable label from the seed address
func motherLabel(address string) string {
	return fmt.Sprintf("Mother %s", prefix(address, 8))
}

// getOrCreateCrawlWallet returns the Wallet row for a crawl target, creating
// it with the traversal's attribution when it does not exist yet. Existing
// rows keep their attribution: it is decided once, at first discovery.
func (c *Crawler) getOrCreateCrawlWallet(address string, parentID, motherID *uint, generation int) (*models.Wallet, error) {
	var wallet models.Wallet
	err := c.db.Where("address = ?", address).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to look up wallet %s: %w", address, err)
	}

	wallet = models.Wallet{
		Address:            address,
		MotherWalletID:     motherID,
		ParentWalletID:     parentID,
		DiscoveredByMother: motherID,
		Generation:         generation,
	}
	if err := c.db.Create(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to create wallet %s: %w", address, err)
	}

	metrics.RecordWalletDiscovered("descendant")
	return &wallet, nil
}

// attribution is the lineage placement decided for a newly created wallet
type attribution struct {
	motherID   *uint
	parentID   *uint
	generation int
	external   bool
}

// decideAttribution places a newly discovered counterparty in the lineage
// graph. Senders with no lineage context are external; recipients inherit
// the sender's lineage when it carries one, root a new lineage under the
// discovering mother otherwise, and fall back to external.
func decideAttribution(isSender bool, sender *models.Wallet, discoveringMotherID *uint) attribution {
	switch {
	case isSender:
		return attribution{generation: models.ExternalGeneration, external: true}
	case sender != nil && sender.MotherWalletID != nil && !sender.IsExternal:
		return attribution{
			motherID:   sender.MotherWalletID,
			parentID:   &sender.ID,
			generation: sender.Generation + 1,
		}
	case discoveringMotherID != nil:
		return attribution{motherID: discoveringMotherID, generation: 1}
	default:
		return attribution{generation: models.ExternalGeneration, external: true}
	}
}

// getOrCreateWalletForTransfer resolves the counterparty of a transfer.
// Existing wallets are returned unchanged. New senders with no lineage
// context are external; new recipients inherit the sender's lineage when
// the sender carries one, otherwise they root a new lineage under the
// discovering mother at generation 1, or fall back to external.
func (c *Crawler) getOrCreateWalletForTransfer(address string, discoveringMotherID *uint, isSender bool, sender *models.Wallet) (*models.Wallet, error) {
	var wallet models.Wallet
	err := c.db.Where("address = ?", address).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to look up wallet %s: %w", address, err)
	}

	attribution := decideAttribution(isSender, sender, discoveringMotherID)
	wallet = models.Wallet{
		Address:            address,
		DiscoveredByMother: discoveringMotherID,
		MotherWalletID:     attribution.motherID,
		ParentWalletID:     attribution.parentID,
		Generation:         attribution.generation,
		IsExternal:         attribution.external,
	}

	if err := c.db.Create(&wallet).Error; err != nil {
		if isDuplicateKey(err) {
			// Lost a race with a concurrent branch discovering the same
			// address, reload the winner
			if reloadErr := c.db.Where("address = ?", address).First(&wallet).Error; reloadErr == nil {
				return &wallet, nil
			}
		}
		return nil, fmt.Errorf("failed to create wallet %s: %w", address, err)
	}

	if wallet.IsExternal {
		metrics.RecordWalletDiscovered("external")
	} else {
		metrics.RecordWalletDiscovered("descendant")
	}
	return &wallet, nil
}

// needsLineageMembership reports whether reaching recipient from
// discoveringMotherID reveals an additional lineage membership: the
// recipient must already belong to a different primary mother, and only a
// lineage-attributed sender establishes a new membership.
func needsLineageMembership(recipient, sender *models.Wallet, discoveringMotherID *uint) bool {
	if recipient == nil || discoveringMotherID == nil {
		return false
	}
	if recipient.MotherWalletID == nil || *recipient.MotherWalletID == *discoveringMotherID {
		return false
	}
	if sender == nil || sender.MotherWalletID == nil || sender.IsExternal {
		return false
	}
	return true
}

// handleMultiLineageMembership records that a wallet already owned by one
// lineage was also reached from another mother's tree. The insert is
// idempotent per (wallet, mother).
func (c *Crawler) handleMultiLineageMembership(recipient, sender *models.Wallet, discoveringMotherID *uint) error {
	if !needsLineageMembership(recipient, sender, discoveringMotherID) {
		return nil
	}

	var existing models.WalletLineage
	err := c.db.Where("wallet_id = ? AND mother_wallet_id = ?", recipient.ID, *discoveringMotherID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to look up wallet lineage: %w", err)
	}

	lineage := models.WalletLineage{
		WalletID:       recipient.ID,
		MotherWalletID: *discoveringMotherID,
		ConnectionType: "transfer",
	}
	if err := c.db.Create(&lineage).Error; err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("failed to create wallet lineage: %w", err)
	}

	c.logger.Info().
		Str("wallet", recipient.Address).
		Uint("primary_mother", *recipient.MotherWalletID).
		Uint("new_mother", *discoveringMotherID).
		Msg("Recorded multi-lineage membership")

	return nil
}
