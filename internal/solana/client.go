package solana

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/wnt/yaffatrack/internal/rpc"
)

// Client is the ledger feed adapter: balances, signature pages and
// transaction bodies for the tracked token, fetched over the endpoint pool.
type Client struct {
	caller *rpc.Caller
	mint   string
	logger zerolog.Logger
}

// NewClient creates a new feed client and verifies RPC connectivity
func NewClient(endpoints []string, mint string, caller *rpc.Caller, logger zerolog.Logger) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	if _, err := solanago.PublicKeyFromBase58(mint); err != nil {
		return nil, fmt.Errorf("invalid token mint %s: %w", mint, err)
	}

	// Check connection by getting the latest block height
	rpcClient := solanarpc.New(endpoints[0])
	_, err := rpcClient.GetBlockHeight(context.Background(), solanarpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Solana RPC: %w", err)
	}

	return &Client{
		caller: caller,
		mint:   mint,
		logger: logger.With().Str("component", "feed").Logger(),
	}, nil
}

// ValidAddress reports whether the given string is a well-formed address
func ValidAddress(address string) bool {
	_, err := solanago.PublicKeyFromBase58(address)
	return err == nil
}

// TokenBalance returns the wallet's current holdings of the tracked token,
// summed across its token accounts. Feed failures degrade to 0 so a single
// bad call never aborts a crawl branch.
func (c *Client) TokenBalance(ctx context.Context, address string) float64 {
	params := []interface{}{
		address,
		map[string]interface{}{"mint": c.mint},
		map[string]interface{}{"encoding": "jsonParsed"},
	}

	var result tokenAccountsResult
	found, err := c.caller.Call(ctx, "getTokenAccountsByOwner", params, &result)
	if err != nil {
		c.logger.Warn().Err(err).Str("wallet", address).Msg("Failed to fetch token balance")
		return 0
	}
	if !found {
		return 0
	}

	total := 0.0
	for _, account := range result.Value {
		total += account.Account.Data.Parsed.Info.TokenAmount.Value()
	}
	return total
}

// Signatures returns one page of the wallet's transaction signatures,
// newest first. An empty before cursor starts from the most recent
// transaction; otherwise the page begins after the given signature.
func (c *Client) Signatures(ctx context.Context, address, before string, limit int) ([]SignatureInfo, error) {
	options := map[string]interface{}{
		"limit":      limit,
		"commitment": "confirmed",
	}
	if before != "" {
		options["before"] = before
	}

	var result []SignatureInfo
	_, err := c.caller.Call(ctx, "getSignaturesForAddress", []interface{}{address, options}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signatures for %s: %w", address, err)
	}

	return result, nil
}

// TransactionDetail fetches the parsed transaction body for a signature.
// Returns nil for signatures the ledger no longer serves.
func (c *Client) TransactionDetail(ctx context.Context, signature string) (*TransactionDetail, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var detail TransactionDetail
	found, err := c.caller.Call(ctx, "getTransaction", params, &detail)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", signature, err)
	}
	if !found {
		return nil, nil
	}

	return &detail, nil
}
