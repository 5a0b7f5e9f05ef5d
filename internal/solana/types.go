package solana

import (
	"encoding/json"
	"strconv"
)

// SignatureInfo is one entry of a getSignaturesForAddress page
type SignatureInfo struct {
	Signature          string          `json:"signature"`
	Slot               int64           `json:"slot"`
	Err                json.RawMessage `json:"err"`
	BlockTime          *int64          `json:"blockTime"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// TransactionDetail is a jsonParsed getTransaction result
type TransactionDetail struct {
	Slot        int64       `json:"slot"`
	BlockTime   *int64      `json:"blockTime"`
	Meta        *Meta       `json:"meta"`
	Transaction Transaction `json:"transaction"`
}

// Meta holds the transaction's execution metadata
type Meta struct {
	Err               json.RawMessage `json:"err"`
	Fee               int64           `json:"fee"`
	PreBalances       []int64         `json:"preBalances"`
	PostBalances      []int64         `json:"postBalances"`
	PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
}

// Failed reports whether the transaction errored on-chain
func (m *Meta) Failed() bool {
	return m != nil && len(m.Err) > 0 && string(m.Err) != "null"
}

// TokenBalance is one pre/post token balance snapshot entry
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount is the decimals-aware token amount representation
type UITokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// Value returns the UI-decimal amount. The RPC omits uiAmount for zero
// balances on some providers, so fall back to scaling the raw amount.
func (a UITokenAmount) Value() float64 {
	if a.UIAmount != nil {
		return *a.UIAmount
	}
	raw, err := strconv.ParseFloat(a.Amount, 64)
	if err != nil {
		return 0
	}
	for i := 0; i < a.Decimals; i++ {
		raw /= 10
	}
	return raw
}

// Transaction is the parsed transaction envelope
type Transaction struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

// Message is the parsed transaction message
type Message struct {
	AccountKeys     []AccountKey  `json:"accountKeys"`
	Instructions    []Instruction `json:"instructions"`
	RecentBlockhash string        `json:"recentBlockhash"`
}

// AccountKey is one account referenced by the transaction
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
	Source   string `json:"source"`
}

// Instruction is one top-level parsed instruction
type Instruction struct {
	ProgramID string          `json:"programId"`
	Program   string          `json:"program"`
	Accounts  []string        `json:"accounts"`
	Data      string          `json:"data"`
	Parsed    json.RawMessage `json:"parsed"`
}

// tokenAccount is one getTokenAccountsByOwner value entry
type tokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Program string `json:"program"`
			Parsed  struct {
				Info struct {
					TokenAmount UITokenAmount `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

// tokenAccountsResult is the getTokenAccountsByOwner result envelope
type tokenAccountsResult struct {
	Value []tokenAccount `json:"value"`
}
