package classifier

import (
	"math"
	"sort"
	"time"

	"github.com/wnt/yaffatrack/internal/solana"
)

const lamportsPerSol = 1e9

// Kind is the outcome of classifying one transaction for one wallet
type Kind int

const (
	// KindNone means the transaction carries nothing relevant for the wallet
	KindNone Kind = iota
	// KindTransfer is a plain token transfer to or from the wallet
	KindTransfer
	// KindTrade is a DEX trade of the token against the native currency
	KindTrade
	// KindComplex is a token movement near a DEX program with no native
	// counter-movement. Low confidence: captured as transfer facts but
	// never recorded as a trade.
	KindComplex
)

// Direction of a transfer relative to the classified wallet
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

// dexPrograms maps known exchange program IDs to a DEX name
var dexPrograms = map[string]string{
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "jupiter",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "raydium",
	"27haf8L6oxUeXrHrgEgsexjSY5hbVUWEmvv9Nyxg8vQv": "raydium",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "raydium",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "orca",
}

// BalanceDelta is the tracked-token balance movement of one account index
type BalanceDelta struct {
	Pre      float64
	Post     float64
	Decimals int
	Owner    string
}

// Change returns the signed post-pre difference
func (d BalanceDelta) Change() float64 {
	return d.Post - d.Pre
}

// TokenDelta is one participant's signed token movement in a transaction
type TokenDelta struct {
	AccountIndex int
	Account      string
	Amount       float64
	Signature    string
	Timestamp    time.Time
	Slot         int64
}

// Transfer describes a classified plain transfer for the wallet
type Transfer struct {
	Direction    Direction
	Counterparty string
	Amount       float64
}

// Trade describes a classified DEX trade for the wallet
type Trade struct {
	Type          string // models.TradeBuy or models.TradeSell
	TokenAmount   float64
	NativeAmount  float64
	PricePerToken float64
	Dex           string
}

// Result is the classification outcome for one (transaction, wallet) pair
type Result struct {
	Kind     Kind
	Transfer *Transfer
	Trade    *Trade
}

// TokenBalanceDeltas builds the per-account-index balance movement of the
// tracked mint from the transaction's pre/post token snapshots. Failed
// transactions yield an empty map.
func TokenBalanceDeltas(tx *solana.TransactionDetail, mint string) map[int]BalanceDelta {
	deltas := make(map[int]BalanceDelta)
	if tx == nil || tx.Meta == nil || tx.Meta.Failed() {
		return deltas
	}

	for _, balance := range tx.Meta.PreTokenBalances {
		if balance.Mint != mint {
			continue
		}
		deltas[balance.AccountIndex] = BalanceDelta{
			Pre:      balance.UITokenAmount.Value(),
			Decimals: balance.UITokenAmount.Decimals,
			Owner:    balance.Owner,
		}
	}

	for _, balance := range tx.Meta.PostTokenBalances {
		if balance.Mint != mint {
			continue
		}
		delta := deltas[balance.AccountIndex]
		delta.Post = balance.UITokenAmount.Value()
		delta.Decimals = balance.UITokenAmount.Decimals
		if balance.Owner != "" {
			delta.Owner = balance.Owner
		}
		deltas[balance.AccountIndex] = delta
	}

	return deltas
}

// ResolveTransfers returns one entry per account whose tracked-token balance
// changed, in ascending account-index order so processing is deterministic.
// Account identity prefers the token-balance owner and falls back to the
// account key at that index.
func ResolveTransfers(tx *solana.TransactionDetail, mint string) []TokenDelta {
	deltas := TokenBalanceDeltas(tx, mint)
	if len(deltas) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(deltas))
	for index := range deltas {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	keys := tx.Transaction.Message.AccountKeys
	signature := ""
	if len(tx.Transaction.Signatures) > 0 {
		signature = tx.Transaction.Signatures[0]
	}

	var transfers []TokenDelta
	for _, index := range indexes {
		delta := deltas[index]
		change := delta.Change()
		if change == 0 {
			continue
		}

		account := delta.Owner
		if account == "" && index < len(keys) {
			account = keys[index].Pubkey
		}
		if account == "" {
			continue
		}

		transfers = append(transfers, TokenDelta{
			AccountIndex: index,
			Account:      account,
			Amount:       change,
			Signature:    signature,
			Timestamp:    BlockTime(tx),
			Slot:         tx.Slot,
		})
	}

	return transfers
}

// NativeChange returns the wallet's native balance movement in SOL. The
// wallet is located by its position among the account keys; 0 when the
// wallet is not a party to the transaction.
func NativeChange(tx *solana.TransactionDetail, address string) float64 {
	if tx == nil || tx.Meta == nil {
		return 0
	}

	for i, key := range tx.Transaction.Message.AccountKeys {
		if key.Pubkey != address {
			continue
		}
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			return 0
		}
		return float64(tx.Meta.PostBalances[i]-tx.Meta.PreBalances[i]) / lamportsPerSol
	}

	return 0
}

// MatchDEX returns the DEX name when any instruction targets a known
// exchange program, or empty when none does.
func MatchDEX(tx *solana.TransactionDetail) string {
	if tx == nil {
		return ""
	}
	for _, instruction := range tx.Transaction.Message.Instructions {
		if dex, ok := dexPrograms[instruction.ProgramID]; ok {
			return dex
		}
	}
	return ""
}

// BlockTime returns the transaction's block time, zero when unknown
func BlockTime(tx *solana.TransactionDetail) time.Time {
	if tx == nil || tx.BlockTime == nil {
		return time.Time{}
	}
	return time.Unix(*tx.BlockTime, 0).UTC()
}

// ClassifyForWallet decides what one transaction means for one wallet:
// nothing, a plain transfer, a DEX trade, or an ambiguous DEX-adjacent
// movement. Deterministic and side-effect free, so reclassifying the same
// transaction always yields the same result.
func ClassifyForWallet(tx *solana.TransactionDetail, wallet, mint string) Result {
	none := Result{Kind: KindNone}
	if tx == nil || tx.Meta == nil || tx.Meta.Failed() {
		return none
	}

	transfers := ResolveTransfers(tx, mint)
	tokenDelta := walletTokenDelta(transfers, wallet)
	if tokenDelta == 0 {
		return none
	}

	nativeDelta := NativeChange(tx, wallet)
	dex := MatchDEX(tx)

	if dex != "" {
		switch {
		case tokenDelta < 0 && nativeDelta > 0:
			return Result{Kind: KindTrade, Trade: newTrade(tradeSell, tokenDelta, nativeDelta, dex)}
		case tokenDelta > 0 && nativeDelta < 0:
			return Result{Kind: KindTrade, Trade: newTrade(tradeBuy, tokenDelta, nativeDelta, dex)}
		default:
			// Token moved next to a DEX program without a native
			// counter-movement for this wallet. Keep the movement as
			// transfer facts but do not record a trade.
			result := classifyTransfer(transfers, wallet, tokenDelta)
			if result.Kind == KindNone {
				return none
			}
			result.Kind = KindComplex
			return result
		}
	}

	return classifyTransfer(transfers, wallet, tokenDelta)
}

const (
	tradeBuy  = "buy"
	tradeSell = "sell"
)

func newTrade(tradeType string, tokenDelta, nativeDelta float64, dex string) *Trade {
	tokenAmount := math.Abs(tokenDelta)
	nativeAmount := math.Abs(nativeDelta)

	price := 0.0
	if tokenAmount != 0 {
		price = nativeAmount / tokenAmount
	}

	return &Trade{
		Type:          tradeType,
		TokenAmount:   tokenAmount,
		NativeAmount:  nativeAmount,
		PricePerToken: price,
		Dex:           dex,
	}
}

// classifyTransfer derives direction and counterparty for a plain transfer.
// The counterparty is the largest-magnitude participant whose delta has the
// opposite sign of the wallet's own.
func classifyTransfer(transfers []TokenDelta, wallet string, tokenDelta float64) Result {
	counterparty := ""
	largest := 0.0

	for _, transfer := range transfers {
		if transfer.Account == wallet {
			continue
		}
		if transfer.Amount*tokenDelta >= 0 {
			continue
		}
		if magnitude := math.Abs(transfer.Amount); magnitude > largest {
			largest = magnitude
			counterparty = transfer.Account
		}
	}

	// No opposite-signed participant, or a self-transfer
	if counterparty == "" || counterparty == wallet {
		return Result{Kind: KindNone}
	}

	direction := DirectionOut
	if tokenDelta > 0 {
		direction = DirectionIn
	}

	return Result{
		Kind: KindTransfer,
		Transfer: &Transfer{
			Direction:    direction,
			Counterparty: counterparty,
			Amount:       math.Abs(tokenDelta),
		},
	}
}

// walletTokenDelta sums the wallet's own signed movement across its accounts
func walletTokenDelta(transfers []TokenDelta, wallet string) float64 {
	total := 0.0
	for _, transfer := range transfers {
		if transfer.Account == wallet {
			total += transfer.Amount
		}
	}
	return total
}
