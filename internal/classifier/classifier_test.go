package classifier

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/yaffatrack/internal/solana"
)

const (
	testMint   = "YaffaMint111111111111111111111111111111111"
	raydiumAMM = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	jupiterV6  = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

type balanceEntry struct {
	index  int
	owner  string
	amount float64
}

type txFixture struct {
	failed       bool
	accountKeys  []string
	preTokens    []balanceEntry
	postTokens   []balanceEntry
	preLamports  []int64
	postLamports []int64
	programs     []string
}

func buildTx(f txFixture) *solana.TransactionDetail {
	blockTime := int64(1667289600)

	meta := &solana.Meta{
		PreBalances:  f.preLamports,
		PostBalances: f.postLamports,
	}
	if f.failed {
		meta.Err = json.RawMessage(`{"InstructionError":[0,"Custom"]}`)
	}

	toBalances := func(entries []balanceEntry) []solana.TokenBalance {
		balances := make([]solana.TokenBalance, 0, len(entries))
		for _, entry := range entries {
			amount := entry.amount
			balances = append(balances, solana.TokenBalance{
				AccountIndex:  entry.index,
				Mint:          testMint,
				Owner:         entry.owner,
				UITokenAmount: solana.UITokenAmount{UIAmount: &amount, Decimals: 6},
			})
		}
		return balances
	}
	meta.PreTokenBalances = toBalances(f.preTokens)
	meta.PostTokenBalances = toBalances(f.postTokens)

	keys := make([]solana.AccountKey, len(f.accountKeys))
	for i, key := range f.accountKeys {
		keys[i] = solana.AccountKey{Pubkey: key}
	}

	instructions := make([]solana.Instruction, len(f.programs))
	for i, program := range f.programs {
		instructions[i] = solana.Instruction{ProgramID: program}
	}

	return &solana.TransactionDetail{
		Slot:      12345678,
		BlockTime: &blockTime,
		Meta:      meta,
		Transaction: solana.Transaction{
			Signatures: []string{"testSignature"},
			Message: solana.Message{
				AccountKeys:  keys,
				Instructions: instructions,
			},
		},
	}
}

func TestClassifySellTrade(t *testing.T) {
	// Wallet sends 100 tokens into a Raydium pool and gets 2.5 SOL back
	tx := buildTx(txFixture{
		accountKeys:  []string{"walletA", "poolVault", "poolAuthority"},
		preTokens:    []balanceEntry{{1, "walletA", 100}, {2, "poolAuthority", 5000}},
		postTokens:   []balanceEntry{{1, "walletA", 0}, {2, "poolAuthority", 5100}},
		preLamports:  []int64{1_000_000_000, 0, 0},
		postLamports: []int64{3_500_000_000, 0, 0},
		programs:     []string{raydiumAMM},
	})

	result := ClassifyForWallet(tx, "walletA", testMint)
	require.Equal(t, KindTrade, result.Kind)
	require.NotNil(t, result.Trade)

	assert.Equal(t, "sell", result.Trade.Type)
	assert.Equal(t, 100.0, result.Trade.TokenAmount)
	assert.Equal(t, 2.5, result.Trade.NativeAmount)
	assert.Equal(t, 0.025, result.Trade.PricePerToken)
	assert.Equal(t, "raydium", result.Trade.Dex)
}

func TestClassifyBuyTrade(t *testing.T) {
	tx := buildTx(txFixture{
		accountKeys:  []string{"walletA", "poolVault", "poolAuthority"},
		preTokens:    []balanceEntry{{1, "walletA", 0}, {2, "poolAuthority", 5000}},
		postTokens:   []balanceEntry{{1, "walletA", 200}, {2, "poolAuthority", 4800}},
		preLamports:  []int64{5_000_000_000, 0, 0},
		postLamports: []int64{4_000_000_000, 0, 0},
		programs:     []string{jupiterV6},
	})

	result := ClassifyForWallet(tx, "walletA", testMint)
	require.Equal(t, KindTrade, result.Kind)
	require.NotNil(t, result.Trade)

	assert.Equal(t, "buy", result.Trade.Type)
	assert.Equal(t, 200.0, result.Trade.TokenAmount)
	assert.Equal(t, 1.0, result.Trade.NativeAmount)
	assert.Equal(t, 0.005, result.Trade.PricePerToken)
	assert.Equal(t, "jupiter", result.Trade.Dex)
}

func TestClassifyPlainTransfer(t *testing.T) {
	tx := buildTx(txFixture{
		accountKeys:  []string{"walletA", "tokenAcctA", "tokenAcctB"},
		preTokens:    []balanceEntry{{1, "walletA", 80}, {2, "walletB", 0}},
		postTokens:   []balanceEntry{{1, "walletA", 30}, {2, "walletB", 50}},
		preLamports:  []int64{1_000_000_000, 0, 0},
		postLamports: []int64{999_995_000, 0, 0},
	})

	t.Run("sender side", func(t *testing.T) {
		result := ClassifyForWallet(tx, "walletA", testMint)
		require.Equal(t, KindTransfer, result.Kind)
		require.NotNil(t, result.Transfer)

		assert.Equal(t, DirectionOut, result.Transfer.Direction)
		assert.Equal(t, "walletB", result.Transfer.Counterparty)
		assert.Equal(t, 50.0, result.Transfer.Amount)
	})

	t.Run("recipient side", func(t *testing.T) {
		result := ClassifyForWallet(tx, "walletB", testMint)
		require.Equal(t, KindTransfer, result.Kind)
		require.NotNil(t, result.Transfer)

		assert.Equal(t, DirectionIn, result.Transfer.Direction)
		assert.Equal(t, "walletA", result.Transfer.Counterparty)
		assert.Equal(t, 50.0, result.Transfer.Amount)
	})
}

func TestClassifyMultiPartyPicksLargestCounterparty(t *testing.T) {
	// walletA receives from two senders; the bigger one is the counterparty
	tx := buildTx(txFixture{
		accountKeys: []string{"walletA", "acctA", "acctB", "acctC"},
		preTokens:   []balanceEntry{{1, "walletA", 0}, {2, "walletB", 100}, {3, "walletC", 40}},
		postTokens:  []balanceEntry{{1, "walletA", 90}, {2, "walletB", 30}, {3, "walletC", 20}},
	})

	result := ClassifyForWallet(tx, "walletA", testMint)
	require.Equal(t, KindTransfer, result.Kind)
	assert.Equal(t, "walletB", result.Transfer.Counterparty)
	assert.Equal(t, 90.0, result.Transfer.Amount)
}

func TestClassifyFailedTransaction(t *testing.T) {
	tx := buildTx(txFixture{
		failed:      true,
		accountKeys: []string{"walletA", "tokenAcctA", "tokenAcctB"},
		preTokens:   []balanceEntry{{1, "walletA", 80}},
		postTokens:  []balanceEntry{{1, "walletA", 30}},
	})

	result := ClassifyForWallet(tx, "walletA", testMint)
	assert.Equal(t, KindNone, result.Kind)
	assert.Empty(t, TokenBalanceDeltas(tx, testMint))
}

func TestClassifySelfTransfer(t *testing.T) {
	// Movement between two accounts of the same owner nets to zero
	tx := buildTx(txFixture{
		accountKeys: []string{"walletA", "acctOne", "acctTwo"},
		preTokens:   []balanceEntry{{1, "walletA", 80}, {2, "walletA", 0}},
		postTokens:  []balanceEntry{{1, "walletA", 30}, {2, "walletA", 50}},
	})

	result := ClassifyForWallet(tx, "walletA", testMint)
	assert.Equal(t, KindNone, result.Kind)
}

func TestClassifyComplexDexMovement(t *testing.T) {
	// Token moved through a DEX program but no native counter-movement:
	// flagged low-confidence, still captured as a transfer
	tx := buildTx(txFixture{
		accountKeys:  []string{"walletA", "tokenAcctA", "poolVault"},
		preTokens:    []balanceEntry{{1, "walletA", 100}, {2, "poolOwner", 0}},
		postTokens:   []balanceEntry{{1, "walletA", 0}, {2, "poolOwner", 100}},
		preLamports:  []int64{1_000_000_000, 0, 0},
		postLamports: []int64{1_000_000_000, 0, 0},
		programs:     []string{raydiumAMM},
	})

	result := ClassifyForWallet(tx, "walletA", testMint)
	require.Equal(t, KindComplex, result.Kind)
	require.NotNil(t, result.Transfer)
	assert.Nil(t, result.Trade)

	assert.Equal(t, DirectionOut, result.Transfer.Direction)
	assert.Equal(t, 100.0, result.Transfer.Amount)
}

func TestClassifyIsDeterministic(t *testing.T) {
	tx := buildTx(txFixture{
		accountKeys:  []string{"walletA", "tokenAcctA", "tokenAcctB"},
		preTokens:    []balanceEntry{{1, "walletA", 80}, {2, "walletB", 0}},
		postTokens:   []balanceEntry{{1, "walletA", 30}, {2, "walletB", 50}},
		preLamports:  []int64{1_000_000_000, 0, 0},
		postLamports: []int64{999_995_000, 0, 0},
	})

	first := ClassifyForWallet(tx, "walletA", testMint)
	second := ClassifyForWallet(tx, "walletA", testMint)
	assert.Equal(t, first, second)
}

func TestResolveTransfers(t *testing.T) {
	tx := buildTx(txFixture{
		accountKeys: []string{"feePayer", "acctHigh", "acctLow"},
		preTokens:   []balanceEntry{{2, "walletB", 10}, {1, "walletA", 60}},
		postTokens:  []balanceEntry{{2, "walletB", 60}, {1, "walletA", 10}},
	})

	transfers := ResolveTransfers(tx, testMint)
	require.Len(t, transfers, 2)

	// Stable ascending account-index order
	assert.Equal(t, 1, transfers[0].AccountIndex)
	assert.Equal(t, "walletA", transfers[0].Account)
	assert.Equal(t, -50.0, transfers[0].Amount)
	assert.Equal(t, 2, transfers[1].AccountIndex)
	assert.Equal(t, 50.0, transfers[1].Amount)

	for _, transfer := range transfers {
		assert.Equal(t, "testSignature", transfer.Signature)
		assert.Equal(t, int64(12345678), transfer.Slot)
		assert.Equal(t, time.Unix(1667289600, 0).UTC(), transfer.Timestamp)
	}
}

func TestResolveTransfersOwnerFallback(t *testing.T) {
	// Without an owner on the snapshot, identity falls back to the account key
	tx := buildTx(txFixture{
		accountKeys: []string{"feePayer", "tokenAcctKey", "otherAcct"},
		preTokens:   []balanceEntry{{1, "", 10}, {2, "walletB", 30}},
		postTokens:  []balanceEntry{{1, "", 30}, {2, "walletB", 10}},
	})

	transfers := ResolveTransfers(tx, testMint)
	require.Len(t, transfers, 2)
	assert.Equal(t, "tokenAcctKey", transfers[0].Account)
}

func TestTokenBalanceDeltasIgnoresOtherMints(t *testing.T) {
	tx := buildTx(txFixture{
		accountKeys: []string{"walletA", "tokenAcctA"},
		preTokens:   []balanceEntry{{1, "walletA", 10}},
		postTokens:  []balanceEntry{{1, "walletA", 40}},
	})
	tx.Meta.PreTokenBalances[0].Mint = "OtherMint1111111111111111111111111111111111"
	tx.Meta.PostTokenBalances[0].Mint = "OtherMint1111111111111111111111111111111111"

	assert.Empty(t, TokenBalanceDeltas(tx, testMint))
}

func TestNativeChange(t *testing.T) {
	tx := buildTx(txFixture{
		accountKeys:  []string{"walletA", "walletB"},
		preLamports:  []int64{2_000_000_000, 500_000_000},
		postLamports: []int64{1_250_000_000, 1_250_000_000},
	})

	assert.Equal(t, -0.75, NativeChange(tx, "walletA"))
	assert.Equal(t, 0.75, NativeChange(tx, "walletB"))
	assert.Equal(t, 0.0, NativeChange(tx, "notAParty"))
	assert.Equal(t, 0.0, NativeChange(nil, "walletA"))
}

func TestMatchDEX(t *testing.T) {
	assert.Equal(t, "raydium", MatchDEX(buildTx(txFixture{programs: []string{"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", raydiumAMM}})))
	assert.Equal(t, "jupiter", MatchDEX(buildTx(txFixture{programs: []string{jupiterV6}})))
	assert.Equal(t, "", MatchDEX(buildTx(txFixture{programs: []string{"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"}})))
}
