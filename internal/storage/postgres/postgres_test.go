// internal/storage/postgres/postgres_test.go
package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/rovshanmuradov/dice-roll/internal/storage"
	"github.com/rovshanmuradov/dice-roll/internal/storage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "dice.db")
	s, err := NewWithDialector(sqlite.Open(dsn), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadAccounts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	a := ledger.Account{Address: solana.NewWallet().PublicKey(), Owner: solana.SystemProgramID, Lamports: 10}
	b := ledger.Account{Address: solana.NewWallet().PublicKey(), Owner: solana.TokenProgramID, Data: []byte{1, 2, 3}}
	require.NoError(t, s.SaveAccounts(ctx, []ledger.Account{a, b}))

	a.Lamports = 25
	require.NoError(t, s.SaveAccounts(ctx, []ledger.Account{a}))
	require.NoError(t, s.SaveAccounts(ctx, nil))

	loaded, err := s.LoadAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byAddr := map[solana.PublicKey]ledger.Account{}
	for _, acc := range loaded {
		byAddr[acc.Address] = acc
	}
	assert.Equal(t, uint64(25), byAddr[a.Address].Lamports)
	assert.Equal(t, solana.SystemProgramID, byAddr[a.Address].Owner)
	assert.Equal(t, []byte{1, 2, 3}, byAddr[b.Address].Data)
	assert.Equal(t, solana.TokenProgramID, byAddr[b.Address].Owner)
}

func TestBankRestoresFromStorage(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	alice := solana.NewWallet().PublicKey()

	bank := ledger.NewBank(logger, s)
	_, err := bank.Execute(ctx, ledger.ExecOptions{}, func(tx *ledger.Tx) error {
		return tx.Airdrop(alice, 1_000)
	})
	require.NoError(t, err)

	restored := ledger.NewBank(logger, s)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, uint64(1_000), restored.Balance(alice))
}

func TestTransactionsAndBets(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	bettor := solana.NewWallet().PublicKey().String()

	code := uint32(6001)
	require.NoError(t, s.SaveTransaction(ctx, &models.Transaction{
		Signature:   "sig-1",
		Status:      models.StatusFailed,
		ErrorCode:   &code,
		ProcessedAt: time.Now(),
	}))
	got, err := s.GetTransaction(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, code, *got.ErrorCode)

	_, err = s.GetTransaction(ctx, "missing")
	assert.Error(t, err)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveBet(ctx, &models.Bet{
			Bettor:    bettor,
			Currency:  "SOL",
			Amount:    uint64(i + 1),
			SettledAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	bets, err := s.ListBets(ctx, bettor, 2, 0)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Equal(t, uint64(3), bets[0].Amount)
	assert.Equal(t, uint64(2), bets[1].Amount)

	bets, err = s.ListBets(ctx, "nobody", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, bets)

	require.NoError(t, s.SaveBet(ctx, &models.Bet{Bettor: "other", Currency: "SOL", Amount: 9, SettledAt: base}))
	bets, err = s.ListBets(ctx, "", -1, 0)
	require.NoError(t, err)
	assert.Len(t, bets, 4)
}
