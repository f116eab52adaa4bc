// internal/storage/journal_test.go
package storage_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/program"
	"github.com/rovshanmuradov/dice-roll/internal/storage"
	"github.com/rovshanmuradov/dice-roll/internal/storage/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestJournalRecordsEvents(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store, err := postgres.NewWithDialector(sqlite.Open(filepath.Join(t.TempDir(), "j.db")), logger)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	defer store.Close()

	bus := events.NewBus(logger, 16)
	journal := storage.NewJournal(store, logger)
	journal.Attach(bus)

	ok := solana.Signature{1}
	bad := solana.Signature{2}
	bettor := solana.NewWallet().PublicKey()
	now := time.Now().UTC()

	require.NoError(t, bus.Publish(events.BetSettledEvent{
		BaseEvent: events.BaseEvent{EventType: events.BetSettled, EventTime: now},
		Bettor:    bettor,
		Currency:  program.WrappedSolMint,
		Amount:    program.SolMinBet,
		Payout:    program.Payout(program.SolMinBet),
		IsWin:     true,
	}))
	require.NoError(t, bus.Publish(events.ActionCompletedEvent{
		BaseEvent:    events.BaseEvent{EventType: events.ActionCompleted, EventTime: now},
		Signature:    ok,
		Instructions: 1,
	}))
	require.NoError(t, bus.Publish(events.ActionFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.ActionFailed, EventTime: now},
		Signature: bad,
		Err:       fmt.Errorf("instruction 0: %w", program.ErrUnauthorized),
	}))
	require.NoError(t, bus.Publish(events.ActionFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.ActionFailed, EventTime: now},
		Signature: solana.Signature{3},
		Err:       errors.New("blockhash not found"),
	}))
	require.NoError(t, bus.Shutdown(context.Background()))
	journal.Detach()

	ctx := context.Background()
	committed, err := store.GetTransaction(ctx, ok.String())
	require.NoError(t, err)
	assert.Equal(t, "committed", committed.Status)
	assert.Equal(t, 1, committed.Instructions)

	failed, err := store.GetTransaction(ctx, bad.String())
	require.NoError(t, err)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, uint32(program.CodeUnauthorized), *failed.ErrorCode)
	assert.Contains(t, failed.ErrorMessage, "Unauthorized")

	hostFailure, err := store.GetTransaction(ctx, solana.Signature{3}.String())
	require.NoError(t, err)
	assert.Nil(t, hostFailure.ErrorCode)

	bets, err := store.ListBets(ctx, bettor.String(), 10, 0)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.True(t, bets[0].IsWin)
	assert.Equal(t, program.Payout(program.SolMinBet), bets[0].Payout)
}
