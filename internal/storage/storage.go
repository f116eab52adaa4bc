// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/rovshanmuradov/dice-roll/internal/storage/models"
)

// Storage persists the ledger together with a journal of transactions and
// settled bets.
type Storage interface {
	ledger.Store

	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, signature string) (*models.Transaction, error)

	SaveBet(ctx context.Context, bet *models.Bet) error
	ListBets(ctx context.Context, bettor string, limit, offset int) ([]*models.Bet, error)

	RunMigrations() error
	Close() error
}
