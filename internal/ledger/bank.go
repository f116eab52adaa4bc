// internal/ledger/bank.go
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Store persists committed accounts. SaveAccounts must be atomic: either
// every account is written or none is.
type Store interface {
	LoadAccounts(ctx context.Context) ([]Account, error)
	SaveAccounts(ctx context.Context, accounts []Account) error
}

// Bank is the in-process account ledger. Every mutation goes through
// Execute, which runs one action at a time on a copy-on-write overlay and
// applies it only when the action succeeds.
type Bank struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*Account
	store    Store
	logger   *zap.Logger
}

// ExecOptions describes the host context of a single action.
type ExecOptions struct {
	// Signers are keys whose signatures were verified by the caller.
	Signers []solana.PublicKey
}

// Receipt holds what an action produced. Events are only set for committed
// actions.
type Receipt struct {
	Logs    []string
	Events  []interface{}
	Touched []solana.PublicKey
}

// NewBank creates an empty bank. store may be nil for a purely in-memory ledger.
func NewBank(logger *zap.Logger, store Store) *Bank {
	return &Bank{
		accounts: make(map[solana.PublicKey]*Account),
		store:    store,
		logger:   logger.Named("bank"),
	}
}

// Load replaces in-memory state with the accounts held by the store.
func (b *Bank) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	accounts, err := b.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.accounts = make(map[solana.PublicKey]*Account, len(accounts))
	for i := range accounts {
		acc := accounts[i]
		b.accounts[acc.Address] = acc.clone()
	}

	b.logger.Info("Accounts loaded", zap.Int("count", len(accounts)))
	return nil
}

// Execute runs fn as one atomic action. If fn returns an error nothing it
// did is kept.
func (b *Bank) Execute(ctx context.Context, opts ExecOptions, fn func(tx *Tx) error) (*Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := newTx(b, opts.Signers)
	if err := fn(tx); err != nil {
		b.logger.Debug("Action rolled back", zap.Error(err), zap.Int("touched", len(tx.order)))
		return &Receipt{Logs: tx.logs}, err
	}

	dirty := tx.dirty()
	if b.store != nil && len(dirty) > 0 {
		if err := b.store.SaveAccounts(ctx, dirty); err != nil {
			b.logger.Error("Failed to persist action, rolling back", zap.Error(err))
			return &Receipt{Logs: tx.logs}, fmt.Errorf("failed to persist accounts: %w", err)
		}
	}

	touched := make([]solana.PublicKey, 0, len(dirty))
	for i := range dirty {
		acc := dirty[i]
		b.accounts[acc.Address] = acc.clone()
		touched = append(touched, acc.Address)
	}

	return &Receipt{Logs: tx.logs, Events: tx.events, Touched: touched}, nil
}

// Account returns a copy of the committed account at addr.
func (b *Bank) Account(addr solana.PublicKey) (Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return *acc.clone(), true
}

// Balance returns the committed lamports of addr, zero if it does not exist.
func (b *Bank) Balance(addr solana.PublicKey) uint64 {
	acc, ok := b.Account(addr)
	if !ok {
		return 0
	}
	return acc.Lamports
}

// TokenBalance returns the committed amount held by a token account.
func (b *Bank) TokenBalance(addr solana.PublicKey) (uint64, error) {
	acc, ok := b.Account(addr)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return 0, fmt.Errorf("%w: %s is not a token account", ErrInvalidOwner, addr)
	}
	ta, err := DecodeTokenAccount(acc.Data)
	if err != nil {
		return 0, err
	}
	return ta.Amount, nil
}
