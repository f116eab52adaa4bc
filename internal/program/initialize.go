// internal/program/initialize.go
package program

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"go.uber.org/zap"
)

// Initialize records the administrator and the two betting mints and
// provisions the pool accounts. It fails if the state account exists.
func (p *Program) Initialize(tx *ledger.Tx, a InitializeAccounts) error {
	tx.Logf("Program log: Instruction: Initialize")

	if _, err := tx.Signer(a.Authority); err != nil {
		return err
	}
	if !a.State.Equals(p.StateAddress()) {
		return invalidAccount("state", "got %s, expected %s", a.State, p.StateAddress())
	}
	if !a.PoolSolVault.Equals(p.SolVaultAddress()) {
		return invalidAccount("pool_sol_vault", "got %s, expected %s", a.PoolSolVault, p.SolVaultAddress())
	}
	for _, mint := range []solana.PublicKey{a.TokenMintA, a.TokenMintB} {
		if _, err := tx.Mint(mint); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidToken, mint, err)
		}
	}

	state := &PoolState{
		Administrator: a.Authority,
		TokenMintA:    a.TokenMintA,
		TokenMintB:    a.TokenMintB,
	}
	data, err := state.Marshal()
	if err != nil {
		return err
	}
	if err := tx.CreateAccount(a.State, p.id, data); err != nil {
		return fmt.Errorf("failed to create state: %w", err)
	}

	pools := []struct {
		mint, addr solana.PublicKey
		field      string
	}{
		{a.TokenMintA, a.PoolTokenAccountA, "pool_token_account_a"},
		{a.TokenMintB, a.PoolTokenAccountB, "pool_token_account_b"},
	}
	for _, pool := range pools {
		created, err := tx.CreateAssociatedTokenAccount(p.StateAddress(), pool.mint)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", pool.field, err)
		}
		if !created.Equals(pool.addr) {
			return invalidAccount(pool.field, "got %s, expected %s", pool.addr, created)
		}
	}

	if _, exists := tx.Account(a.PoolSolVault); !exists {
		if err := tx.CreateAccount(a.PoolSolVault, solana.SystemProgramID, nil); err != nil {
			return fmt.Errorf("failed to create vault: %w", err)
		}
	}

	tx.Emit(events.PoolInitializedEvent{
		BaseEvent:     events.BaseEvent{EventType: events.PoolInitialized, EventTime: time.Now().UTC()},
		Administrator: a.Authority,
		TokenMintA:    a.TokenMintA,
		TokenMintB:    a.TokenMintB,
	})
	p.logger.Info("Pool initialized",
		zap.String("administrator", a.Authority.String()),
		zap.String("token_mint_a", a.TokenMintA.String()),
		zap.String("token_mint_b", a.TokenMintB.String()))
	return nil
}
