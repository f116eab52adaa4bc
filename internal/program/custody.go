// internal/program/custody.go
package program

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"go.uber.org/zap"
)

// DepositSol moves lamports from the depositor into the native vault.
func (p *Program) DepositSol(tx *ledger.Tx, a DepositSolAccounts, amount uint64) error {
	tx.Logf("Program log: Instruction: DepositSol")

	depositor, err := tx.Signer(a.Authority)
	if err != nil {
		return err
	}
	if !a.PoolSolVault.Equals(p.solVault.Address()) {
		return invalidAccount("pool_sol_vault", "got %s, expected %s", a.PoolSolVault, p.solVault.Address())
	}
	if err := tx.Transfer(depositor, a.PoolSolVault, amount); err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}

	p.custodyEvent(tx, events.FundsDeposited, a.Authority, WrappedSolMint, amount)
	return nil
}

// DepositToken moves tokens of a registered mint into the pool.
func (p *Program) DepositToken(tx *ledger.Tx, a TokenAccounts, amount uint64) error {
	tx.Logf("Program log: Instruction: DepositToken")

	depositor, err := tx.Signer(a.Authority)
	if err != nil {
		return err
	}
	state, err := p.loadState(tx, a.State)
	if err != nil {
		return err
	}
	if !state.IsRegisteredMint(a.BetTokenMint) {
		return fmt.Errorf("%w: %s", ErrInvalidToken, a.BetTokenMint)
	}
	if err := p.checkTokenAccounts(a.Authority, a.BetTokenMint, a.PoolTokenAccount, a.UserTokenAccount); err != nil {
		return err
	}
	if err := tx.TransferTokens(a.UserTokenAccount, a.PoolTokenAccount, depositor, amount); err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}

	p.custodyEvent(tx, events.FundsDeposited, a.Authority, a.BetTokenMint, amount)
	return nil
}

// WithdrawSol sweeps the whole native vault to the administrator.
func (p *Program) WithdrawSol(tx *ledger.Tx, a WithdrawSolAccounts) (uint64, error) {
	tx.Logf("Program log: Instruction: WithdrawSol")

	if _, err := p.checkAdministrator(tx, a.Authority, a.State); err != nil {
		return 0, err
	}
	if !a.PoolSolVault.Equals(p.solVault.Address()) {
		return 0, invalidAccount("pool_sol_vault", "got %s, expected %s", a.PoolSolVault, p.solVault.Address())
	}

	signer, err := p.solVault.Authorize(tx)
	if err != nil {
		return 0, err
	}
	amount := tx.Balance(a.PoolSolVault)
	if amount > 0 {
		if err := tx.Transfer(signer, a.Authority, amount); err != nil {
			return 0, fmt.Errorf("failed to withdraw: %w", err)
		}
	}

	p.custodyEvent(tx, events.FundsWithdrawn, a.Authority, WrappedSolMint, amount)
	return amount, nil
}

// WithdrawToken sweeps the pool's whole balance of a registered mint to the
// administrator's token account.
func (p *Program) WithdrawToken(tx *ledger.Tx, a TokenAccounts) (uint64, error) {
	tx.Logf("Program log: Instruction: WithdrawToken")

	state, err := p.checkAdministrator(tx, a.Authority, a.State)
	if err != nil {
		return 0, err
	}
	if !state.IsRegisteredMint(a.BetTokenMint) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidToken, a.BetTokenMint)
	}
	if err := p.checkTokenAccounts(a.Authority, a.BetTokenMint, a.PoolTokenAccount, a.UserTokenAccount); err != nil {
		return 0, err
	}

	pool, err := tx.TokenAccount(a.PoolTokenAccount)
	if err != nil {
		return 0, err
	}
	signer, err := p.stateAuthority.Authorize(tx)
	if err != nil {
		return 0, err
	}
	if err := tx.TransferTokens(a.PoolTokenAccount, a.UserTokenAccount, signer, pool.Amount); err != nil {
		return 0, fmt.Errorf("failed to withdraw: %w", err)
	}

	p.custodyEvent(tx, events.FundsWithdrawn, a.Authority, a.BetTokenMint, pool.Amount)
	return pool.Amount, nil
}

func (p *Program) checkAdministrator(tx *ledger.Tx, caller, stateAddr solana.PublicKey) (*PoolState, error) {
	if _, err := tx.Signer(caller); err != nil {
		return nil, err
	}
	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return nil, err
	}
	if !state.IsAdministrator(caller) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return state, nil
}

func (p *Program) custodyEvent(tx *ledger.Tx, typ events.EventType, who, currency solana.PublicKey, amount uint64) {
	tx.Emit(events.CustodyEvent{
		BaseEvent: events.BaseEvent{EventType: typ, EventTime: time.Now().UTC()},
		Account:   who,
		Currency:  currency,
		Amount:    amount,
	})
	p.logger.Debug("Custody operation",
		zap.String("type", string(typ)),
		zap.String("account", who.String()),
		zap.String("currency", currency.String()),
		zap.Uint64("amount", amount))
}
