// internal/program/program.go
package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"go.uber.org/zap"
)

// Program is the dice roll settlement program. It keeps no mutable state of
// its own: everything lives in ledger accounts passed in with each action.
type Program struct {
	id             solana.PublicKey
	stateAuthority VaultAuthority
	solVault       VaultAuthority
	oracleOwner    solana.PublicKey
	logger         *zap.Logger
}

// Option configures a Program.
type Option func(*Program)

// WithOracleOwner makes the program treat price accounts not owned by owner
// as unreadable.
func WithOracleOwner(owner solana.PublicKey) Option {
	return func(p *Program) {
		p.oracleOwner = owner
	}
}

// New derives the program's authorities for programID.
func New(programID solana.PublicKey, logger *zap.Logger, opts ...Option) (*Program, error) {
	stateAuthority, err := DeriveVaultAuthority(programID, StateSeed)
	if err != nil {
		return nil, err
	}
	solVault, err := DeriveVaultAuthority(programID, VaultSeed)
	if err != nil {
		return nil, err
	}

	p := &Program{
		id:             programID,
		stateAuthority: stateAuthority,
		solVault:       solVault,
		logger:         logger.Named("dice-roll"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ID returns the program address.
func (p *Program) ID() solana.PublicKey {
	return p.id
}

// StateAddress returns the pool state account, which also owns the pool
// token accounts.
func (p *Program) StateAddress() solana.PublicKey {
	return p.stateAuthority.Address()
}

// SolVaultAddress returns the native coin vault.
func (p *Program) SolVaultAddress() solana.PublicKey {
	return p.solVault.Address()
}

// PoolTokenAccount returns the pool's token account for mint.
func (p *Program) PoolTokenAccount(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(p.StateAddress(), mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive pool token account: %w", err)
	}
	return addr, nil
}

// Process decodes and runs one instruction. The executing program recorded
// in tx must be this program.
func (p *Program) Process(tx *ledger.Tx, metas []*solana.AccountMeta, data []byte) error {
	if !tx.ProgramID().Equals(p.id) {
		return fmt.Errorf("%w: executing program %s", ErrInvalidAccount, tx.ProgramID())
	}

	name, args, err := decodeInstruction(data)
	if err != nil {
		return err
	}

	switch name {
	case InstructionInitialize:
		a, err := unpackInitialize(metas)
		if err != nil {
			return err
		}
		return p.Initialize(tx, a)

	case InstructionPlaceTokenBet:
		a, err := unpackPlaceTokenBet(metas)
		if err != nil {
			return err
		}
		amount, err := decodeAmount(args)
		if err != nil {
			return err
		}
		_, err = p.PlaceTokenBet(tx, a, amount)
		return err

	case InstructionPlaceSolBet:
		a, err := unpackPlaceSolBet(metas)
		if err != nil {
			return err
		}
		amount, err := decodeAmount(args)
		if err != nil {
			return err
		}
		_, err = p.PlaceSolBet(tx, a, amount)
		return err

	case InstructionDepositSol:
		a, err := unpackDepositSol(metas)
		if err != nil {
			return err
		}
		amount, err := decodeAmount(args)
		if err != nil {
			return err
		}
		return p.DepositSol(tx, a, amount)

	case InstructionDepositToken:
		a, err := unpackTokenAccounts(metas)
		if err != nil {
			return err
		}
		amount, err := decodeAmount(args)
		if err != nil {
			return err
		}
		return p.DepositToken(tx, a, amount)

	case InstructionWithdrawSol:
		a, err := unpackWithdrawSol(metas)
		if err != nil {
			return err
		}
		_, err = p.WithdrawSol(tx, a)
		return err

	case InstructionWithdrawToken:
		a, err := unpackTokenAccounts(metas)
		if err != nil {
			return err
		}
		_, err = p.WithdrawToken(tx, a)
		return err
	}

	return fmt.Errorf("%w: %s", ErrUnknownInstruction, name)
}

// loadState reads the pool state, refusing any account other than the one
// derived from this program.
func (p *Program) loadState(tx *ledger.Tx, addr solana.PublicKey) (*PoolState, error) {
	if !addr.Equals(p.StateAddress()) {
		return nil, invalidAccount("state", "got %s, expected %s", addr, p.StateAddress())
	}
	acc, ok := tx.Account(addr)
	if !ok {
		return nil, invalidAccount("state", "not initialized")
	}
	if !acc.Owner.Equals(p.id) {
		return nil, invalidAccount("state", "owned by %s", acc.Owner)
	}
	return UnmarshalPoolState(acc.Data)
}

// checkTokenAccounts verifies the pool and user token accounts are the
// associated accounts of the state authority and the user for mint.
func (p *Program) checkTokenAccounts(user, mint, pool, userToken solana.PublicKey) error {
	expectedPool, err := p.PoolTokenAccount(mint)
	if err != nil {
		return err
	}
	if !pool.Equals(expectedPool) {
		return invalidAccount("pool_token_account", "got %s, expected %s", pool, expectedPool)
	}
	expectedUser, _, err := solana.FindAssociatedTokenAddress(user, mint)
	if err != nil {
		return fmt.Errorf("failed to derive user token account: %w", err)
	}
	if !userToken.Equals(expectedUser) {
		return invalidAccount("user_token_account", "got %s, expected %s", userToken, expectedUser)
	}
	return nil
}

// InitializeAccountsFor fills the account list of initialize.
func (p *Program) InitializeAccountsFor(authority, mintA, mintB solana.PublicKey) (InitializeAccounts, error) {
	poolA, err := p.PoolTokenAccount(mintA)
	if err != nil {
		return InitializeAccounts{}, err
	}
	poolB, err := p.PoolTokenAccount(mintB)
	if err != nil {
		return InitializeAccounts{}, err
	}
	return InitializeAccounts{
		Authority:         authority,
		State:             p.StateAddress(),
		TokenMintA:        mintA,
		TokenMintB:        mintB,
		PoolTokenAccountA: poolA,
		PoolTokenAccountB: poolB,
		PoolSolVault:      p.SolVaultAddress(),
	}, nil
}

// TokenAccountsFor fills the account list shared by token deposits and
// withdrawals.
func (p *Program) TokenAccountsFor(authority, mint solana.PublicKey) (TokenAccounts, error) {
	pool, err := p.PoolTokenAccount(mint)
	if err != nil {
		return TokenAccounts{}, err
	}
	user, _, err := solana.FindAssociatedTokenAddress(authority, mint)
	if err != nil {
		return TokenAccounts{}, fmt.Errorf("failed to derive user token account: %w", err)
	}
	return TokenAccounts{
		Authority:        authority,
		State:            p.StateAddress(),
		PoolTokenAccount: pool,
		UserTokenAccount: user,
		BetTokenMint:     mint,
	}, nil
}

// PlaceTokenBetAccountsFor fills the account list of place_token_bet.
func (p *Program) PlaceTokenBetAccountsFor(bettor, mint, oracle solana.PublicKey) (PlaceTokenBetAccounts, error) {
	ta, err := p.TokenAccountsFor(bettor, mint)
	if err != nil {
		return PlaceTokenBetAccounts{}, err
	}
	return PlaceTokenBetAccounts{
		Authority:        bettor,
		State:            ta.State,
		PoolTokenAccount: ta.PoolTokenAccount,
		UserTokenAccount: ta.UserTokenAccount,
		BetTokenMint:     mint,
		Oracle:           oracle,
	}, nil
}

// PlaceSolBetAccountsFor fills the account list of place_sol_bet.
func (p *Program) PlaceSolBetAccountsFor(bettor, oracle solana.PublicKey) PlaceSolBetAccounts {
	return PlaceSolBetAccounts{
		Authority:    bettor,
		State:        p.StateAddress(),
		PoolSolVault: p.SolVaultAddress(),
		Oracle:       oracle,
	}
}
