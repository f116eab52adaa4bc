// internal/program/fixture_test.go
package program

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testOracleOwner = solana.MustPublicKeyFromBase58("FsJ3A3u2vn5cTVofAjvy6y5kwABJAqYWpe4975bi2epH")

type fixture struct {
	t      *testing.T
	bank   *ledger.Bank
	prog   *Program
	admin  solana.PublicKey
	bettor solana.PublicKey
	mintA  solana.PublicKey
	mintB  solana.PublicKey
	oracle solana.PublicKey
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

// newFixture creates both mints, funds the admin and a bettor, and sets the
// oracle to price. The pool is not initialized.
func newFixture(t *testing.T, price int64) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	prog, err := New(DefaultProgramID, logger, WithOracleOwner(testOracleOwner))
	require.NoError(t, err)

	f := &fixture{
		t:      t,
		bank:   ledger.NewBank(logger, nil),
		prog:   prog,
		admin:  newKey(t),
		bettor: newKey(t),
		mintA:  newKey(t),
		mintB:  newKey(t),
		oracle: newKey(t),
	}

	f.host(func(tx *ledger.Tx) error {
		for _, mint := range []solana.PublicKey{f.mintA, f.mintB} {
			if err := tx.CreateMint(mint, f.admin, 6); err != nil {
				return err
			}
		}
		for _, who := range []solana.PublicKey{f.admin, f.bettor} {
			if err := tx.Airdrop(who, 1_000*SolMinBet); err != nil {
				return err
			}
			for _, mint := range []solana.PublicKey{f.mintA, f.mintB} {
				if _, err := tx.CreateAssociatedTokenAccount(who, mint); err != nil {
					return err
				}
			}
		}
		return nil
	})
	f.mintTo(f.mintA, f.bettor, 1_000*TokenMinBet)
	f.mintTo(f.mintA, f.admin, 1_000*TokenMinBet)
	f.setPrice(price)
	return f
}

// host runs setup work that must succeed.
func (f *fixture) host(fn func(tx *ledger.Tx) error) {
	f.t.Helper()
	_, err := f.bank.Execute(context.Background(), ledger.ExecOptions{Signers: []solana.PublicKey{f.admin}}, fn)
	require.NoError(f.t, err)
}

func (f *fixture) mintTo(mint, owner solana.PublicKey, amount uint64) {
	f.t.Helper()
	f.host(func(tx *ledger.Tx) error {
		authority, err := tx.Signer(f.admin)
		if err != nil {
			return err
		}
		return tx.MintTo(mint, f.ata(owner, mint), authority, amount)
	})
}

func (f *fixture) setPrice(price int64) {
	f.t.Helper()
	f.host(func(tx *ledger.Tx) error {
		tx.PutAccount(ledger.Account{Address: f.oracle, Owner: testOracleOwner, Data: NewPriceAccountData(price)})
		return nil
	})
}

// exec runs fn as the dice program with signer as the only signature.
func (f *fixture) exec(signer solana.PublicKey, fn func(tx *ledger.Tx) error) (*ledger.Receipt, error) {
	return f.bank.Execute(context.Background(), ledger.ExecOptions{Signers: []solana.PublicKey{signer}}, func(tx *ledger.Tx) error {
		return tx.Invoke(f.prog.ID(), fn)
	})
}

func (f *fixture) initialize() {
	f.t.Helper()
	a, err := f.prog.InitializeAccountsFor(f.admin, f.mintA, f.mintB)
	require.NoError(f.t, err)
	_, err = f.exec(f.admin, func(tx *ledger.Tx) error { return f.prog.Initialize(tx, a) })
	require.NoError(f.t, err)
}

// fundPool deposits amount of mint A into the pool as the admin.
func (f *fixture) fundPool(amount uint64) {
	f.t.Helper()
	a, err := f.prog.TokenAccountsFor(f.admin, f.mintA)
	require.NoError(f.t, err)
	_, err = f.exec(f.admin, func(tx *ledger.Tx) error { return f.prog.DepositToken(tx, a, amount) })
	require.NoError(f.t, err)
}

func (f *fixture) fundSolVault(amount uint64) {
	f.t.Helper()
	_, err := f.exec(f.admin, func(tx *ledger.Tx) error {
		return f.prog.DepositSol(tx, DepositSolAccounts{Authority: f.admin, PoolSolVault: f.prog.SolVaultAddress()}, amount)
	})
	require.NoError(f.t, err)
}

func (f *fixture) ata(owner, mint solana.PublicKey) solana.PublicKey {
	f.t.Helper()
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(f.t, err)
	return addr
}

func (f *fixture) tokenBalance(owner, mint solana.PublicKey) uint64 {
	f.t.Helper()
	amount, err := f.bank.TokenBalance(f.ata(owner, mint))
	require.NoError(f.t, err)
	return amount
}

func (f *fixture) poolBalance(mint solana.PublicKey) uint64 {
	f.t.Helper()
	addr, err := f.prog.PoolTokenAccount(mint)
	require.NoError(f.t, err)
	amount, err := f.bank.TokenBalance(addr)
	require.NoError(f.t, err)
	return amount
}

func (f *fixture) placeTokenBet(mint solana.PublicKey, amount uint64) (BetResult, error) {
	f.t.Helper()
	a, err := f.prog.PlaceTokenBetAccountsFor(f.bettor, mint, f.oracle)
	require.NoError(f.t, err)

	var result BetResult
	_, err = f.exec(f.bettor, func(tx *ledger.Tx) error {
		var err error
		result, err = f.prog.PlaceTokenBet(tx, a, amount)
		return err
	})
	return result, err
}

func (f *fixture) placeSolBet(amount uint64) (BetResult, error) {
	f.t.Helper()
	var result BetResult
	_, err := f.exec(f.bettor, func(tx *ledger.Tx) error {
		var err error
		result, err = f.prog.PlaceSolBet(tx, f.prog.PlaceSolBetAccountsFor(f.bettor, f.oracle), amount)
		return err
	})
	return result, err
}
