package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	saved   []Account
	loaded  []Account
	saveErr error
}

func (m *memStore) LoadAccounts(context.Context) ([]Account, error) {
	return m.loaded, nil
}

func (m *memStore) SaveAccounts(_ context.Context, accounts []Account) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, accounts...)
	return nil
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

func TestExecuteCommitsOnSuccess(t *testing.T) {
	bank := NewBank(zap.NewNop(), nil)
	alice := newKey(t)
	bob := newKey(t)

	_, err := bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		return tx.Airdrop(alice, 1_000)
	})
	require.NoError(t, err)

	_, err = bank.Execute(context.Background(), ExecOptions{Signers: []solana.PublicKey{alice}}, func(tx *Tx) error {
		s, err := tx.Signer(alice)
		if err != nil {
			return err
		}
		return tx.Transfer(s, bob, 400)
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(600), bank.Balance(alice))
	assert.Equal(t, uint64(400), bank.Balance(bob))
}

func TestExecuteRollsBackEverythingOnError(t *testing.T) {
	bank := NewBank(zap.NewNop(), nil)
	alice := newKey(t)
	bob := newKey(t)

	_, err := bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		return tx.Airdrop(alice, 1_000)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	receipt, err := bank.Execute(context.Background(), ExecOptions{Signers: []solana.PublicKey{alice}}, func(tx *Tx) error {
		s, err := tx.Signer(alice)
		if err != nil {
			return err
		}
		if err := tx.Transfer(s, bob, 700); err != nil {
			return err
		}
		assert.Equal(t, uint64(700), tx.Balance(bob))
		tx.Emit("should not escape")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, receipt.Events)

	assert.Equal(t, uint64(1_000), bank.Balance(alice))
	_, exists := bank.Account(bob)
	assert.False(t, exists)
}

func TestTransferRequiresSignatureAndFunds(t *testing.T) {
	bank := NewBank(zap.NewNop(), nil)
	alice := newKey(t)
	bob := newKey(t)

	_, err := bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		return tx.Airdrop(alice, 10)
	})
	require.NoError(t, err)

	_, err = bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		_, err := tx.Signer(alice)
		return err
	})
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = bank.Execute(context.Background(), ExecOptions{Signers: []solana.PublicKey{alice}}, func(tx *Tx) error {
		s, _ := tx.Signer(alice)
		return tx.Transfer(s, bob, 11)
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(10), bank.Balance(alice))
}

func TestProgramSignerNeedsExecutingProgram(t *testing.T) {
	bank := NewBank(zap.NewNop(), nil)
	programID := newKey(t)
	seed := []byte("VAULT_SEED")
	expected, bump, err := solana.FindProgramAddress([][]byte{seed}, programID)
	require.NoError(t, err)

	_, err = bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		_, err := tx.ProgramSigner(seed, []byte{bump})
		return err
	})
	assert.ErrorIs(t, err, ErrNoExecutingProgram)

	_, err = bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		return tx.Invoke(programID, func(tx *Tx) error {
			s, err := tx.ProgramSigner(seed, []byte{bump})
			if err != nil {
				return err
			}
			assert.Equal(t, expected, s.Key())
			return nil
		})
	})
	require.NoError(t, err)
}

func TestTokenTransfers(t *testing.T) {
	bank := NewBank(zap.NewNop(), nil)
	mintAuthority := newKey(t)
	mint := newKey(t)
	alice := newKey(t)
	bob := newKey(t)

	var aliceATA, bobATA solana.PublicKey
	_, err := bank.Execute(context.Background(), ExecOptions{Signers: []solana.PublicKey{mintAuthority}}, func(tx *Tx) error {
		if err := tx.CreateMint(mint, mintAuthority, 6); err != nil {
			return err
		}
		var err error
		if aliceATA, err = tx.CreateAssociatedTokenAccount(alice, mint); err != nil {
			return err
		}
		if bobATA, err = tx.CreateAssociatedTokenAccount(bob, mint); err != nil {
			return err
		}
		s, err := tx.Signer(mintAuthority)
		if err != nil {
			return err
		}
		return tx.MintTo(mint, aliceATA, s, 5_000)
	})
	require.NoError(t, err)

	_, err = bank.Execute(context.Background(), ExecOptions{Signers: []solana.PublicKey{alice}}, func(tx *Tx) error {
		s, _ := tx.Signer(alice)
		return tx.TransferTokens(aliceATA, bobATA, s, 2_000)
	})
	require.NoError(t, err)

	aliceBal, err := bank.TokenBalance(aliceATA)
	require.NoError(t, err)
	bobBal, err := bank.TokenBalance(bobATA)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000), aliceBal)
	assert.Equal(t, uint64(2_000), bobBal)

	// bob cannot move alice's tokens
	_, err = bank.Execute(context.Background(), ExecOptions{Signers: []solana.PublicKey{bob}}, func(tx *Tx) error {
		s, _ := tx.Signer(bob)
		return tx.TransferTokens(aliceATA, bobATA, s, 1)
	})
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		_, err := tx.CreateAssociatedTokenAccount(alice, mint)
		return err
	})
	assert.ErrorIs(t, err, ErrAccountAlreadyInUse)
}

func TestExecutePersistsBeforeApplying(t *testing.T) {
	store := &memStore{}
	bank := NewBank(zap.NewNop(), store)
	alice := newKey(t)

	_, err := bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		return tx.Airdrop(alice, 42)
	})
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, alice, store.saved[0].Address)

	store.saveErr = errors.New("disk full")
	_, err = bank.Execute(context.Background(), ExecOptions{}, func(tx *Tx) error {
		return tx.Airdrop(alice, 8)
	})
	require.Error(t, err)
	assert.Equal(t, uint64(42), bank.Balance(alice))
}

func TestLoadRestoresAccounts(t *testing.T) {
	alice := newKey(t)
	store := &memStore{loaded: []Account{{Address: alice, Owner: solana.SystemProgramID, Lamports: 99}}}
	bank := NewBank(zap.NewNop(), store)

	require.NoError(t, bank.Load(context.Background()))
	assert.Equal(t, uint64(99), bank.Balance(alice))
}
