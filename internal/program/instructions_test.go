// internal/program/instructions_test.go
package program

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processInstruction(f *fixture, signer solana.PublicKey, ix solana.Instruction) (*ledger.Receipt, error) {
	data, err := ix.Data()
	require.NoError(f.t, err)
	return f.exec(signer, func(tx *ledger.Tx) error {
		return f.prog.Process(tx, ix.Accounts(), data)
	})
}

func TestProcessDispatchesEveryInstruction(t *testing.T) {
	f := newFixture(t, 3)
	id := f.prog.ID()

	ia, err := f.prog.InitializeAccountsFor(f.admin, f.mintA, f.mintB)
	require.NoError(t, err)
	ix, err := NewInitializeInstruction(id, ia)
	require.NoError(t, err)
	_, err = processInstruction(f, f.admin, ix)
	require.NoError(t, err)

	ta, err := f.prog.TokenAccountsFor(f.admin, f.mintA)
	require.NoError(t, err)
	ix, err = NewDepositTokenInstruction(id, ta, 30_000_000)
	require.NoError(t, err)
	_, err = processInstruction(f, f.admin, ix)
	require.NoError(t, err)

	ix, err = NewDepositSolInstruction(id, DepositSolAccounts{Authority: f.admin, PoolSolVault: f.prog.SolVaultAddress()}, 3*SolMinBet)
	require.NoError(t, err)
	_, err = processInstruction(f, f.admin, ix)
	require.NoError(t, err)

	ba, err := f.prog.PlaceTokenBetAccountsFor(f.bettor, f.mintA, f.oracle)
	require.NoError(t, err)
	ix, err = NewPlaceTokenBetInstruction(id, ba, 2_000_000)
	require.NoError(t, err)
	_, err = processInstruction(f, f.bettor, ix)
	require.NoError(t, err)
	assert.Equal(t, uint64(32_000_000), f.poolBalance(f.mintA))

	ix, err = NewPlaceSolBetInstruction(id, f.prog.PlaceSolBetAccountsFor(f.bettor, f.oracle), SolMinBet)
	require.NoError(t, err)
	_, err = processInstruction(f, f.bettor, ix)
	require.NoError(t, err)
	assert.Equal(t, 4*SolMinBet, f.bank.Balance(f.prog.SolVaultAddress()))

	ix, err = NewWithdrawTokenInstruction(id, ta)
	require.NoError(t, err)
	_, err = processInstruction(f, f.admin, ix)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.poolBalance(f.mintA))

	ix, err = NewWithdrawSolInstruction(id, WithdrawSolAccounts{Authority: f.admin, State: f.prog.StateAddress(), PoolSolVault: f.prog.SolVaultAddress()})
	require.NoError(t, err)
	_, err = processInstruction(f, f.admin, ix)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.bank.Balance(f.prog.SolVaultAddress()))
}

func TestProcessRejectsMalformedInstructions(t *testing.T) {
	f := newFixture(t, 7)
	f.initialize()

	tests := []struct {
		name    string
		metas   []*solana.AccountMeta
		data    func() []byte
		wantErr error
	}{
		{
			name:    "short data",
			data:    func() []byte { return []byte{1, 2, 3} },
			wantErr: ErrUnknownInstruction,
		},
		{
			name:    "unknown discriminator",
			data:    func() []byte { d := anchorDiscriminator("global", "roll"); return d[:] },
			wantErr: ErrUnknownInstruction,
		},
		{
			name:  "missing amount",
			metas: PlaceSolBetAccounts{Authority: f.bettor, State: f.prog.StateAddress(), PoolSolVault: f.prog.SolVaultAddress(), Oracle: f.oracle}.metas(),
			data: func() []byte {
				d := anchorDiscriminator("global", InstructionPlaceSolBet)
				return d[:]
			},
			wantErr: ErrInvalidParameter,
		},
		{
			name:  "missing accounts",
			metas: []*solana.AccountMeta{solana.Meta(f.bettor).SIGNER()},
			data: func() []byte {
				d := anchorDiscriminator("global", InstructionPlaceSolBet)
				return binary.LittleEndian.AppendUint64(d[:], SolMinBet)
			},
			wantErr: ErrInvalidAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.exec(f.bettor, func(tx *ledger.Tx) error {
				return f.prog.Process(tx, tt.metas, tt.data())
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProcessRequiresExecutingProgram(t *testing.T) {
	f := newFixture(t, 7)
	ix, err := NewDepositSolInstruction(f.prog.ID(), DepositSolAccounts{Authority: f.admin, PoolSolVault: f.prog.SolVaultAddress()}, 1)
	require.NoError(t, err)
	data, err := ix.Data()
	require.NoError(t, err)

	_, err = f.bank.Execute(context.Background(), ledger.ExecOptions{Signers: []solana.PublicKey{f.admin}}, func(tx *ledger.Tx) error {
		return f.prog.Process(tx, ix.Accounts(), data)
	})
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestInstructionAmountEncoding(t *testing.T) {
	ix, err := NewPlaceTokenBetInstruction(DefaultProgramID, PlaceTokenBetAccounts{}, 0x0102030405060708)
	require.NoError(t, err)
	data, err := ix.Data()
	require.NoError(t, err)

	require.Len(t, data, 16)
	want := anchorDiscriminator("global", InstructionPlaceTokenBet)
	assert.Equal(t, want[:], data[:8])
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, data[8:])
	assert.Equal(t, DefaultProgramID, ix.ProgramID())
	assert.Len(t, ix.Accounts(), 6)
	assert.True(t, ix.Accounts()[0].IsSigner)
}
