// internal/runtime/builtin.go
package runtime

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
)

// systemProcessor handles lamport transfers addressed to the system program.
type systemProcessor struct{}

func (systemProcessor) ID() solana.PublicKey {
	return solana.SystemProgramID
}

func (systemProcessor) Process(tx *ledger.Tx, metas []*solana.AccountMeta, data []byte) error {
	inst, err := system.DecodeInstruction(metas, data)
	if err != nil {
		return fmt.Errorf("failed to decode system instruction: %w", err)
	}

	transfer, ok := inst.Impl.(*system.Transfer)
	if !ok {
		return fmt.Errorf("%w: system instruction %T", ErrUnsupportedMessage, inst.Impl)
	}
	if transfer.Lamports == nil {
		return fmt.Errorf("%w: transfer without lamports", ErrUnsupportedMessage)
	}

	from, err := tx.Signer(transfer.GetFundingAccount().PublicKey)
	if err != nil {
		return err
	}
	return tx.Transfer(from, transfer.GetRecipientAccount().PublicKey, *transfer.Lamports)
}

// tokenProcessor handles plain token transfers addressed to the token program.
type tokenProcessor struct{}

func (tokenProcessor) ID() solana.PublicKey {
	return solana.TokenProgramID
}

func (tokenProcessor) Process(tx *ledger.Tx, metas []*solana.AccountMeta, data []byte) error {
	inst, err := token.DecodeInstruction(metas, data)
	if err != nil {
		return fmt.Errorf("failed to decode token instruction: %w", err)
	}

	transfer, ok := inst.Impl.(*token.Transfer)
	if !ok {
		return fmt.Errorf("%w: token instruction %T", ErrUnsupportedMessage, inst.Impl)
	}
	if transfer.Amount == nil {
		return fmt.Errorf("%w: transfer without amount", ErrUnsupportedMessage)
	}

	owner, err := tx.Signer(transfer.GetOwnerAccount().PublicKey)
	if err != nil {
		return err
	}
	return tx.TransferTokens(
		transfer.GetSourceAccount().PublicKey,
		transfer.GetDestinationAccount().PublicKey,
		owner,
		*transfer.Amount,
	)
}
