// internal/ledger/system.go
package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Transfer moves lamports out of a system-owned account authorized by from.
// The destination is created as a system account when it does not exist.
func (tx *Tx) Transfer(from Signer, to solana.PublicKey, lamports uint64) error {
	src, err := tx.writable(from.key)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: transfer source %s", ErrInvalidOwner, from.key)
	}
	if src.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d lamports, needs %d", ErrInsufficientFunds, from.key, src.Lamports, lamports)
	}
	if from.key.Equals(to) {
		return nil
	}

	dst, err := tx.systemAccount(to)
	if err != nil {
		return err
	}
	balance, err := addChecked(dst.Lamports, lamports)
	if err != nil {
		return err
	}

	src.Lamports -= lamports
	dst.Lamports = balance
	return nil
}

// Airdrop credits lamports to addr out of thin air. Host-only.
func (tx *Tx) Airdrop(addr solana.PublicKey, lamports uint64) error {
	dst, err := tx.systemAccount(addr)
	if err != nil {
		return err
	}
	balance, err := addChecked(dst.Lamports, lamports)
	if err != nil {
		return err
	}
	dst.Lamports = balance
	return nil
}

func (tx *Tx) systemAccount(addr solana.PublicKey) (*Account, error) {
	if _, ok := tx.lookup(addr); !ok {
		acc := &Account{Address: addr, Owner: solana.SystemProgramID}
		tx.put(acc)
		return acc, nil
	}
	return tx.writable(addr)
}
