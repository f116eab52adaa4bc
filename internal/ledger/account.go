// internal/ledger/account.go
package ledger

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountAlreadyInUse = errors.New("account already in use")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrMissingSignature    = errors.New("missing required signature")
	ErrInvalidOwner        = errors.New("account owned by a different program")
	ErrInvalidAccountData  = errors.New("invalid account data")
	ErrMintMismatch        = errors.New("account mint mismatch")
	ErrInvalidSeeds        = errors.New("invalid program derived address seeds")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrNoExecutingProgram  = errors.New("no program is executing")
)

// Account is a single ledger entry addressed by a public key.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

func (a *Account) clone() *Account {
	cp := *a
	if a.Data != nil {
		cp.Data = make([]byte, len(a.Data))
		copy(cp.Data, a.Data)
	}
	return &cp
}

func addChecked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}
