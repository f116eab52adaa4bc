// internal/ledger/tx.go
package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Tx is the working view of one action. Reads see the action's own writes;
// nothing reaches the bank until Execute commits.
type Tx struct {
	bank      *Bank
	signers   map[solana.PublicKey]struct{}
	overlay   map[solana.PublicKey]*Account
	order     []solana.PublicKey
	programID solana.PublicKey
	depth     int
	logs      []string
	events    []interface{}
}

// Signer proves that a key authorized an operation inside the current action.
// It can only be obtained from Tx.Signer or Tx.ProgramSigner.
type Signer struct {
	key solana.PublicKey
}

// Key returns the authorizing key.
func (s Signer) Key() solana.PublicKey {
	return s.key
}

func newTx(bank *Bank, signers []solana.PublicKey) *Tx {
	tx := &Tx{
		bank:    bank,
		signers: make(map[solana.PublicKey]struct{}, len(signers)),
		overlay: make(map[solana.PublicKey]*Account),
	}
	for _, s := range signers {
		tx.signers[s] = struct{}{}
	}
	return tx
}

// Invoke runs fn with programID as the executing program, wrapping it in
// the usual program log lines.
func (tx *Tx) Invoke(programID solana.PublicKey, fn func(tx *Tx) error) error {
	prev := tx.programID
	tx.programID = programID
	tx.depth++
	defer func() {
		tx.programID = prev
		tx.depth--
	}()

	tx.Logf("Program %s invoke [%d]", programID, tx.depth)
	if err := fn(tx); err != nil {
		tx.Logf("Program %s failed: %v", programID, err)
		return err
	}
	tx.Logf("Program %s success", programID)
	return nil
}

// ProgramID returns the executing program.
func (tx *Tx) ProgramID() solana.PublicKey {
	return tx.programID
}

// Signer returns a proof for key if its signature was verified for this action.
func (tx *Tx) Signer(key solana.PublicKey) (Signer, error) {
	if _, ok := tx.signers[key]; !ok {
		return Signer{}, fmt.Errorf("%w: %s", ErrMissingSignature, key)
	}
	return Signer{key: key}, nil
}

// ProgramSigner derives a program address from seeds under the executing
// program and returns a proof for it. The program id is never taken from
// the caller.
func (tx *Tx) ProgramSigner(seeds ...[]byte) (Signer, error) {
	if tx.programID.IsZero() {
		return Signer{}, ErrNoExecutingProgram
	}
	addr, err := solana.CreateProgramAddress(seeds, tx.programID)
	if err != nil {
		return Signer{}, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	return Signer{key: addr}, nil
}

// Logf appends a line to the action log.
func (tx *Tx) Logf(format string, args ...interface{}) {
	tx.logs = append(tx.logs, fmt.Sprintf(format, args...))
}

// Emit records an event that is delivered only if the action commits.
func (tx *Tx) Emit(event interface{}) {
	tx.events = append(tx.events, event)
}

// Account returns a copy of the account as seen by this action.
func (tx *Tx) Account(addr solana.PublicKey) (Account, bool) {
	acc, ok := tx.lookup(addr)
	if !ok {
		return Account{}, false
	}
	return *acc.clone(), true
}

// Balance returns the lamports of addr as seen by this action.
func (tx *Tx) Balance(addr solana.PublicKey) uint64 {
	acc, ok := tx.lookup(addr)
	if !ok {
		return 0
	}
	return acc.Lamports
}

// CreateAccount allocates a new account. It fails if addr already exists.
func (tx *Tx) CreateAccount(addr, owner solana.PublicKey, data []byte) error {
	if _, ok := tx.lookup(addr); ok {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, addr)
	}
	acc := &Account{Address: addr, Owner: owner}
	if data != nil {
		acc.Data = make([]byte, len(data))
		copy(acc.Data, data)
	}
	tx.put(acc)
	return nil
}

// WriteData replaces the data of an account owned by the executing program.
func (tx *Tx) WriteData(addr solana.PublicKey, data []byte) error {
	acc, err := tx.writable(addr)
	if err != nil {
		return err
	}
	if !acc.Owner.Equals(tx.programID) {
		return fmt.Errorf("%w: %s", ErrInvalidOwner, addr)
	}
	acc.Data = make([]byte, len(data))
	copy(acc.Data, data)
	return nil
}

// PutAccount writes an account verbatim. It is a host operation used for
// genesis and for mirroring external accounts such as price feeds.
func (tx *Tx) PutAccount(acc Account) {
	tx.put(acc.clone())
}

func (tx *Tx) lookup(addr solana.PublicKey) (*Account, bool) {
	if acc, ok := tx.overlay[addr]; ok {
		return acc, true
	}
	acc, ok := tx.bank.accounts[addr]
	return acc, ok
}

// writable returns the overlay copy of addr, copying it on first touch.
func (tx *Tx) writable(addr solana.PublicKey) (*Account, error) {
	if acc, ok := tx.overlay[addr]; ok {
		return acc, nil
	}
	acc, ok := tx.bank.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	cp := acc.clone()
	tx.put(cp)
	return cp, nil
}

func (tx *Tx) put(acc *Account) {
	if _, ok := tx.overlay[acc.Address]; !ok {
		tx.order = append(tx.order, acc.Address)
	}
	tx.overlay[acc.Address] = acc
}

func (tx *Tx) dirty() []Account {
	out := make([]Account, 0, len(tx.order))
	for _, addr := range tx.order {
		out = append(out, *tx.overlay[addr])
	}
	return out
}
