// internal/runtime/runtime.go
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"go.uber.org/zap"
)

// MaxRecentBlockhashes is how many blockhashes a transaction may reference.
const MaxRecentBlockhashes = 150

var (
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrAlreadyProcessed      = errors.New("transaction already processed")
	ErrBlockhashNotFound     = errors.New("blockhash not found")
	ErrProgramNotFound       = errors.New("program not found")
	ErrUnsupportedMessage    = errors.New("unsupported message")
)

// Processor executes instructions addressed to one program.
type Processor interface {
	ID() solana.PublicKey
	Process(tx *ledger.Tx, metas []*solana.AccountMeta, data []byte) error
}

// Receipt is the outcome of a processed transaction. Err is set when the
// transaction was rolled back; Events are empty in that case.
type Receipt struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string
	Events    []events.Event
	Err       error
}

// Runtime feeds signed transactions through the bank. Every instruction of
// a transaction runs inside one bank action, so either all of them apply or
// none do.
type Runtime struct {
	mu        sync.Mutex
	bank      *ledger.Bank
	programs  map[solana.PublicKey]Processor
	bus       *events.Bus
	logger    *zap.Logger
	slot      uint64
	recent    []solana.Hash
	processed map[solana.Hash]map[solana.Signature]struct{}
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithEventBus publishes committed events and transaction outcomes to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(r *Runtime) {
		r.bus = bus
	}
}

// New creates a runtime over bank with the builtin system and token
// programs plus the given processors. When the bank already holds a
// blockhash state the runtime resumes from it.
func New(bank *ledger.Bank, logger *zap.Logger, processors []Processor, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		bank:      bank,
		programs:  make(map[solana.PublicKey]Processor),
		logger:    logger.Named("runtime"),
		processed: make(map[solana.Hash]map[solana.Signature]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, p := range append([]Processor{systemProcessor{}, tokenProcessor{}}, processors...) {
		r.programs[p.ID()] = p
	}

	acc, ok := bank.Account(RecentBlockhashesAddress)
	if !ok {
		r.advance()
		return r, nil
	}
	if err := r.restore(acc.Data); err != nil {
		return nil, err
	}
	r.logger.Info("Resumed blockhash state",
		zap.Uint64("slot", r.slot),
		zap.Int("blockhashes", len(r.recent)))
	return r, nil
}

// Bank returns the underlying ledger.
func (r *Runtime) Bank() *ledger.Bank {
	return r.bank
}

// LatestBlockhash returns the blockhash new transactions should reference.
func (r *Runtime) LatestBlockhash() solana.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recent[len(r.recent)-1]
}

// Slot returns the number of blocks produced so far.
func (r *Runtime) Slot() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot
}

// Process verifies and executes a signed transaction. Failures before
// execution return a nil receipt. A signature is consumed once it reaches
// execution, whether the transaction commits or not, and the consumed
// signature is persisted in the same commit as the transaction's accounts.
func (r *Runtime) Process(ctx context.Context, tx *solana.Transaction) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig, signers, err := r.verify(tx)
	if err != nil {
		return nil, err
	}
	instructions, err := resolveInstructions(tx)
	if err != nil {
		return nil, err
	}

	r.processed[tx.Message.RecentBlockhash][sig] = struct{}{}
	slot := r.slot
	r.advance()
	state, err := r.encodeState()
	if err != nil {
		return nil, err
	}
	logger := r.logger.With(zap.String("signature", sig.String()))

	res, execErr := r.bank.Execute(ctx, ledger.ExecOptions{Signers: signers}, func(ltx *ledger.Tx) error {
		for i, ix := range instructions {
			program, ok := r.programs[ix.programID]
			if !ok {
				return fmt.Errorf("instruction %d: %w: %s", i, ErrProgramNotFound, ix.programID)
			}
			if err := ltx.Invoke(ix.programID, func(ltx *ledger.Tx) error {
				return program.Process(ltx, ix.metas, ix.data)
			}); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		}
		writeState(ltx, state)
		return nil
	})

	receipt := &Receipt{Signature: sig, Slot: slot}
	if res != nil {
		receipt.Logs = res.Logs
	}

	if execErr != nil {
		receipt.Err = execErr
		logger.Info("Transaction failed", zap.Error(execErr))
		if _, err := r.bank.Execute(ctx, ledger.ExecOptions{}, func(ltx *ledger.Tx) error {
			writeState(ltx, state)
			return nil
		}); err != nil {
			logger.Error("Failed to persist consumed signature", zap.Error(err))
		}
		r.publish(events.ActionFailedEvent{
			BaseEvent: events.BaseEvent{EventType: events.ActionFailed, EventTime: time.Now().UTC()},
			Signature: sig,
			Err:       execErr,
		})
		return receipt, execErr
	}

	for _, e := range res.Events {
		if ev, ok := e.(events.Event); ok {
			receipt.Events = append(receipt.Events, ev)
			r.publish(ev)
		}
	}
	r.publish(events.ActionCompletedEvent{
		BaseEvent:    events.BaseEvent{EventType: events.ActionCompleted, EventTime: time.Now().UTC()},
		Signature:    sig,
		Instructions: len(instructions),
	})
	logger.Debug("Transaction committed",
		zap.Int("instructions", len(instructions)),
		zap.Int("events", len(receipt.Events)))
	return receipt, nil
}

// Setup runs host-side account preparation, such as funding and minting,
// as one atomic action. signers are treated as having signed.
func (r *Runtime) Setup(ctx context.Context, signers []solana.PublicKey, fn func(tx *ledger.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.bank.Execute(ctx, ledger.ExecOptions{Signers: signers}, fn)
	return err
}

func (r *Runtime) verify(tx *solana.Transaction) (solana.Signature, []solana.PublicKey, error) {
	msg := tx.Message
	required := int(msg.Header.NumRequiredSignatures)
	if required == 0 || len(tx.Signatures) != required || len(msg.AccountKeys) < required {
		return solana.Signature{}, nil, fmt.Errorf("%w: %d signatures for %d required signers",
			ErrSignatureVerification, len(tx.Signatures), required)
	}

	content, err := msg.MarshalBinary()
	if err != nil {
		return solana.Signature{}, nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	signers := make([]solana.PublicKey, required)
	for i := 0; i < required; i++ {
		key := msg.AccountKeys[i]
		if !tx.Signatures[i].Verify(key, content) {
			return solana.Signature{}, nil, fmt.Errorf("%w: %s", ErrSignatureVerification, key)
		}
		signers[i] = key
	}

	sig := tx.Signatures[0]
	seen, ok := r.processed[msg.RecentBlockhash]
	if !ok {
		return solana.Signature{}, nil, fmt.Errorf("%w: %s", ErrBlockhashNotFound, msg.RecentBlockhash)
	}
	if _, dup := seen[sig]; dup {
		return solana.Signature{}, nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	}
	return sig, signers, nil
}

// advance produces the next blockhash and expires the oldest one along with
// the signatures recorded against it.
func (r *Runtime) advance() {
	r.slot++

	var seed [40]byte
	if n := len(r.recent); n > 0 {
		copy(seed[:32], r.recent[n-1][:])
	}
	binary.LittleEndian.PutUint64(seed[32:], r.slot)
	next := solana.Hash(sha256.Sum256(seed[:]))

	r.recent = append(r.recent, next)
	r.processed[next] = make(map[solana.Signature]struct{})
	if len(r.recent) > MaxRecentBlockhashes {
		delete(r.processed, r.recent[0])
		r.recent = r.recent[1:]
	}
}

func (r *Runtime) publish(e events.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(e); err != nil {
		r.logger.Warn("Failed to publish event",
			zap.String("event_type", string(e.Type())),
			zap.Error(err))
	}
}

type resolvedInstruction struct {
	programID solana.PublicKey
	metas     []*solana.AccountMeta
	data      []byte
}

// resolveInstructions expands compiled instructions into account metas
// using the message header to recover signer and writable flags.
func resolveInstructions(tx *solana.Transaction) ([]resolvedInstruction, error) {
	msg := tx.Message
	if len(msg.AddressTableLookups) > 0 {
		return nil, fmt.Errorf("%w: address table lookups", ErrUnsupportedMessage)
	}

	keys := msg.AccountKeys
	signed := int(msg.Header.NumRequiredSignatures)
	writableSigned := signed - int(msg.Header.NumReadonlySignedAccounts)
	writableUnsigned := len(keys) - int(msg.Header.NumReadonlyUnsignedAccounts)

	meta := func(idx uint16) (*solana.AccountMeta, error) {
		i := int(idx)
		if i >= len(keys) {
			return nil, fmt.Errorf("%w: account index %d out of range", ErrUnsupportedMessage, i)
		}
		isSigner := i < signed
		isWritable := (isSigner && i < writableSigned) || (!isSigner && i < writableUnsigned)
		return &solana.AccountMeta{PublicKey: keys[i], IsSigner: isSigner, IsWritable: isWritable}, nil
	}

	out := make([]resolvedInstruction, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		program, err := meta(ci.ProgramIDIndex)
		if err != nil {
			return nil, err
		}
		metas := make([]*solana.AccountMeta, 0, len(ci.Accounts))
		for _, idx := range ci.Accounts {
			m, err := meta(idx)
			if err != nil {
				return nil, err
			}
			metas = append(metas, m)
		}
		out = append(out, resolvedInstruction{
			programID: program.PublicKey,
			metas:     metas,
			data:      ci.Data,
		})
	}
	return out, nil
}
