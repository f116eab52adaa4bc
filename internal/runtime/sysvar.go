// internal/runtime/sysvar.go
package runtime

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
)

var (
	// RecentBlockhashesAddress holds the blockhash ring and the signatures
	// consumed against each entry, so replay protection survives a restart.
	RecentBlockhashesAddress = solana.MustPublicKeyFromBase58("SysvarRecentB1ockHashes11111111111111111111")
	// SysvarOwner owns host-maintained accounts.
	SysvarOwner = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")
)

type blockhashEntry struct {
	Hash       solana.Hash
	Signatures []solana.Signature
}

// blockhashState is the persisted form of the runtime's replay window,
// oldest entry first.
type blockhashState struct {
	Slot    uint64
	Entries []blockhashEntry
}

// encodeState serializes the ring. Callers hold r.mu.
func (r *Runtime) encodeState() ([]byte, error) {
	st := blockhashState{Slot: r.slot, Entries: make([]blockhashEntry, 0, len(r.recent))}
	for _, h := range r.recent {
		e := blockhashEntry{Hash: h}
		for sig := range r.processed[h] {
			e.Signatures = append(e.Signatures, sig)
		}
		st.Entries = append(st.Entries, e)
	}

	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(st); err != nil {
		return nil, fmt.Errorf("failed to encode blockhash state: %w", err)
	}
	return buf.Bytes(), nil
}

// restore resumes from a persisted ring.
func (r *Runtime) restore(data []byte) error {
	var st blockhashState
	if err := bin.NewBorshDecoder(data).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode blockhash state: %w", err)
	}
	if len(st.Entries) == 0 || len(st.Entries) > MaxRecentBlockhashes {
		return fmt.Errorf("invalid blockhash state: %d entries", len(st.Entries))
	}

	r.slot = st.Slot
	r.recent = make([]solana.Hash, 0, len(st.Entries))
	r.processed = make(map[solana.Hash]map[solana.Signature]struct{}, len(st.Entries))
	for _, e := range st.Entries {
		seen := make(map[solana.Signature]struct{}, len(e.Signatures))
		for _, sig := range e.Signatures {
			seen[sig] = struct{}{}
		}
		r.recent = append(r.recent, e.Hash)
		r.processed[e.Hash] = seen
	}
	return nil
}

// writeState stores data in the sysvar account inside tx, keeping any
// lamports sent to it.
func writeState(tx *ledger.Tx, data []byte) {
	acc, _ := tx.Account(RecentBlockhashesAddress)
	acc.Address = RecentBlockhashesAddress
	acc.Owner = SysvarOwner
	acc.Data = data
	tx.PutAccount(acc)
}
