// internal/program/authority.go
package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
)

// VaultAuthority is a program derived signing identity. No private key
// exists for it; the only thing it can do is authorize a transfer from
// inside the program that derived it.
type VaultAuthority struct {
	seed    []byte
	address solana.PublicKey
	bump    uint8
}

// DeriveVaultAuthority finds the canonical program address for seed.
func DeriveVaultAuthority(programID solana.PublicKey, seed []byte) (VaultAuthority, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{seed}, programID)
	if err != nil {
		return VaultAuthority{}, fmt.Errorf("failed to derive %q authority: %w", seed, err)
	}
	s := make([]byte, len(seed))
	copy(s, seed)
	return VaultAuthority{seed: s, address: addr, bump: bump}, nil
}

// Address returns the derived address.
func (v VaultAuthority) Address() solana.PublicKey {
	return v.address
}

// Bump returns the canonical bump seed.
func (v VaultAuthority) Bump() uint8 {
	return v.bump
}

// Authorize produces a signer for the vault inside tx. The host re-derives
// the address from the executing program, so it fails anywhere else.
func (v VaultAuthority) Authorize(tx *ledger.Tx) (ledger.Signer, error) {
	signer, err := tx.ProgramSigner(v.seed, []byte{v.bump})
	if err != nil {
		return ledger.Signer{}, fmt.Errorf("failed to authorize vault %s: %w", v.address, err)
	}
	if !signer.Key().Equals(v.address) {
		return ledger.Signer{}, invalidAccount("vault", "derived %s under %s, expected %s",
			signer.Key(), tx.ProgramID(), v.address)
	}
	return signer, nil
}
