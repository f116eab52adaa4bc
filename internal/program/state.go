// internal/program/state.go
package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// PoolStateSize is the length of the state account: discriminator plus
// three public keys.
const PoolStateSize = 8 + 32*3

var poolStateDiscriminator = anchorDiscriminator("account", "State")

// PoolState is the singleton configuration of a deployment.
type PoolState struct {
	Administrator solana.PublicKey
	TokenMintA    solana.PublicKey
	TokenMintB    solana.PublicKey
}

// IsRegisteredMint reports whether mint may be used for token bets.
func (s *PoolState) IsRegisteredMint(mint solana.PublicKey) bool {
	return mint.Equals(s.TokenMintA) || mint.Equals(s.TokenMintB)
}

// IsAdministrator reports whether key may perform administrative actions.
func (s *PoolState) IsAdministrator(key solana.PublicKey) bool {
	return key.Equals(s.Administrator)
}

// Marshal encodes the state with its account discriminator.
func (s *PoolState) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(poolStateDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(*s); err != nil {
		return nil, fmt.Errorf("failed to encode pool state: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalPoolState decodes account data written by Marshal.
func UnmarshalPoolState(data []byte) (*PoolState, error) {
	if len(data) < PoolStateSize {
		return nil, invalidAccount("state", "data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], poolStateDiscriminator[:]) {
		return nil, invalidAccount("state", "discriminator mismatch")
	}

	state := &PoolState{}
	if err := bin.NewBorshDecoder(data[8:PoolStateSize]).Decode(state); err != nil {
		return nil, invalidAccount("state", "decode: %v", err)
	}
	return state, nil
}
