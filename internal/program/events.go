// internal/program/events.go
package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramDataPrefix starts every log line carrying an encoded event.
const ProgramDataPrefix = "Program data: "

var betResultDiscriminator = anchorDiscriminator("event", "BetResult")

// BetResult is emitted once per settled bet, win or lose.
type BetResult struct {
	IsWin    bool
	Bettor   solana.PublicKey
	Currency solana.PublicKey
	Amount   uint64
}

// Encode returns the discriminator-prefixed Borsh encoding of r.
func (r BetResult) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(betResultDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode bet result: %w", err)
	}
	return buf.Bytes(), nil
}

// LogLine renders r the way watchers expect it in the program log.
func (r BetResult) LogLine() (string, error) {
	data, err := r.Encode()
	if err != nil {
		return "", err
	}
	return ProgramDataPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBetResultLog parses a log line produced by LogLine. ok is false for
// lines that carry a different event or no event at all.
func DecodeBetResultLog(line string) (result BetResult, ok bool, err error) {
	if !strings.HasPrefix(line, ProgramDataPrefix) {
		return BetResult{}, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, ProgramDataPrefix))
	if err != nil {
		return BetResult{}, false, fmt.Errorf("invalid program data: %w", err)
	}
	if len(data) < 8 || !bytes.Equal(data[:8], betResultDiscriminator[:]) {
		return BetResult{}, false, nil
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(&result); err != nil {
		return BetResult{}, false, fmt.Errorf("invalid bet result: %w", err)
	}
	return result, true, nil
}

func anchorDiscriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}
