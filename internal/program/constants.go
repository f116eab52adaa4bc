// internal/program/constants.go
package program

import "github.com/gagliardetto/solana-go"

var (
	// DefaultProgramID is the deployed address of the dice roll program.
	DefaultProgramID = solana.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

	// WrappedSolMint identifies native-coin bets in emitted records. No
	// token transfer ever happens on it.
	WrappedSolMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	StateSeed = []byte("STATE_SEED")
	VaultSeed = []byte("VAULT_SEED")
)

// Bet limits are in minor units of the staked currency.
const (
	TokenMinBet uint64 = 1_000_000
	TokenMaxBet uint64 = 50_000_000
	SolMinBet   uint64 = 1_000_000_000
	SolMaxBet   uint64 = 50_000_000_000
)

const (
	// RTP is the percentage of the stake paid back on a win.
	RTP uint64 = 80
	// OutcomeModulus is the size of the outcome space derived from a price.
	OutcomeModulus uint64 = 11
	// WinThreshold is the largest losing outcome.
	WinThreshold uint64 = 5
)
