// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventType names what happened to the pool.
type EventType string

const (
	PoolInitialized EventType = "pool.initialized"
	BetSettled      EventType = "bet.settled"
	FundsDeposited  EventType = "funds.deposited"
	FundsWithdrawn  EventType = "funds.withdrawn"

	// Transaction outcomes as seen by the runtime.
	ActionCompleted EventType = "action.completed"
	ActionFailed    EventType = "action.failed"
)

// Event is implemented by everything published on the bus.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent carries the fields every event has.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// PoolInitializedEvent records the administrator and the two betting mints.
type PoolInitializedEvent struct {
	BaseEvent
	Administrator solana.PublicKey
	TokenMintA    solana.PublicKey
	TokenMintB    solana.PublicKey
}

// BetSettledEvent is the typed twin of the BetResult log line. Payout is
// zero on a loss.
type BetSettledEvent struct {
	BaseEvent
	Bettor   solana.PublicKey
	Currency solana.PublicKey
	Amount   uint64
	Payout   uint64
	IsWin    bool
}

// CustodyEvent covers deposits and withdrawals. Account is the depositor or
// the administrator receiving the sweep.
type CustodyEvent struct {
	BaseEvent
	Account  solana.PublicKey
	Currency solana.PublicKey
	Amount   uint64
}

// ActionCompletedEvent is published once a transaction has committed.
type ActionCompletedEvent struct {
	BaseEvent
	Signature    solana.Signature
	Instructions int
}

// ActionFailedEvent is published when a transaction was rolled back.
type ActionFailedEvent struct {
	BaseEvent
	Signature solana.Signature
	Err       error
}
