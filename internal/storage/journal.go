// internal/storage/journal.go
package storage

import (
	"context"

	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/program"
	"github.com/rovshanmuradov/dice-roll/internal/storage/models"
	"go.uber.org/zap"
)

// Journal records transaction outcomes and settled bets published on the
// event bus.
type Journal struct {
	store  Storage
	logger *zap.Logger
	subs   []events.Subscription
}

// NewJournal creates a journal writing to store.
func NewJournal(store Storage, logger *zap.Logger) *Journal {
	return &Journal{store: store, logger: logger.Named("journal")}
}

// Attach subscribes the journal to bus.
func (j *Journal) Attach(bus *events.Bus) {
	for _, typ := range []events.EventType{events.ActionCompleted, events.ActionFailed, events.BetSettled} {
		j.subs = append(j.subs, bus.Subscribe(typ, j))
	}
}

// Detach removes the journal's subscriptions.
func (j *Journal) Detach() {
	for _, s := range j.subs {
		s.Unsubscribe()
	}
	j.subs = nil
}

// Handle implements events.Handler.
func (j *Journal) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ActionCompletedEvent:
		return j.store.SaveTransaction(ctx, &models.Transaction{
			Signature:    e.Signature.String(),
			Status:       models.StatusCommitted,
			Instructions: e.Instructions,
			ProcessedAt:  e.Timestamp(),
		})

	case events.ActionFailedEvent:
		rec := &models.Transaction{
			Signature:   e.Signature.String(),
			Status:      models.StatusFailed,
			ProcessedAt: e.Timestamp(),
		}
		if e.Err != nil {
			rec.ErrorMessage = e.Err.Error()
		}
		if code, ok := program.CodeOf(e.Err); ok {
			c := uint32(code)
			rec.ErrorCode = &c
		}
		return j.store.SaveTransaction(ctx, rec)

	case events.BetSettledEvent:
		return j.store.SaveBet(ctx, &models.Bet{
			Bettor:    e.Bettor.String(),
			Currency:  e.Currency.String(),
			Amount:    e.Amount,
			Payout:    e.Payout,
			IsWin:     e.IsWin,
			SettledAt: e.Timestamp(),
		})
	}

	j.logger.Debug("Ignoring event", zap.String("event_type", string(event.Type())))
	return nil
}

var _ events.Handler = (*Journal)(nil)

