// internal/publisher/kafka_test.go
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) decoded(t *testing.T) []Message {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Message, 0, len(w.msgs))
	for _, m := range w.msgs {
		var msg Message
		require.NoError(t, json.Unmarshal(m.Value, &msg))
		assert.Equal(t, msg.Account, string(m.Key))
		out = append(out, msg)
	}
	return out
}

func base(typ events.EventType) events.BaseEvent {
	return events.BaseEvent{EventType: typ, EventTime: time.UnixMilli(1_700_000_000_000)}
}

func TestKafkaPublisherForwardsPoolEvents(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zaptest.NewLogger(t))
	bus := events.NewBus(zaptest.NewLogger(t), 16)
	p.Attach(bus)

	admin := solana.NewWallet().PublicKey()
	bettor := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	for _, e := range []events.Event{
		events.PoolInitializedEvent{BaseEvent: base(events.PoolInitialized), Administrator: admin, TokenMintA: mintA, TokenMintB: mintB},
		events.CustodyEvent{BaseEvent: base(events.FundsDeposited), Account: admin, Currency: mintA, Amount: 50_000_000},
		events.BetSettledEvent{BaseEvent: base(events.BetSettled), Bettor: bettor, Currency: mintA, Amount: 10_000_000, Payout: 8_000_000, IsWin: true},
		events.BetSettledEvent{BaseEvent: base(events.BetSettled), Bettor: bettor, Currency: mintA, Amount: 10_000_000},
		events.ActionCompletedEvent{BaseEvent: base(events.ActionCompleted)},
	} {
		require.NoError(t, bus.Publish(e))
	}
	require.NoError(t, bus.Flush(ctx))
	require.NoError(t, p.Close())
	require.NoError(t, bus.Shutdown(ctx))
	assert.True(t, w.closed)

	msgs := w.decoded(t)
	require.Len(t, msgs, 4)

	assert.Equal(t, events.PoolInitialized, msgs[0].Type)
	assert.Equal(t, mintB.String(), msgs[0].MintB)

	assert.Equal(t, events.FundsDeposited, msgs[1].Type)
	assert.Equal(t, uint64(50_000_000), msgs[1].Amount)

	require.NotNil(t, msgs[2].IsWin)
	assert.True(t, *msgs[2].IsWin)
	assert.Equal(t, uint64(8_000_000), msgs[2].Payout)
	assert.Equal(t, int64(1_700_000_000_000), msgs[2].TsUnixMs)

	require.NotNil(t, msgs[3].IsWin)
	assert.False(t, *msgs[3].IsWin)
	assert.Equal(t, bettor.String(), msgs[3].Account)
}

func TestKafkaPublisherReportsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewKafkaPublisher(w, zaptest.NewLogger(t))

	err := p.Handle(context.Background(), events.CustodyEvent{BaseEvent: base(events.FundsWithdrawn)})
	assert.ErrorIs(t, err, w.err)
	assert.NoError(t, p.Handle(context.Background(), events.ActionFailedEvent{BaseEvent: base(events.ActionFailed)}))
}
