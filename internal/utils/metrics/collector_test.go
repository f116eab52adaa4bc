// internal/utils/metrics/collector_test.go
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCollectorCountsBusEvents(t *testing.T) {
	c := NewCollector()
	bus := events.NewBus(zaptest.NewLogger(t), 16)
	c.Attach(bus)

	mint := solana.NewWallet().PublicKey()
	now := time.Now()
	publish := func(e events.Event) { require.NoError(t, bus.Publish(e)) }

	publish(events.BetSettledEvent{
		BaseEvent: events.BaseEvent{EventType: events.BetSettled, EventTime: now},
		Currency:  mint, Amount: 10_000_000, Payout: 8_000_000, IsWin: true,
	})
	publish(events.BetSettledEvent{
		BaseEvent: events.BaseEvent{EventType: events.BetSettled, EventTime: now},
		Currency:  program.WrappedSolMint, Amount: program.SolMinBet,
	})
	publish(events.CustodyEvent{
		BaseEvent: events.BaseEvent{EventType: events.FundsWithdrawn, EventTime: now},
		Currency:  mint, Amount: 5,
	})
	publish(events.ActionCompletedEvent{BaseEvent: events.BaseEvent{EventType: events.ActionCompleted, EventTime: now}})
	publish(events.ActionFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.ActionFailed, EventTime: now},
		Err:       fmt.Errorf("instruction 0: %w", program.ErrInvalidParameter),
	})
	publish(events.ActionFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.ActionFailed, EventTime: now},
		Err:       errors.New("insufficient funds"),
	})
	require.NoError(t, bus.Shutdown(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.bets.WithLabelValues(mint.String(), "win")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bets.WithLabelValues("SOL", "loss")))
	assert.Equal(t, 10_000_000.0, testutil.ToFloat64(c.staked.WithLabelValues(mint.String())))
	assert.Equal(t, 8_000_000.0, testutil.ToFloat64(c.paidOut.WithLabelValues(mint.String())))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.paidOut.WithLabelValues("SOL")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.custody.WithLabelValues("withdraw", mint.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactions.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.transactions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("InvalidParameter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("host")))

	c.Reset()
	assert.Equal(t, 0, testutil.CollectAndCount(c.bets))
}

func TestServerEndpoints(t *testing.T) {
	c := NewCollector()
	c.SetVaultBalance(program.WrappedSolMint, 42)
	c.ObserveStep("place_sol_bet", time.Millisecond)

	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(NewServer(":0", c, func(context.Context) error {
		if !healthy.Load() {
			return errors.New("bank not loaded")
		}
		return nil
	}).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `dice_roll_vault_balance_base_units{currency="SOL"} 42`)
	assert.Contains(t, string(body), "dice_roll_step_duration_seconds_count")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerStatsRoute(t *testing.T) {
	stats := WithStats(func(_ context.Context, bettor, currency string) (any, error) {
		if bettor == "nobody" {
			return nil, errors.New("invalid public key")
		}
		return map[string]string{"bettor": bettor, "currency": currency}, nil
	})
	srv := httptest.NewServer(NewServer(":0", NewCollector(), nil, stats).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats/alice/SOL")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"bettor":"alice","currency":"SOL"}`, string(body))

	resp, err = http.Get(srv.URL + "/stats/nobody/SOL")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats/alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
