// internal/utils/metrics/collector.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/program"
)

const namespace = "dice_roll"

// Collector holds the pool metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	bets         *prometheus.CounterVec
	staked       *prometheus.CounterVec
	paidOut      *prometheus.CounterVec
	custody      *prometheus.CounterVec
	transactions *prometheus.CounterVec
	failures     *prometheus.CounterVec
	vault        *prometheus.GaugeVec
	duration     *prometheus.HistogramVec

	subs []events.Subscription
}

// NewCollector creates and registers every metric.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_total",
			Help:      "Settled bets by currency and outcome",
		}, []string{"currency", "outcome"}),
		staked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staked_base_units_total",
			Help:      "Stakes collected, in base units of the currency",
		}, []string{"currency"}),
		paidOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paid_out_base_units_total",
			Help:      "Payouts sent to winners, in base units of the currency",
		}, []string{"currency"}),
		custody: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "custody_base_units_total",
			Help:      "Deposits and withdrawals, in base units of the currency",
		}, []string{"direction", "currency"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Processed transactions by status",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Rolled back transactions by program error",
		}, []string{"error"}),
		vault: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_balance_base_units",
			Help:      "Pool balance per currency",
		}, []string{"currency"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Scenario step duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"action"}),
	}

	c.registry.MustRegister(
		c.bets, c.staked, c.paidOut, c.custody,
		c.transactions, c.failures, c.vault, c.duration,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Attach subscribes the collector to every event on bus.
func (c *Collector) Attach(bus *events.Bus) {
	c.subs = append(c.subs, bus.Subscribe(events.AllEvents, events.HandlerFunc(c.handle)))
}

// Detach drops the collector's subscriptions.
func (c *Collector) Detach() {
	for _, s := range c.subs {
		s.Unsubscribe()
	}
	c.subs = nil
}

func (c *Collector) handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.BetSettledEvent:
		c.RecordBet(e.Currency, e.Amount, e.Payout, e.IsWin)
	case events.CustodyEvent:
		direction := "deposit"
		if e.Type() == events.FundsWithdrawn {
			direction = "withdraw"
		}
		c.custody.WithLabelValues(direction, currencyLabel(e.Currency)).Add(float64(e.Amount))
	case events.ActionCompletedEvent:
		c.transactions.WithLabelValues("committed").Inc()
	case events.ActionFailedEvent:
		c.transactions.WithLabelValues("failed").Inc()
		c.failures.WithLabelValues(errorLabel(e.Err)).Inc()
	}
	return nil
}

// RecordBet counts one settled bet.
func (c *Collector) RecordBet(currency solana.PublicKey, amount, payout uint64, win bool) {
	label := currencyLabel(currency)
	outcome := "loss"
	if win {
		outcome = "win"
	}
	c.bets.WithLabelValues(label, outcome).Inc()
	c.staked.WithLabelValues(label).Add(float64(amount))
	c.paidOut.WithLabelValues(label).Add(float64(payout))
}

// SetVaultBalance records the current pool balance of currency.
func (c *Collector) SetVaultBalance(currency solana.PublicKey, amount uint64) {
	c.vault.WithLabelValues(currencyLabel(currency)).Set(float64(amount))
}

// ObserveStep records how long one scenario step took.
func (c *Collector) ObserveStep(action string, d time.Duration) {
	c.duration.WithLabelValues(action).Observe(d.Seconds())
}

// Reset clears every vector.
func (c *Collector) Reset() {
	c.bets.Reset()
	c.staked.Reset()
	c.paidOut.Reset()
	c.custody.Reset()
	c.transactions.Reset()
	c.failures.Reset()
	c.vault.Reset()
	c.duration.Reset()
}

func currencyLabel(mint solana.PublicKey) string {
	if mint.Equals(program.WrappedSolMint) {
		return "SOL"
	}
	return mint.String()
}

func errorLabel(err error) string {
	var pe *program.Error
	if errors.As(err, &pe) {
		return pe.Name
	}
	return "host"
}
