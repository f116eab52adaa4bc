// internal/cache/bettor_stats.go
package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"go.uber.org/zap"
)

// Hash is the subset of redis commands the stats cache uses.
type Hash interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

const (
	fieldBets    = "bets"
	fieldWins    = "wins"
	fieldStaked  = "staked"
	fieldPaidOut = "paid_out"
)

// Connect opens a redis client and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Stats are running totals for one bettor in one currency. Amounts are in
// base units.
type Stats struct {
	Bets    int64
	Wins    int64
	Staked  int64
	PaidOut int64
}

// BettorStats keeps per-bettor running totals of settled bets in redis
// hashes.
type BettorStats struct {
	r      Hash
	logger *zap.Logger
	sub    events.Subscription
}

// NewBettorStats creates a stats cache over r.
func NewBettorStats(r Hash, logger *zap.Logger) *BettorStats {
	return &BettorStats{r: r, logger: logger.Named("bettor-stats")}
}

func statsKey(bettor, currency solana.PublicKey) string {
	return "dice:bettor:" + bettor.String() + ":" + currency.String()
}

// Attach subscribes to settled bets on bus.
func (s *BettorStats) Attach(bus *events.Bus) {
	s.sub = bus.Subscribe(events.BetSettled, events.BetHandlerFunc(s.record))
}

// Detach removes the subscription.
func (s *BettorStats) Detach() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

type increment struct {
	field string
	by    int64
}

// Handle implements events.Handler.
func (s *BettorStats) Handle(ctx context.Context, event events.Event) error {
	return events.BetHandlerFunc(s.record).Handle(ctx, event)
}

func (s *BettorStats) record(ctx context.Context, e events.BetSettledEvent) error {
	key := statsKey(e.Bettor, e.Currency)

	incr := []increment{{fieldBets, 1}, {fieldStaked, int64(e.Amount)}}
	if e.IsWin {
		incr = append(incr, increment{fieldWins, 1}, increment{fieldPaidOut, int64(e.Payout)})
	}
	for _, i := range incr {
		if err := s.r.HIncrBy(ctx, key, i.field, i.by).Err(); err != nil {
			return fmt.Errorf("failed to update %s of %s: %w", i.field, key, err)
		}
	}

	s.logger.Debug("Bettor stats updated", zap.String("key", key))
	return nil
}

// Get returns the totals of bettor in currency. Unknown bettors have zero
// totals.
func (s *BettorStats) Get(ctx context.Context, bettor, currency solana.PublicKey) (Stats, error) {
	key := statsKey(bettor, currency)
	fields, err := s.r.HGetAll(ctx, key).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var st Stats
	for field, dst := range map[string]*int64{
		fieldBets:    &st.Bets,
		fieldWins:    &st.Wins,
		fieldStaked:  &st.Staked,
		fieldPaidOut: &st.PaidOut,
	} {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("corrupt %s in %s: %w", field, key, err)
		}
		*dst = v
	}
	return st, nil
}

var _ events.Handler = (*BettorStats)(nil)
