// internal/publisher/kafka.go
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a writer for topic on brokers.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// Message is the JSON payload written for every pool event.
type Message struct {
	Type     events.EventType `json:"type"`
	Account  string           `json:"account"`
	Currency string           `json:"currency,omitempty"`
	Amount   uint64           `json:"amount,omitempty"`
	Payout   uint64           `json:"payout,omitempty"`
	IsWin    *bool            `json:"is_win,omitempty"`
	MintA    string           `json:"token_mint_a,omitempty"`
	MintB    string           `json:"token_mint_b,omitempty"`
	TsUnixMs int64            `json:"ts_unix_ms"`
}

// KafkaPublisher forwards settled bets and custody movements to a topic.
// Messages are keyed by account so one bettor's history stays ordered
// within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
	subs   []events.Subscription
}

// NewKafkaPublisher creates a publisher writing through w.
func NewKafkaPublisher(w MessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger.Named("kafka-publisher")}
}

// Attach subscribes the publisher to the pool events on bus.
func (p *KafkaPublisher) Attach(bus *events.Bus) {
	for _, typ := range []events.EventType{
		events.PoolInitialized,
		events.BetSettled,
		events.FundsDeposited,
		events.FundsWithdrawn,
	} {
		p.subs = append(p.subs, bus.Subscribe(typ, p))
	}
}

// Detach removes the subscriptions.
func (p *KafkaPublisher) Detach() {
	for _, s := range p.subs {
		s.Unsubscribe()
	}
	p.subs = nil
}

// Close detaches and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.Detach()
	return p.writer.Close()
}

// Handle implements events.Handler.
func (p *KafkaPublisher) Handle(ctx context.Context, event events.Event) error {
	msg, ok := toMessage(event)
	if !ok {
		return nil
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event.Type(), err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Account),
		Value: value,
		Time:  event.Timestamp(),
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type(), err)
	}

	p.logger.Debug("Event published",
		zap.String("event_type", string(event.Type())),
		zap.String("account", msg.Account))
	return nil
}

func toMessage(event events.Event) (Message, bool) {
	msg := Message{Type: event.Type(), TsUnixMs: event.Timestamp().UnixMilli()}
	switch e := event.(type) {
	case events.BetSettledEvent:
		win := e.IsWin
		msg.Account = e.Bettor.String()
		msg.Currency = e.Currency.String()
		msg.Amount = e.Amount
		msg.Payout = e.Payout
		msg.IsWin = &win
	case events.CustodyEvent:
		msg.Account = e.Account.String()
		msg.Currency = e.Currency.String()
		msg.Amount = e.Amount
	case events.PoolInitializedEvent:
		msg.Account = e.Administrator.String()
		msg.MintA = e.TokenMintA.String()
		msg.MintB = e.TokenMintB.String()
	default:
		return Message{}, false
	}
	return msg, true
}

var _ events.Handler = (*KafkaPublisher)(nil)
