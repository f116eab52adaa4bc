// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllEvents subscribes a handler to every event type.
const AllEvents EventType = "*"

var (
	ErrBusClosed  = errors.New("event bus is shut down")
	ErrBufferFull = errors.New("event buffer full")
)

// Handler reacts to events. Handlers run on the bus worker and should return
// quickly.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// BetHandlerFunc adapts a function over settled bets to Handler. Other
// events are ignored, so it is safe to subscribe under AllEvents.
type BetHandlerFunc func(ctx context.Context, bet BetSettledEvent) error

func (f BetHandlerFunc) Handle(ctx context.Context, event Event) error {
	bet, ok := event.(BetSettledEvent)
	if !ok {
		return nil
	}
	return f(ctx, bet)
}

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  string
	bus *Bus
	typ EventType
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.typ)
}

// Bus delivers events to subscribers in publish order on a single worker.
// Settlement results committed by one transaction are therefore seen by
// handlers before those of the next.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]Handler
	logger   *zap.Logger

	queue   chan Event
	closed  chan struct{}
	once    sync.Once
	done    chan struct{}
	dropped atomic.Uint64
	handled atomic.Uint64
}

// NewBus starts a bus with room for bufferSize pending events.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	b := &Bus{
		handlers: make(map[EventType]map[string]Handler),
		logger:   logger.Named("event_bus"),
		queue:    make(chan Event, bufferSize),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers handler for eventType, or for everything with AllEvents.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{id: id, bus: b, typ: eventType}
}

// SubscribeFunc subscribes a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues event without blocking. A full buffer drops the event.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.closed:
		return ErrBusClosed
	default:
	}

	select {
	case b.queue <- event:
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBufferFull
	}
}

// PublishSync delivers event on the calling goroutine and joins handler
// errors.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for id, handler := range b.handlersFor(event.Type()) {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	b.handled.Add(1)

	if len(errs) > 0 {
		return fmt.Errorf("handlers failed for %s: %w", event.Type(), errors.Join(errs...))
	}
	return nil
}

func (b *Bus) handlersFor(eventType EventType) map[string]Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Handler, len(b.handlers[eventType])+len(b.handlers[AllEvents]))
	for id, h := range b.handlers[eventType] {
		out[id] = h
	}
	for id, h := range b.handlers[AllEvents] {
		out[id] = h
	}
	return out
}

// flushMarker is queued by Flush and never reaches handlers.
type flushMarker struct {
	BaseEvent
	done chan struct{}
}

// Flush waits until every event queued before the call has been handled.
// Unlike Publish it blocks while the buffer is full.
func (b *Bus) Flush(ctx context.Context) error {
	m := flushMarker{done: make(chan struct{})}
	select {
	case <-b.closed:
		return ErrBusClosed
	case b.queue <- m:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-m.done:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) deliver(event Event) {
	if m, ok := event.(flushMarker); ok {
		close(m.done)
		return
	}
	_ = b.PublishSync(context.Background(), event)
}

func (b *Bus) run() {
	defer close(b.done)

	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.closed:
			for {
				select {
				case event := <-b.queue:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events and waits for the queue to drain.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.once.Do(func() {
		b.logger.Info("Shutting down event bus")
		close(b.closed)
	})

	select {
	case <-b.done:
		b.logger.Info("Event bus shutdown complete",
			zap.Uint64("handled", b.handled.Load()),
			zap.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats is a snapshot of bus counters.
type Stats struct {
	BufferSize      int
	Pending         int
	Handled         uint64
	Dropped         uint64
	HandlersPerType map[EventType]int
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		BufferSize:      cap(b.queue),
		Pending:         len(b.queue),
		Handled:         b.handled.Load(),
		Dropped:         b.dropped.Load(),
		HandlersPerType: make(map[EventType]int, len(b.handlers)),
	}
	for typ, handlers := range b.handlers {
		s.HandlersPerType[typ] = len(handlers)
	}
	return s
}
