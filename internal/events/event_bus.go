// Package events provides an event bus distributing the trading process's
// internal events (signals, acks, risk alerts, heartbeats, session status,
// reconnects) to any number of subscribers, e.g. the API's websocket feed
// and the telemetry retry queue.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// EventType categorizes an Event.
type EventType string

const (
	EventTypeSignal        EventType = "signal"
	EventTypeAck           EventType = "ack"
	EventTypeRiskAlert     EventType = "risk_alert"
	EventTypeHeartbeat     EventType = "heartbeat"
	EventTypeSessionStatus EventType = "session_status"
	EventTypeReconnect     EventType = "reconnect"
)

// Event is the base interface every published event implements.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent carries the fields common to every event.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) GetType() EventType      { return e.Type }
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e *BaseEvent) GetID() string           { return e.ID }

// SignalEvent wraps a predictor Signal for distribution to subscribers.
type SignalEvent struct {
	BaseEvent
	Signal types.Signal `json:"signal"`
}

// AckEvent wraps an Executor Ack for distribution to subscribers.
type AckEvent struct {
	BaseEvent
	Symbol string     `json:"symbol"`
	Ack    types.Ack  `json:"ack"`
}

// RiskAlertEvent reports a risk guard rejection or circuit breaker event.
type RiskAlertEvent struct {
	BaseEvent
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"` // e.g. "drawdown_emergency", "circuit_breaker_open"
	Message string `json:"message"`
}

// HeartbeatEvent reports that a symbol task processed a bar within its
// health monitor's timeout window.
type HeartbeatEvent struct {
	BaseEvent
	Symbol string `json:"symbol"`
}

// SessionStatusEvent reports a Session lifecycle transition.
type SessionStatusEvent struct {
	BaseEvent
	Status    types.SessionStatus `json:"status"`
	EndReason string              `json:"endReason,omitempty"`
}

// ReconnectEvent reports a broker bridge connection-state transition.
type ReconnectEvent struct {
	BaseEvent
	State string `json:"state"`
}

func newBaseEvent(t EventType) BaseEvent {
	return BaseEvent{ID: generateEventID(), Type: t, Timestamp: time.Now()}
}

// NewSignalEvent wraps sig.
func NewSignalEvent(sig types.Signal) *SignalEvent {
	return &SignalEvent{BaseEvent: newBaseEvent(EventTypeSignal), Signal: sig}
}

// NewAckEvent wraps ack for symbol.
func NewAckEvent(symbol string, ack types.Ack) *AckEvent {
	return &AckEvent{BaseEvent: newBaseEvent(EventTypeAck), Symbol: symbol, Ack: ack}
}

// NewRiskAlertEvent builds a risk alert event.
func NewRiskAlertEvent(symbol, kind, message string) *RiskAlertEvent {
	return &RiskAlertEvent{BaseEvent: newBaseEvent(EventTypeRiskAlert), Symbol: symbol, Kind: kind, Message: message}
}

// NewHeartbeatEvent builds a heartbeat event for symbol.
func NewHeartbeatEvent(symbol string) *HeartbeatEvent {
	return &HeartbeatEvent{BaseEvent: newBaseEvent(EventTypeHeartbeat), Symbol: symbol}
}

// NewSessionStatusEvent builds a session status event.
func NewSessionStatusEvent(status types.SessionStatus, endReason string) *SessionStatusEvent {
	return &SessionStatusEvent{BaseEvent: newBaseEvent(EventTypeSessionStatus), Status: status, EndReason: endReason}
}

// NewReconnectEvent builds a reconnect event.
func NewReconnectEvent(state string) *ReconnectEvent {
	return &ReconnectEvent{BaseEvent: newBaseEvent(EventTypeReconnect), State: state}
}

var eventCounter atomic.Int64

func generateEventID() string {
	id := eventCounter.Add(1)
	return "evt_" + time.Now().Format("20060102150405") + "_" + itoa(id)
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// EventHandler processes one event. A returned error is logged, not
// propagated.
type EventHandler func(event Event) error

// EventFilter selectively admits events to a subscription.
type EventFilter func(event Event) bool

// SubscriptionOptions configures one subscription's delivery behavior.
type SubscriptionOptions struct {
	Filter EventFilter
	Async  bool
}

// Subscription is a live registration returned by Subscribe.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	Options   SubscriptionOptions
	active    atomic.Bool
}

// IsActive reports whether the subscription is still receiving events.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// Stats summarizes the bus's lifetime activity.
type Stats struct {
	EventsPublished   int64
	EventsProcessed   int64
	EventsDropped     int64
	ProcessingErrors  int64
	ActiveSubscribers int64
}

// Config configures the bus's worker pool and channel buffer.
type Config struct {
	NumWorkers int
	BufferSize int
}

// DefaultConfig returns sensible defaults for a single trading process (far
// fewer workers than a market-making bus needs, since this system emits at
// most one event per symbol per bar).
func DefaultConfig() Config {
	return Config{NumWorkers: 4, BufferSize: 1000}
}

// Bus routes published events to their subscribers, processing
// asynchronously via a small worker pool.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan   chan Event
	workerCount int

	eventsPublished  atomic.Int64
	eventsProcessed  atomic.Int64
	eventsDropped    atomic.Int64
	processingErrors atomic.Int64

	subscriberCount atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New builds a Bus and starts its worker pool.
func New(logger *zap.Logger, cfg Config) *Bus {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[EventType][]*Subscription),
		eventChan:   make(chan Event, cfg.BufferSize),
		workerCount: cfg.NumWorkers,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	logger.Info("event bus started", zap.Int("workers", cfg.NumWorkers), zap.Int("buffer_size", cfg.BufferSize))
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			b.processEvent(event)
		}
	}
}

func (b *Bus) processEvent(event Event) {
	b.mu.RLock()
	subs := b.subscribers[event.GetType()]
	allSubs := b.allSubscribers
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, event)
	}
	for _, sub := range allSubs {
		b.deliver(sub, event)
	}
	b.eventsProcessed.Add(1)
}

func (b *Bus) deliver(sub *Subscription, event Event) {
	if !sub.active.Load() {
		return
	}
	if sub.Options.Filter != nil && !sub.Options.Filter(event) {
		return
	}
	if sub.Options.Async {
		go b.executeHandler(sub, event)
	} else {
		b.executeHandler(sub, event)
	}
}

func (b *Bus) executeHandler(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.processingErrors.Add(1)
			b.logger.Error("event handler panic",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.GetType())),
				zap.Any("panic", r))
		}
	}()

	if err := sub.Handler(event); err != nil {
		b.processingErrors.Add(1)
		b.logger.Warn("event handler error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(event.GetType())),
			zap.Error(err))
	}
}

var subscriptionCounter atomic.Int64

func generateSubscriptionID() string {
	id := subscriptionCounter.Add(1)
	return "sub_" + time.Now().Format("20060102150405") + "_" + itoa(id)
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}

	sub := &Subscription{ID: generateSubscriptionID(), EventType: eventType, Handler: handler, Options: options}
	sub.active.Store(true)

	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.subscriberCount.Add(1)
	return sub
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}

	sub := &Subscription{ID: generateSubscriptionID(), EventType: "*", Handler: handler, Options: options}
	sub.active.Store(true)

	b.allSubscribers = append(b.allSubscribers, sub)
	b.subscriberCount.Add(1)
	return sub
}

// Unsubscribe deactivates sub.
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
	b.subscriberCount.Add(-1)
}

// Publish sends event to all matching subscribers without blocking. If the
// bus's buffer is full, the event is dropped and counted.
func (b *Bus) Publish(event Event) {
	select {
	case b.eventChan <- event:
		b.eventsPublished.Add(1)
	default:
		b.eventsDropped.Add(1)
		b.logger.Warn("event dropped, bus buffer full", zap.String("event_type", string(event.GetType())))
	}
}

// Stats returns a snapshot of the bus's lifetime counters.
func (b *Bus) Stats() Stats {
	return Stats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsProcessed:   b.eventsProcessed.Load(),
		EventsDropped:     b.eventsDropped.Load(),
		ProcessingErrors:  b.processingErrors.Load(),
		ActiveSubscribers: b.subscriberCount.Load(),
	}
}

// Stop shuts the bus down, waiting up to 5s for in-flight handlers.
func (b *Bus) Stop() {
	b.logger.Info("stopping event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped",
			zap.Int64("events_processed", b.eventsProcessed.Load()),
			zap.Int64("events_dropped", b.eventsDropped.Load()))
	case <-time.After(5 * time.Second):
		b.logger.Warn("event bus stop timed out")
	}
}
