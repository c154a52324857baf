// ABOUTME: Topic-based pub/sub event bus with wildcard matching and bounded history.
// ABOUTME: Handlers run concurrently per publish; failures are isolated per handler.

package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
)

// DefaultHistorySize is the number of events retained for introspection
// when no explicit size is configured.
const DefaultHistorySize = 1000

// Event is a single published message. Events are immutable once published;
// the bus hands the same value to every handler and to history readers.
type Event struct {
	ID            string         `json:"id"`
	Topic         string         `json:"topic"`
	Payload       map[string]any `json:"payload"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Handler receives published events. Handlers are invoked concurrently and
// must be safe to call from multiple goroutines.
type Handler func(Event)

// subscription pairs a topic pattern with a handler.
type subscription struct {
	id      string
	pattern string
	handler Handler
}

// EventBus routes published events to all handlers whose pattern matches the
// event topic. The zero value is not usable; call New.
type EventBus struct {
	mu          sync.RWMutex
	subs        []*subscription
	history     []Event
	historySize int
	running     bool
	logger      *slog.Logger
}

// New creates an EventBus in the running state. historySize <= 0 selects
// DefaultHistorySize. Pass nil logger for default.
func New(historySize int, logger *slog.Logger) *EventBus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		historySize: historySize,
		running:     true,
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a handler for all topics matching pattern and returns
// a subscription ID for later unsubscription.
func (b *EventBus) Subscribe(pattern string, handler Handler) string {
	sub := &subscription{
		id:      uuid.New().String(),
		pattern: pattern,
		handler: handler,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "pattern", pattern, "sub_id", sub.id)
	return sub.id
}

// Unsubscribe removes the subscription with the given ID. Returns false if
// no such subscription exists.
func (b *EventBus) Unsubscribe(subID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == subID {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			b.logger.Debug("subscriber removed", "pattern", sub.pattern, "sub_id", subID)
			return true
		}
	}
	return false
}

// Publish delivers an event to every matching handler and records it in
// history. It blocks until all handlers have returned; handler panics are
// caught and logged without interrupting delivery to the others. Publishing
// on a stopped bus drops the event.
func (b *EventBus) Publish(topic string, payload map[string]any, source, correlationID string) {
	event := Event{
		ID:            uuid.New().String(),
		Topic:         topic,
		Payload:       payload,
		Source:        source,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		b.logger.Debug("bus stopped, event dropped", "topic", topic, "source", source)
		return
	}
	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	// Snapshot matching handlers so delivery runs without the lock.
	var matched []*subscription
	for _, sub := range b.subs {
		if MatchTopic(sub.pattern, topic) {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	if len(matched) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range matched {
		wg.Add(1)
		go func(sub *subscription) {
			defer wg.Done()
			if r := panics.Try(func() { sub.handler(event) }); r != nil {
				b.logger.Error("event handler panicked",
					"topic", topic,
					"pattern", sub.pattern,
					"sub_id", sub.id,
					"panic", r.Value)
			}
		}(sub)
	}
	wg.Wait()
}

// RecentEvents returns up to limit events in chronological order, newest
// last. A non-empty topicFilter restricts results to topics matching it
// (same wildcard rules as Subscribe). limit <= 0 returns all retained
// events.
func (b *EventBus) RecentEvents(limit int, topicFilter string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.history {
		if topicFilter != "" && !MatchTopic(topicFilter, ev.Topic) {
			continue
		}
		out = append(out, ev)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// HistoryLen returns the number of retained events.
func (b *EventBus) HistoryLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.history)
}

// Running reports whether the bus is accepting publishes.
func (b *EventBus) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Stop halts delivery. Subsequent publishes are dropped. Safe to call
// multiple times.
func (b *EventBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

// Start resumes delivery after Stop.
func (b *EventBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
}
