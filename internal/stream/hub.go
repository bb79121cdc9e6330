// Package stream distributes ledger change notifications to interested consumers.
package stream

import (
	"sync"
	"time"
)

// EventType identifies a ledger mutation.
type EventType string

const (
	EventTradeCreated    EventType = "trade.created"
	EventTradeUpdated    EventType = "trade.updated"
	EventTradeClosed     EventType = "trade.closed"
	EventTradeDeleted    EventType = "trade.deleted"
	EventImported        EventType = "ledger.imported"
	EventHistoryCleared  EventType = "ledger.history_cleared"
	EventPricesRefreshed EventType = "ledger.prices_refreshed"
)

// LedgerEvent is one notification emitted after a successful ledger mutation.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	TradeID   string    `json:"tradeId,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Count     int       `json:"count,omitempty"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// HubConfig holds configuration for the event hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize: 64,
	}
}

// Hub fans ledger events out to subscribers. Publish never blocks: an event
// that does not fit in a subscriber's buffer is dropped for that subscriber.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers []*Subscriber
	consumers   []Consumer
	closed      bool

	metricsMu sync.Mutex
	published uint64
	delivered uint64
	dropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	Channel      chan LedgerEvent
	Types        map[EventType]bool
	DroppedCount int
	CreatedAt    time.Time
}

func (s *Subscriber) wants(t EventType) bool {
	return len(s.Types) == 0 || s.Types[t]
}

// NewHub creates a new event hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new event hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{config: config}
}

// Subscribe returns a channel receiving events of the given types, or of every
// type when none are given.
func (h *Hub) Subscribe(types ...EventType) <-chan LedgerEvent {
	sub := &Subscriber{
		Channel:   make(chan LedgerEvent, h.config.SubscriberBufferSize),
		Types:     make(map[EventType]bool, len(types)),
		CreatedAt: time.Now(),
	}
	for _, t := range types {
		sub.Types[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.Channel)
		return sub.Channel
	}
	h.subscribers = append(h.subscribers, sub)
	return sub.Channel
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(ch <-chan LedgerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subscribers {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every matching subscriber and consumer.
// A nil hub ignores the call.
func (h *Hub) Publish(event LedgerEvent) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	var delivered, dropped uint64
	for _, sub := range h.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.Channel <- event:
			delivered++
		default:
			sub.DroppedCount++
			dropped++
		}
	}
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.mu.RUnlock()

	for _, c := range consumers {
		c.OnEvent(event)
	}

	h.metricsMu.Lock()
	h.published++
	h.delivered += delivered
	h.dropped += dropped
	h.metricsMu.Unlock()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subscribers {
		close(sub.Channel)
	}
	h.subscribers = nil
}

// SubscriberCount returns the number of open subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// HubMetrics contains hub delivery counters.
type HubMetrics struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.Lock()
	m := HubMetrics{
		Published: h.published,
		Delivered: h.delivered,
		Dropped:   h.dropped,
	}
	h.metricsMu.Unlock()
	m.Subscribers = h.SubscriberCount()
	return m
}

// Consumer receives events synchronously on the publishing goroutine.
type Consumer interface {
	OnEvent(event LedgerEvent)
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(LedgerEvent)

// OnEvent implements Consumer.
func (f ConsumerFunc) OnEvent(event LedgerEvent) {
	f(event)
}

// RegisterConsumer adds a consumer.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.mu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.mu.Unlock()
}
