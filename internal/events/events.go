// Package events is an in-process bus for catalog change notifications.
package events

import (
	"sync"
	"time"
)

// Event types published on catalog writes.
const (
	BlockCreated      = "lane_block.created"
	BlockReplaced     = "lane_block.replaced"
	BlockDeleted      = "lane_block.deleted"
	PromotionUpserted = "promotion.upserted"
	PromotionToggled  = "promotion.toggled"
	PromotionDeleted  = "promotion.deleted"
	CatalogSynced     = "catalog.synced"
	CatalogRefreshed  = "catalog.refreshed"
)

// Event describes one change.
type Event struct {
	Type string
	// Subject is the id of the changed row, when there is one.
	Subject string
	// Previous is set on replacements to the id that was removed.
	Previous  string
	Attrs     map[string]any
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub.
type Bus struct {
	subscribers map[string][]Handler
	all         []Handler
	mu          sync.RWMutex

	// OnError, when set, receives handler failures.
	OnError func(event Event, err error)
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers synchronously, type handlers first.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	onError := b.OnError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}
