// Event pub/sub: best-effort fan-out to the popup UI and bridged web apps.

package bus

import (
	"log/slog"
	"sync"
)

// EventKind names a broadcast event.
type EventKind string

// Broadcast events. scanProgress and the platform events fire in scan order;
// the web-app flavored platformStarted/platformCompleted mirror the popup
// events with a different payload shape.
const (
	EventScanStarted           EventKind = "scanStarted"
	EventScanProgress          EventKind = "scanProgress"
	EventScanCompleted         EventKind = "scanCompleted"
	EventScanCancelled         EventKind = "scanCancelled"
	EventPlatformScanStarted   EventKind = "platformScanStarted"
	EventPlatformScanCompleted EventKind = "platformScanCompleted"
	EventPlatformStarted       EventKind = "platformStarted"
	EventPlatformCompleted     EventKind = "platformCompleted"
	EventProfileData           EventKind = "profileDataExtracted"
	EventSearchResults         EventKind = "searchResultsExtracted"
	EventAuthRequired          EventKind = "authenticationRequired"
	EventContentScriptReady    EventKind = "contentScriptReady"
	EventWebApp                EventKind = "webappEvent"
)

// Event is one broadcast message.
type Event struct {
	Kind EventKind `json:"event"`
	Data any       `json:"data,omitempty"`
}

// Hub fans events out to subscribers. Delivery is best-effort: a subscriber
// with a full buffer misses the event, and publishing with no subscribers is
// not an error.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger
}

// NewHub creates an event hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[int]chan Event), logger: logger}
}

// Subscribe registers a consumer. The returned cancel function is idempotent
// and must be called to release the subscription.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber that has buffer room.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("subscriber buffer full, dropping event",
				"subscriber", id, "event", ev.Kind)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
