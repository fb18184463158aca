package executor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSubscriberBuffer is used when Subscribe is called with a non-positive buffer.
const DefaultSubscriberBuffer = 16

// Hub fans connection events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses that event and can re-read the
// Manager's Status instead.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	logger *zap.Logger
}

// NewHub creates an empty hub. A nil logger disables drop warnings.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]chan Event),
		logger: logger,
	}
}

// Subscribe registers a new observer. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
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

// Publish delivers ev to every subscriber. A zero Time is set to now.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping connection event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("event", string(ev.Type)))
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
