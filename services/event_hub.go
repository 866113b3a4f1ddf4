package services

import (
	"log"
	"sync"
	"sync/atomic"

	"duel-match-system/engine"
)

// EventHub fans match events out to SSE subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event and catches up through
// GET /matches/:id.
type EventHub struct {
	buffer int
	topics sync.Map // match id -> *topic
	lobby  *topic   // subscribers of every match
	drops  atomic.Int64
}

type topic struct {
	mu   sync.RWMutex
	subs map[chan engine.Event]struct{}
	dead bool // removed from topics, subscribers must pick a fresh one
}

func newTopic() *topic {
	return &topic{subs: map[chan engine.Event]struct{}{}}
}

func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventHub{buffer: buffer, lobby: newTopic()}
}

var _ engine.Notifier = (*EventHub)(nil)

func (h *EventHub) Publish(e engine.Event) {
	if v, ok := h.topics.Load(e.MatchID); ok {
		h.deliver(v.(*topic), e)
	}
	h.deliver(h.lobby, e)
}

func (h *EventHub) deliver(t *topic, e engine.Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for ch := range t.subs {
		select {
		case ch <- e:
		default:
			if n := h.drops.Add(1); n%100 == 1 {
				log.Printf("⚠️ [EventHub] slow subscriber, dropped %s for match %s (%d drops total)", e.Type, e.MatchID, n)
			}
		}
	}
}

// Subscribe returns a channel of events for one match ("" for every match)
// and the function that releases it.
func (h *EventHub) Subscribe(matchID string) (<-chan engine.Event, func()) {
	ch := make(chan engine.Event, h.buffer)
	var t *topic
	for {
		t = h.lobby
		if matchID != "" {
			v, _ := h.topics.LoadOrStore(matchID, newTopic())
			t = v.(*topic)
		}
		t.mu.Lock()
		if !t.dead {
			t.subs[ch] = struct{}{}
			t.mu.Unlock()
			break
		}
		t.mu.Unlock()
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, ch)
			if len(t.subs) == 0 && matchID != "" {
				t.dead = true
				h.topics.CompareAndDelete(matchID, t)
			}
		})
	}
}

// Dropped is the number of events not delivered to slow subscribers
func (h *EventHub) Dropped() int64 {
	return h.drops.Load()
}
