package queue

import (
	"sync"

	"github.com/yinyajiang/ytq/model"
)

// Notifier receives queue state transitions. Implementations must not
// block; failures are theirs to log, the queue never checks.
type Notifier interface {
	Added(item *model.Item)
	Updated(item *model.Item)
	Completed(item *model.Item)
	Canceled(id string)
	Cleared(id string)
}

const (
	EventAdded     = "added"
	EventUpdated   = "updated"
	EventCompleted = "completed"
	EventCanceled  = "canceled"
	EventCleared   = "cleared"
)

type Event struct {
	Type string
	ID   string
	Item *model.Item
}

// Relay fans events out to subscriber channels, the seam the WebSocket
// layer drains. A subscriber that stops draining loses events rather
// than stalling the dispatch loop.
type Relay struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewRelay() *Relay {
	return &Relay{
		subs: make(map[int]chan Event),
	}
}

func (r *Relay) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	r.mu.Lock()
	id := r.next
	r.next++
	r.subs[id] = ch
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
		r.mu.Unlock()
	}
}

func (r *Relay) publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (r *Relay) Added(item *model.Item) {
	r.publish(Event{Type: EventAdded, ID: item.ID, Item: item})
}

func (r *Relay) Updated(item *model.Item) {
	r.publish(Event{Type: EventUpdated, ID: item.ID, Item: item})
}

func (r *Relay) Completed(item *model.Item) {
	r.publish(Event{Type: EventCompleted, ID: item.ID, Item: item})
}

func (r *Relay) Canceled(id string) {
	r.publish(Event{Type: EventCanceled, ID: id})
}

func (r *Relay) Cleared(id string) {
	r.publish(Event{Type: EventCleared, ID: id})
}
