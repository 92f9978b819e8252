// Package events implements the fan-out event bus every Service Runner
// state transition is published to. Grounded on core/profiling's
// Events()/Errors() channel shape, generalized from one-session-at-a-time
// to many concurrent subscribers.
package events

import (
	"sync"
	"time"
)

// Event is a single service state transition.
type Event struct {
	Service   string
	From      string
	To        string
	Timestamp time.Time
	Reason    string
}

const subscriberQueueDepth = 64

// Bus is a single-writer-many-reader fan-out channel. Each subscriber gets
// its own bounded queue; a subscriber that falls behind is dropped rather
// than allowed to block publication, and must resubscribe to resume
// receiving events.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its id (for Unsubscribe)
// and its receive channel. The channel is closed if the subscriber is
// dropped for falling behind, or on explicit Unsubscribe.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberQueueDepth)
	b.subs[id] = ch
	return id, ch
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every current subscriber without blocking. A
// subscriber whose queue is full is dropped immediately; it must call
// Subscribe again to resume receiving events.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}
