package store

import (
	"context"
	"sync"

	"github.com/parstore/parstore/internal/proptree"
)

// EventKind identifies which of the observable events (spec §6) an
// Event carries.
type EventKind int

const (
	EventLoaded EventKind = iota
	EventTornDown
	EventDeleted
	EventChanged
	EventSynced
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "Loaded"
	case EventTornDown:
		return "TornDown"
	case EventDeleted:
		return "Deleted"
	case EventChanged:
		return "Changed"
	case EventSynced:
		return "Synced"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is posted to subscribers asynchronously (spec §6). Changed and
// Synced events carry the complete {values, timestamps} mapping for the
// batch that triggered them; Error carries the background failure that
// triggered it (save or ingestion failures, per spec §7 propagation policy).
type Event struct {
	Kind       EventKind
	Values     map[string]proptree.Value
	Timestamps map[string]int64
	Err        error
}

// publishError reports a background failure (a deferred save or a
// coordinator-triggered ingestion) to subscribers as an Error event
// (spec §7 error-propagation policy). Unlike Changed/Synced, Error has
// no originating call to return the error to, so this is its only path
// to an observer.
func (s *Store) publishError(err error) {
	s.options.logger.Error("background operation failed", "device", s.device, "err", err)
	s.notificationQueue.Async(context.Background(), func(context.Context) {
		s.events.Publish(Event{Kind: EventError, Err: err})
	})
}

// subscription is one registered observer.
type subscription struct {
	id int64
	ch chan Event
}

// eventBus is a concurrent-subscriber-safe publish mechanism. Subscribe
// and Unsubscribe only ever touch the subscriber list under mu; Publish
// sends under mu too, so an unsubscribe cannot close a channel while a
// send to it is in flight. Every send is non-blocking, so a slow or
// blocked subscriber still cannot stall a concurrent Subscribe/
// Unsubscribe call (spec §6: "must not hold subscriber locks while
// mutating state").
type eventBus struct {
	mu      sync.Mutex
	nextID  int64
	members []subscription
}

func newEventBus() *eventBus {
	return &eventBus{}
}

// Subscribe registers a new observer and returns its event channel (
// buffered, so Publish never blocks on a slow consumer within reason)
// plus an unsubscribe function.
func (b *eventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 32)
	b.members = append(b.members, subscription{id: id, ch: ch})
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.members {
			if s.id == id {
				b.members = append(b.members[:i], b.members[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// Publish delivers ev to every currently subscribed observer. Delivery
// is non-blocking per subscriber: a channel that is full drops the
// event rather than stalling the publisher, matching the "posted
// asynchronously" contract — subscribers that need every event should
// drain promptly.
func (b *eventBus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.members {
		select {
		case s.ch <- ev:
		default:
		}
	}
}
