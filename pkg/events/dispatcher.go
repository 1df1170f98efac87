// Package events implements a small generic publish/subscribe broadcaster
// used to wire the Auctioneer, Bidder, and beacon-event client together as
// independent tasks connected by typed channels, rather than as a shared
// mutable object graph.
package events

import "sync"

// Subscription is a single consumer's view of a Dispatcher[T]'s stream.
type Subscription[T any] struct {
	ch     chan T
	parent *Dispatcher[T]
	once   sync.Once
}

// Channel returns the channel events are delivered on.
func (s *Subscription[T]) Channel() <-chan T {
	return s.ch
}

// Unsubscribe removes this subscription from its dispatcher. Safe to call
// more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.parent.remove(s)
	})
}

// Dispatcher broadcasts events of type T to any number of subscribers.
// Zero value is ready to use.
type Dispatcher[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
	last T
	has  bool
}

// Subscribe registers a new subscriber with the given channel buffer
// capacity. If replay is true and an event has already been fired, the
// most recent event is delivered to the new subscriber immediately
// (non-blocking, best-effort).
func (d *Dispatcher[T]) Subscribe(capacity int, replay bool) *Subscription[T] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subs == nil {
		d.subs = make(map[*Subscription[T]]struct{})
	}

	sub := &Subscription[T]{
		ch:     make(chan T, capacity),
		parent: d,
	}
	d.subs[sub] = struct{}{}

	if replay && d.has {
		select {
		case sub.ch <- d.last:
		default:
		}
	}

	return sub
}

// Fire broadcasts an event to every current subscriber. Delivery is
// non-blocking per subscriber: a subscriber whose channel is full does not
// block the others.
func (d *Dispatcher[T]) Fire(event T) {
	d.mu.Lock()
	d.last = event
	d.has = true

	subs := make([]*Subscription[T], 0, len(d.subs))
	for sub := range d.subs {
		subs = append(subs, sub)
	}
	d.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (d *Dispatcher[T]) remove(sub *Subscription[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.subs, sub)
	close(sub.ch)
}

// SubscriberCount returns the current number of active subscriptions.
func (d *Dispatcher[T]) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.subs)
}
