// Package actor implements the typed message-passing runtime described in
// spec.md §4.A: bounded multi-producer/multi-subscriber broadcast channels
// (Broadcaster), reader-writer-guarded shared cells (SharedState), and the
// Actor/Producer/Consumer/Accessor vocabulary actors are wired with.
//
// The broadcaster is modeled on the teacher's node.EventBus (per-subscriber
// buffered channel, Subscribe/Unsubscribe, safe for concurrent use) but
// adapted to a generic payload type and to the spec's drop-oldest
// backpressure policy instead of EventBus's drop-newest PublishAsync.
package actor

import (
	"errors"
	"sync"
)

// ErrBroadcasterClosed is returned by Subscribe once Close has been called.
var ErrBroadcasterClosed = errors.New("actor: broadcaster is closed")

// Broadcaster is a bounded, multi-producer, multi-subscriber channel.
// Every subscriber receives every message sent from the moment it
// subscribes; a subscriber that falls behind loses its oldest buffered
// items rather than blocking the sender (spec.md §4.A, §5 backpressure).
type Broadcaster[M any] struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription[M]
	nextID  uint64
	backlog int
	closed  bool
}

// NewBroadcaster creates a Broadcaster whose subscribers each keep up to
// backlog unread messages before the oldest is dropped.
func NewBroadcaster[M any](backlog int) *Broadcaster[M] {
	if backlog < 1 {
		backlog = 1
	}
	return &Broadcaster[M]{
		subs:    make(map[uint64]*subscription[M]),
		backlog: backlog,
	}
}

// subscription is a single subscriber's bounded mailbox. A dedicated
// goroutine drains the unbounded-looking Consumer.C by way of a small
// internal ring, so Send never blocks on a slow subscriber.
type subscription[M any] struct {
	mu     sync.Mutex
	ring   []M
	out    chan M
	notify chan struct{}
	done   chan struct{}
}

// Consumer is the read handle a worker holds to receive broadcast messages.
type Consumer[M any] struct {
	sub *subscription[M]
}

// Producer is the write handle a worker holds to publish broadcast messages.
type Producer[M any] struct {
	b *Broadcaster[M]
}

// C returns the channel a worker should range/select over.
func (c Consumer[M]) C() <-chan M { return c.sub.out }

// Unsubscribe stops delivery and releases the subscription's resources.
func (c Consumer[M]) Unsubscribe() {
	close(c.sub.done)
}

// Send publishes a message to every current subscriber. It returns true if
// at least one subscriber was registered to receive it (spec.md §4.A: "send
// returns whether at least one subscriber received it").
func (p Producer[M]) Send(msg M) bool {
	return p.b.Send(msg)
}

// Subscribe registers a new subscriber. Fails only if the broadcaster has
// been closed.
func (b *Broadcaster[M]) Subscribe() (Consumer[M], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Consumer[M]{}, ErrBroadcasterClosed
	}

	b.nextID++
	sub := &subscription[M]{
		out:    make(chan M, b.backlog),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	id := b.nextID
	b.subs[id] = sub
	go sub.pump(b, id)
	return Consumer[M]{sub: sub}, nil
}

// Producer returns a Producer handle bound to this broadcaster.
func (b *Broadcaster[M]) Producer() Producer[M] { return Producer[M]{b: b} }

// Send fans a message out to all subscribers. A subscriber whose mailbox is
// full has its oldest buffered message evicted to make room, so Send never
// blocks on I/O or a stalled consumer.
func (b *Broadcaster[M]) Send(msg M) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed || len(b.subs) == 0 {
		return false
	}
	for _, sub := range b.subs {
		sub.push(msg)
	}
	return true
}

// Close shuts the broadcaster down; further Subscribe calls fail and all
// subscriber channels are closed once drained.
func (b *Broadcaster[M]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.done)
	}
	b.subs = nil
}

func (s *subscription[M]) push(msg M) {
	s.mu.Lock()
	if len(s.ring) >= cap(s.out) {
		// Drop the oldest buffered item to make room (spec.md §5).
		s.ring = s.ring[1:]
	}
	s.ring = append(s.ring, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump drains the ring into the public channel, removes the subscription
// from the broadcaster on exit.
func (s *subscription[M]) pump(b *Broadcaster[M], id uint64) {
	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(s.out)
	}()

	for {
		s.mu.Lock()
		var next M
		has := false
		if len(s.ring) > 0 {
			next = s.ring[0]
			s.ring = s.ring[1:]
			has = true
		}
		s.mu.Unlock()

		if has {
			select {
			case s.out <- next:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case <-s.notify:
			continue
		case <-s.done:
			return
		}
	}
}
