package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"lyrics-sync-go/playback"
)

// DefaultCapacity is the number of recent events the bus retains
const DefaultCapacity = 64

var (
	ErrClosed = errors.New("event bus is closed")
	ErrLagged = errors.New("subscriber lagged behind the event bus")
)

// LaggedError is returned by Recv when events were overwritten before the subscriber read
// them. The subscriber's cursor has already skipped forward to the oldest retained event.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged, skipped %d events", e.Skipped)
}

func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}

// Bus is a bounded multi-consumer broadcast ring.
//
// Publish never blocks: when the ring is full the oldest event is overwritten and slow
// subscribers find out on their next Recv.
type Bus struct {
	mu       sync.Mutex
	ring     []playback.Event
	next     uint64 // sequence number of the next published event
	subs     map[string]*Subscription
	closed   bool
	capacity int
}

// NewBus creates a bus retaining capacity events
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring:     make([]playback.Event, capacity),
		subs:     make(map[string]*Subscription),
		capacity: capacity,
	}
}

// Publish appends an event and wakes every subscriber
func (b *Bus) Publish(event playback.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.ring[b.next%uint64(b.capacity)] = event
	b.next++

	for _, sub := range b.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a subscription that receives events published from now on
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:     uuid.NewString(),
		bus:    b,
		cursor: b.next,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if b.closed {
		close(sub.done)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Recent returns the retained events, oldest first
func (b *Bus) Recent() []playback.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := b.oldestLocked()
	events := make([]playback.Event, 0, b.next-oldest)
	for seq := oldest; seq < b.next; seq++ {
		events = append(events, b.ring[seq%uint64(b.capacity)])
	}
	return events
}

// SubscriberCount returns the number of live subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Subscribers drain what is still retained and then get ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.done)
		delete(b.subs, id)
	}
}

func (b *Bus) oldestLocked() uint64 {
	if b.next > uint64(b.capacity) {
		return b.next - uint64(b.capacity)
	}
	return 0
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.done)
	}
}

// Subscription is one consumer's cursor into the bus
type Subscription struct {
	id     string
	bus    *Bus
	cursor uint64
	notify chan struct{}
	done   chan struct{}
}

// ID returns the subscription's unique identifier
func (s *Subscription) ID() string {
	return s.id
}

// TryRecv returns the next event without waiting.
// ok is false when no event is pending. err is a *LaggedError or ErrClosed.
func (s *Subscription) TryRecv() (event playback.Event, ok bool, err error) {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if oldest := b.oldestLocked(); s.cursor < oldest {
		skipped := oldest - s.cursor
		s.cursor = oldest
		return playback.Event{}, false, &LaggedError{Skipped: skipped}
	}

	if s.cursor < b.next {
		event = b.ring[s.cursor%uint64(b.capacity)]
		s.cursor++
		return event, true, nil
	}

	select {
	case <-s.done:
		return playback.Event{}, false, ErrClosed
	default:
	}

	return playback.Event{}, false, nil
}

// Recv waits for the next event, the subscription closing, or ctx being done
func (s *Subscription) Recv(ctx context.Context) (playback.Event, error) {
	for {
		event, ok, err := s.TryRecv()
		if err != nil {
			return playback.Event{}, err
		}
		if ok {
			return event, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return playback.Event{}, ctx.Err()
		}
	}
}

// Close detaches the subscription from the bus
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}
