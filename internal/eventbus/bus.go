package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Listeners (Listen) are called synchronously on the publishing
//     goroutine, in registration order. They must not block for long.
//   - Subscribers (Subscribe) use buffered channels and never block Publish.
//     Slow subscribers may drop events (bounded backpressure).
//
// Data must be treated as read-only by every consumer.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Handler receives events delivered to a listener.
type Handler func(e Event)

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	Listen(h Handler) (unlisten func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type listener struct {
	id uint64
	h  Handler
}

type memBus struct {
	mu        sync.RWMutex
	subs      map[uint64]chan Event
	listeners []listener
	seq       atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	ls := append([]listener(nil), b.listeners...)
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, l := range ls {
		deliver(l.h, e)
	}

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

// deliver shields the publisher from a panicking listener.
func deliver(h Handler, e Event) {
	defer func() { _ = recover() }()
	h(e)
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}

func (b *memBus) Listen(h Handler) func() {
	if h == nil {
		return func() {}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.listeners = append(b.listeners, listener{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, l := range b.listeners {
				if l.id == id {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}
