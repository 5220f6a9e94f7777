package worker

import (
	"sync"

	"llamaworker/pkg/types"
)

// EventPublisher receives every outbound event of a worker, in order, on the
// loop goroutine (WRITE_RESULT may also come from the engine's output
// goroutine while a run blocks the loop). Publish must not panic.
type EventPublisher interface {
	Publish(types.Event)
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(types.Event)

func (f PublisherFunc) Publish(e types.Event) { f(e) }

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(types.Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e types.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Broadcaster fans events out to subscribers by correlation id. Publish
// waits for every matching subscriber to take the event or unsubscribe, so
// nothing is dropped and a slow subscriber slows the worker down. Events
// for other ids never reach a subscriber.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

type subscription struct {
	id   string
	ch   chan types.Event
	done chan struct{}
	once sync.Once
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a subscriber for events carrying id; an empty id
// receives every event. The returned cancel func must be called once the
// caller stops reading; the channel is never closed.
func (b *Broadcaster) Subscribe(id string, buf int) (<-chan types.Event, func()) {
	s := &subscription{id: id, ch: make(chan types.Event, buf), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s.ch, func() {
		s.once.Do(func() {
			close(s.done)
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		})
	}
}

func (b *Broadcaster) Publish(e types.Event) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		if s.id == "" || s.id == e.ID {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()
	for _, s := range subs {
		select {
		case s.ch <- e:
		case <-s.done:
		}
	}
}
