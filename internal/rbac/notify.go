package rbac

import (
	"context"
	"sync"
	"time"
)

// ChangeKind names what a Change describes.
type ChangeKind string

// Change kinds emitted by the registry and the matrix store.
const (
	ChangeRoleRegistered ChangeKind = "role.registered"
	ChangeGrantSet       ChangeKind = "grant.set"
)

// Change is a notification that the permission data moved.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Role   Role       `json:"role"`
	Grant  *Grant     `json:"grant,omitempty"`
	Actor  string     `json:"actor,omitempty"`
	At     time.Time  `json:"at"`
	Origin string     `json:"origin,omitempty"`
}

// Publisher receives changes after they have been committed.
type Publisher interface {
	Publish(Change)
}

// Broker fans changes out to in-process subscribers. Publish never blocks:
// every subscriber owns an unbounded queue drained by its own goroutine.
type Broker struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewBroker returns a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*subscriber]struct{})}
}

type subscriber struct {
	mu     sync.Mutex
	queue  []Change
	signal chan struct{}
	out    chan Change
}

// Subscribe returns a channel that receives every change published after the
// call. The channel is closed once ctx is done.
func (b *Broker) Subscribe(ctx context.Context) <-chan Change {
	s := &subscriber{
		signal: make(chan struct{}, 1),
		out:    make(chan Change),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump(ctx, func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	})
	return s.out
}

// Publish queues c for every current subscriber.
func (b *Broker) Publish(c Change) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.enqueue(c)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (s *subscriber) enqueue(c Change) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump(ctx context.Context, remove func()) {
	defer close(s.out)
	defer remove()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.signal:
				continue
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-ctx.Done():
			return
		}
	}
}
