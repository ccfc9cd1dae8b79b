package bridge

import (
	"context"
	"sync"
)

const defaultQueueCapacity = 1024

// Queue is a bounded FIFO with one designated producer and consumer role.
// A full queue pushes back on the producer instead of buffering without limit.
type Queue[T any] struct {
	name  string
	items chan T
}

// NewQueue returns a queue holding at most capacity items.
func NewQueue[T any](name string, capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Queue[T]{name: name, items: make(chan T, capacity)}
}

// Put enqueues v, waiting until ctx is done for space to free up.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	select {
	case q.items <- v:
		return nil
	default:
	}
	select {
	case q.items <- v:
		return nil
	case <-ctx.Done():
		return newError(CodeQueueFull, q.name+" queue did not accept item", ctx.Err())
	}
}

// TryPut enqueues v only if there is room right now.
func (q *Queue[T]) TryPut(v T) bool {
	select {
	case q.items <- v:
		return true
	default:
		return false
	}
}

// Get dequeues the oldest item, waiting until ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	select {
	case v := <-q.items:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet dequeues the oldest item if one is available.
func (q *Queue[T]) TryGet() (T, bool) {
	select {
	case v := <-q.items:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Drain discards every queued item without blocking and returns the count.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		if _, ok := q.TryGet(); !ok {
			return n
		}
		n++
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Signal is a binary event: set once, waited on by many, cleared explicitly.
type Signal struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal and releases waiters. Repeated calls are no-ops.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	close(s.ch)
}

// Clear resets the signal so later waiters block again.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return
	}
	s.set = false
	s.ch = make(chan struct{})
}

// IsSet reports whether the signal is currently set.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// C returns a channel closed once the signal is set.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Channels groups the three queues and the readiness signal shared by one
// supervisor generation and its renderer.
type Channels struct {
	Commands *Queue[Command]
	Returns  *Queue[ReturnValue]
	Events   *Queue[string]
	Loaded   *Signal
}

// NewChannels allocates a fresh set of channels.
func NewChannels(capacity int) Channels {
	return Channels{
		Commands: NewQueue[Command]("command", capacity),
		Returns:  NewQueue[ReturnValue]("return", capacity),
		Events:   NewQueue[string]("event", capacity),
		Loaded:   NewSignal(),
	}
}

// Drain empties all three queues and returns how many items were dropped.
func (c Channels) Drain() (commands, returns, events int) {
	return c.Commands.Drain(), c.Returns.Drain(), c.Events.Drain()
}
