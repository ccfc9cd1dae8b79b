// Package relay fans renderer UI events out to SSE clients.
package relay

import (
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Event is one decoded UI event as streamed to clients.
type Event struct {
	Name string    `json:"name"`
	Args []string  `json:"args"`
	At   time.Time `json:"at"`
}

// Broker fans out events to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	dropped     atomic.Int64
	now         func() time.Time
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
		now:         time.Now,
	}
}

// Subscribe registers a new client. The channel is buffered; slow consumers
// have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Observe publishes a decoded event. Its signature matches bridge.Observer
// so the broker can watch a handler registry directly.
func (b *Broker) Observe(name string, args []string) {
	b.Publish(Event{Name: name, Args: append([]string{}, args...), At: b.now()})
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped for slow clients.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }
