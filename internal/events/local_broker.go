package events

import (
	"context"
	"log/slog"
	"sync"
)

// LocalBroker fans events out to subscribers in the same process. It backs
// single-node deployments that run without Redis.
type LocalBroker struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewLocalBroker creates an empty LocalBroker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subscribers: make(map[chan Event]struct{})}
}

// Publish delivers event to every subscriber. A subscriber whose buffer is
// full misses the event rather than stalling the publisher.
func (b *LocalBroker) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			slog.WarnContext(ctx, "Dropping event for slow subscriber", "event.type", event.Type)
		}
	}
	return nil
}

// Subscribe registers a new subscriber.
func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan Event, func() error, error) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
			close(stop)
		})
		return nil
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()

	return ch, unsubscribe, nil
}
