package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("events")

type redisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker creates a Broker on Redis Pub/Sub, so every server process
// sharing the Redis instance sees every table event.
func NewRedisBroker(rdb *redis.Client) Broker {
	return &redisBroker{rdb: rdb}
}

// Publish publishes event on EventsChannel.
func (b *redisBroker) Publish(ctx context.Context, event Event) error {
	ctx, span := tracer.Start(ctx, "events.Publish", trace.WithAttributes(
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish event")
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Subscribe subscribes to EventsChannel. Messages that do not decode are
// logged and skipped.
func (b *redisBroker) Subscribe(ctx context.Context) (<-chan Event, func() error, error) {
	pubsub := b.rdb.Subscribe(ctx, EventsChannel)
	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", EventsChannel, err)
	}

	out := make(chan Event, 16)
	ch := pubsub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.ErrorContext(ctx, "Could not unmarshal event", "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					pubsub.Close()
					return
				}
			}
		}
	}()

	return out, pubsub.Close, nil
}
