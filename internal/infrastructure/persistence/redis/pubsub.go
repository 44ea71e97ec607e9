package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/olgagaga/web3-learning/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB ADAPTER
// Bridges the go-redis Pub/Sub API to the transport the event bus expects.
// ══════════════════════════════════════════════════════════════════════════════

// PubSubAdapter implements messaging.RedisClient on a Cache.
type PubSubAdapter struct {
	cache *Cache
}

// NewPubSubAdapter creates a new PubSubAdapter.
func NewPubSubAdapter(cache *Cache) *PubSubAdapter {
	return &PubSubAdapter{cache: cache}
}

// Publish serializes the message to JSON and publishes it to the channel.
func (a *PubSubAdapter) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return a.cache.client.Publish(ctx, channel, data).Err()
}

// Subscribe subscribes to the channels and adapts received messages.
// The returned channel closes when the subscription context is cancelled.
func (a *PubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	pubsub := a.cache.client.Subscribe(ctx, channels...)

	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan messaging.RedisMessage)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- messaging.RedisMessage{
					Channel: msg.Channel,
					Payload: msg.Payload,
				}
			}
		}
	}()

	return out, nil
}

// Close closes the underlying Redis connection.
func (a *PubSubAdapter) Close() error {
	return a.cache.Close()
}
