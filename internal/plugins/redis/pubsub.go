package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPubSubTransport carries registry traffic over one Redis connection
// pair: the client pool issues publishes, a single long-lived PubSub
// connection receives subscribed messages. Redis delivers messages on one
// subscription connection serially, which is what gives per-channel
// ordering.
type RedisPubSubTransport struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
}

func NewRedisPubSubTransport(ctx context.Context, rdb *redis.Client) *RedisPubSubTransport {
	// Subscribe with no channels opens the receive connection without
	// joining anything yet.
	return &RedisPubSubTransport{
		rdb:    rdb,
		pubsub: rdb.Subscribe(ctx),
	}
}

// Publish returns the number of subscribed connections Redis delivered the
// message to, cluster-wide.
func (t *RedisPubSubTransport) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	return t.rdb.Publish(ctx, channel, payload).Result()
}

func (t *RedisPubSubTransport) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return t.pubsub.Subscribe(ctx, channels...)
}

func (t *RedisPubSubTransport) Unsubscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return t.pubsub.Unsubscribe(ctx, channels...)
}

func (t *RedisPubSubTransport) Listen(ctx context.Context, handler func(channel string, payload []byte)) error {
	ch := t.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (t *RedisPubSubTransport) Close() error {
	return t.pubsub.Close()
}
