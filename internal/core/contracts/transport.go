package contracts

import "context"

// PubSubTransport is the external broker boundary. The registry is the only
// component allowed to call it. One implementation runs on two long-lived
// Redis connections: the client pool for publishes and a dedicated PubSub
// connection for receives.
type PubSubTransport interface {
	// Publish sends one message and returns the broker-wide count of
	// subscribed receivers, used by the invite protocol as a liveness
	// signal.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	// Listen blocks delivering subscribed messages to handler until ctx
	// ends or the receive connection closes. Messages on one channel are
	// delivered serially in publish order.
	Listen(ctx context.Context, handler func(channel string, payload []byte)) error
	Close() error
}
