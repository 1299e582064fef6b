package contracts

import (
	"context"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

// EventHandler receives one decoded envelope during fan-out. Bodies must be
// cheap: dispatch is synchronous and a slow handler delays delivery to the
// listeners after it.
type EventHandler func(ctx context.Context, env domain.Envelope)

// Registry is the process-wide event router every feature sender goes
// through. Implementations deduplicate broker subscriptions per channel,
// suppress echo to the publishing listener, and tear broker subscriptions
// down when the last listener leaves a channel.
type Registry interface {
	// Subscribe registers fn under (channel, listener, purpose) for every
	// channel. Re-subscribing the same triple replaces the handler without
	// another broker subscribe.
	Subscribe(ctx context.Context, channels []string, listenerID, purposeKey string, fn EventHandler) error
	// Publish broadcasts data and returns the broker-wide receiver count,
	// the invite protocol's liveness oracle. Zero subscribers is not an
	// error.
	Publish(ctx context.Context, channel string, data any, purposeKey, publisherID string) (int64, error)
	// RemoveHandler drops one purpose-keyed handler for one listener.
	RemoveHandler(ctx context.Context, channels []string, listenerID, purposeKey string) error
	// Unsubscribe drops every purpose key one listener holds on the
	// channels. Used on connection close.
	Unsubscribe(ctx context.Context, channels []string, listenerID string) error
}
