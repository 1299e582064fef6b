package contracts

import (
	"context"
	"encoding/json"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

// Client is one live delivery adapter: an SSE stream or a WebSocket
// socket. The session id doubles as the registry listener id, so a
// client's own publishes are never echoed back to it.
type Client interface {
	SessionID() string
	UserID() string
	// Send writes one event now. Implementations may silently drop the
	// event when the session ticket has been revoked.
	Send(ctx context.Context, ev domain.Event) error
	// SequentialSend splits items into chunkSize batches (default 100
	// when chunkSize <= 0) and writes them strictly in order, each write
	// gated on the previous one having been flushed to the peer. onFinish
	// runs exactly once after the last chunk; it is skipped when a
	// mid-stream write fails.
	SequentialSend(ctx context.Context, items []json.RawMessage, chunkSize int, eventType string, onFinish func()) error
	Close()
}
