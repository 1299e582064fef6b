package services

import (
	"context"
	"log/slog"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
)

// UserEvents fans profile updates out to the user's own sessions. Self-only
// scope: the channel is the user's and nobody else subscribes to it with
// this purpose key.
type UserEvents struct {
	log      *slog.Logger
	registry contracts.Registry
}

func NewUserEvents(log *slog.Logger, registry contracts.Registry) *UserEvents {
	return &UserEvents{log: log, registry: registry}
}

func (e *UserEvents) Attach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.Subscribe(ctx, channels, c.SessionID(), domain.PurposeUser, func(ctx context.Context, env domain.Envelope) {
		if err := c.Send(ctx, domain.Event{Type: domain.TypeUserUpdated, Data: env.Data}); err != nil {
			e.log.ErrorContext(ctx, "user events - forward - send failed", "session_id", c.SessionID(), "err", err)
		}
	})
}

// Detach must mirror Attach exactly; a missed removal leaks a handler slot
// referencing a closed connection.
func (e *UserEvents) Detach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.RemoveHandler(ctx, channels, c.SessionID(), domain.PurposeUser)
}

// PublishUserUpdate pushes the updated profile to the user's other
// sessions. publisherID is the session that made the change, so it does
// not receive its own echo.
func (e *UserEvents) PublishUserUpdate(ctx context.Context, userID string, user any, publisherID string) {
	if _, err := e.registry.Publish(ctx, domain.UserChannel(userID), user, domain.PurposeUser, publisherID); err != nil {
		e.log.ErrorContext(ctx, "user events - publish - publish failed", "user_id", userID, "err", err)
	}
}
