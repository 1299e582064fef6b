package services

import (
	"context"
	"log/slog"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
)

// BillingEvents fans charge updates out to the charged user's sessions.
// Charges originate from payment-provider hooks, so publishes carry no
// publisher session and every session of the user receives them.
type BillingEvents struct {
	log      *slog.Logger
	registry contracts.Registry
}

func NewBillingEvents(log *slog.Logger, registry contracts.Registry) *BillingEvents {
	return &BillingEvents{log: log, registry: registry}
}

func (e *BillingEvents) Attach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.Subscribe(ctx, channels, c.SessionID(), domain.PurposeBilling, func(ctx context.Context, env domain.Envelope) {
		if err := c.Send(ctx, domain.Event{Type: domain.TypeChargeUpdated, Data: env.Data}); err != nil {
			e.log.ErrorContext(ctx, "billing events - forward - send failed", "session_id", c.SessionID(), "err", err)
		}
	})
}

func (e *BillingEvents) Detach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.RemoveHandler(ctx, channels, c.SessionID(), domain.PurposeBilling)
}

func (e *BillingEvents) PublishCharge(ctx context.Context, charge domain.Charge) {
	if _, err := e.registry.Publish(ctx, domain.UserChannel(charge.UserID), charge, domain.PurposeBilling, ""); err != nil {
		e.log.ErrorContext(ctx, "billing events - publish - publish failed", "user_id", charge.UserID, "charge_id", charge.ID.String(), "err", err)
	}
}
