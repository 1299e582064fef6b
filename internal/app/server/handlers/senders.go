package handlers

import (
	"context"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
	"github.com/safeapps-io/money-back/internal/core/services"
)

// Senders bundles every feature sender a client session subscribes to on
// connect. Both delivery handlers share the same attach/detach lifecycle.
type Senders struct {
	User    *services.UserEvents
	Wallet  *services.WalletEvents
	Sync    *services.SyncEvents
	Billing *services.BillingEvents
	Ping    *services.Pinger
}

func (s *Senders) attach(ctx context.Context, c contracts.Client) error {
	if err := s.User.Attach(ctx, c); err != nil {
		return err
	}
	if err := s.Wallet.Attach(ctx, c); err != nil {
		return err
	}
	if err := s.Sync.Attach(ctx, c); err != nil {
		return err
	}
	return s.Billing.Attach(ctx, c)
}

// detach drops every purpose key the session holds in one call; the
// registry tears down the broker subscription when this was the channel's
// last listener.
func (s *Senders) detach(ctx context.Context, reg contracts.Registry, c contracts.Client) error {
	return reg.Unsubscribe(ctx, []string{domain.UserChannel(c.UserID())}, c.SessionID())
}
