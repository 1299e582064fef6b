package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
)

// walletMessage distinguishes update from destroy inside the shared wallet
// purpose key; both travel on the member's user channel.
type walletMessage struct {
	Kind     string                 `json:"kind"`
	Snapshot *domain.WalletSnapshot `json:"snapshot,omitempty"`
	WalletID *uuid.UUID             `json:"wallet_id,omitempty"`
}

// WalletEvents fans wallet changes out to every current member.
type WalletEvents struct {
	log        *slog.Logger
	registry   contracts.Registry
	walletRepo domain.WalletRepository
}

func NewWalletEvents(log *slog.Logger, registry contracts.Registry, walletRepo domain.WalletRepository) *WalletEvents {
	return &WalletEvents{log: log, registry: registry, walletRepo: walletRepo}
}

func (e *WalletEvents) Attach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.Subscribe(ctx, channels, c.SessionID(), domain.PurposeWallet, func(ctx context.Context, env domain.Envelope) {
		var msg walletMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			e.log.ErrorContext(ctx, "wallet events - forward - decode failed", "session_id", c.SessionID(), "err", err)
			return
		}
		ev := domain.Event{Type: domain.TypeWalletUpdated, Data: msg.Snapshot}
		if msg.Kind == "destroy" {
			ev = domain.Event{Type: domain.TypeWalletDestroyed, Data: msg.WalletID}
		}
		if err := c.Send(ctx, ev); err != nil {
			e.log.ErrorContext(ctx, "wallet events - forward - send failed", "session_id", c.SessionID(), "err", err)
		}
	})
}

func (e *WalletEvents) Detach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.RemoveHandler(ctx, channels, c.SessionID(), domain.PurposeWallet)
}

// PublishWalletUpdate loads the current snapshot and publishes it to every
// member's channel, so all devices of all members converge on the new
// member list and wallet state.
func (e *WalletEvents) PublishWalletUpdate(ctx context.Context, walletID uuid.UUID, publisherID string) {
	snapshot, err := e.walletRepo.GetSnapshot(ctx, walletID)
	if err != nil {
		e.log.ErrorContext(ctx, "wallet events - publish update - snapshot failed", "wallet_id", walletID.String(), "err", err)
		return
	}
	msg := walletMessage{Kind: "update", Snapshot: snapshot}
	for _, m := range snapshot.Members {
		if _, err := e.registry.Publish(ctx, domain.UserChannel(m.UserID), msg, domain.PurposeWallet, publisherID); err != nil {
			e.log.ErrorContext(ctx, "wallet events - publish update - publish failed", "wallet_id", walletID.String(), "user_id", m.UserID, "err", err)
		}
	}
}

// PublishWalletDestroy notifies the given users the wallet is gone. Member
// ids must be captured by the caller before the rows are deleted.
func (e *WalletEvents) PublishWalletDestroy(ctx context.Context, walletID uuid.UUID, memberUserIDs []string, publisherID string) {
	msg := walletMessage{Kind: "destroy", WalletID: &walletID}
	for _, userID := range memberUserIDs {
		if _, err := e.registry.Publish(ctx, domain.UserChannel(userID), msg, domain.PurposeWallet, publisherID); err != nil {
			e.log.ErrorContext(ctx, "wallet events - publish destroy - publish failed", "wallet_id", walletID.String(), "user_id", userID, "err", err)
		}
	}
}
