package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
)

// SyncEvents handles the encrypted entity stream: live change sets fanned
// out to all wallet members, plus chunked full snapshots over the same
// connection. The two streams are independently ordered; clients merge by
// their own entity clocks.
type SyncEvents struct {
	log        *slog.Logger
	registry   contracts.Registry
	walletRepo domain.WalletRepository
	entityRepo domain.EntityRepository
	chunkSize  int
}

func NewSyncEvents(
	log *slog.Logger,
	registry contracts.Registry,
	walletRepo domain.WalletRepository,
	entityRepo domain.EntityRepository,
	chunkSize int,
) *SyncEvents {
	return &SyncEvents{
		log:        log,
		registry:   registry,
		walletRepo: walletRepo,
		entityRepo: entityRepo,
		chunkSize:  chunkSize,
	}
}

func (e *SyncEvents) Attach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.Subscribe(ctx, channels, c.SessionID(), domain.PurposeSync, func(ctx context.Context, env domain.Envelope) {
		if err := c.Send(ctx, domain.Event{Type: domain.TypeEntityUpdated, Data: env.Data}); err != nil {
			e.log.ErrorContext(ctx, "sync events - forward - send failed", "session_id", c.SessionID(), "err", err)
		}
	})
}

func (e *SyncEvents) Detach(ctx context.Context, c contracts.Client) error {
	channels := []string{domain.UserChannel(c.UserID())}
	return e.registry.RemoveHandler(ctx, channels, c.SessionID(), domain.PurposeSync)
}

// PublishEntityUpdates pushes a change set to every member of the wallet
// the entities belong to. publisherID is the uploading session.
func (e *SyncEvents) PublishEntityUpdates(ctx context.Context, walletID uuid.UUID, entities []domain.Entity, publisherID string) {
	memberIDs, err := e.walletRepo.ListMemberUserIDs(ctx, walletID)
	if err != nil {
		e.log.ErrorContext(ctx, "sync events - publish - member list failed", "wallet_id", walletID.String(), "err", err)
		return
	}
	for _, userID := range memberIDs {
		if _, err := e.registry.Publish(ctx, domain.UserChannel(userID), entities, domain.PurposeSync, publisherID); err != nil {
			e.log.ErrorContext(ctx, "sync events - publish - publish failed", "wallet_id", walletID.String(), "user_id", userID, "err", err)
		}
	}
}

// StreamSnapshot chunk-delivers every entity the user can see. Runs on
// connect and on explicit client request; live updates may interleave with
// the chunks, which is accepted.
func (e *SyncEvents) StreamSnapshot(ctx context.Context, c contracts.Client) error {
	entities, err := e.entityRepo.ListForUser(ctx, c.UserID())
	if err != nil {
		e.log.ErrorContext(ctx, "sync events - snapshot - entity list failed", "user_id", c.UserID(), "err", err)
		return err
	}
	items, err := marshalItems(len(entities), func(i int) any { return entities[i] })
	if err != nil {
		return err
	}
	return c.SequentialSend(ctx, items, e.chunkSize, domain.TypeEntitySnapshot, func() {
		e.log.InfoContext(ctx, "sync events - snapshot - stream finished", "user_id", c.UserID(), "count", len(entities))
	})
}

// StreamMCC chunk-delivers the merchant-category reference table, which
// runs into the thousands of rows.
func (e *SyncEvents) StreamMCC(ctx context.Context, c contracts.Client) error {
	rows, err := e.entityRepo.ListMCC(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "sync events - mcc - list failed", "err", err)
		return err
	}
	items, err := marshalItems(len(rows), func(i int) any { return rows[i] })
	if err != nil {
		return err
	}
	return c.SequentialSend(ctx, items, e.chunkSize, domain.TypeMCCList, func() {
		e.log.InfoContext(ctx, "sync events - mcc - stream finished", "count", len(rows))
	})
}

func marshalItems(n int, at func(i int) any) ([]json.RawMessage, error) {
	items := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		raw, err := json.Marshal(at(i))
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return items, nil
}
