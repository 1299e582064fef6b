package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

type MembershipRepo struct {
	db *sql.DB
}

func NewMembershipRepo(db *sql.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

/*
	-- Wallet memberships
	CREATE TABLE wallet_memberships (
		id            UUID PRIMARY KEY,
		wallet_id     UUID NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		user_id       TEXT NOT NULL REFERENCES users(id),
		invite_id     UUID,
		access_level  TEXT NOT NULL,
		chest         TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (wallet_id, user_id)
	);
*/

func (r *MembershipRepo) CreateMembership(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO wallet_memberships (id, wallet_id, user_id, invite_id, access_level, chest)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, query, m.ID, m.WalletID, m.UserID, m.InviteID, m.AccessLevel, m.Chest)
	return err
}

// DeleteByInvite removes the membership this exact invite created. Zero
// rows affected is reported, not treated as an error: it means the
// compensating cleanup had nothing to do.
func (r *MembershipRepo) DeleteByInvite(ctx context.Context, walletID, inviteID uuid.UUID, userID string) (int64, error) {
	query := `
		DELETE FROM wallet_memberships
		WHERE wallet_id = $1 AND invite_id = $2 AND user_id = $3
	`
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, walletID, inviteID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *MembershipRepo) IsMember(ctx context.Context, walletID uuid.UUID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM wallet_memberships WHERE wallet_id = $1 AND user_id = $2)`
	exec := GetExecutor(ctx, r.db)
	var exists bool
	err := exec.QueryRowContext(ctx, query, walletID, userID).Scan(&exists)
	return exists, err
}
