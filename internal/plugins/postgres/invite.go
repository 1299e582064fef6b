package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type InviteRepo struct {
	db *sql.DB
}

func NewInviteRepo(db *sql.DB) *InviteRepo {
	return &InviteRepo{db: db}
}

/*
	-- One-time invite disposal log
	CREATE TABLE disposed_invites (
		invite_id    UUID PRIMARY KEY,
		disposed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
*/

// Dispose burns a one-time invite. Idempotent on conflict so a retried
// rejection does not fail.
func (r *InviteRepo) Dispose(ctx context.Context, inviteID uuid.UUID) error {
	query := `INSERT INTO disposed_invites (invite_id) VALUES ($1) ON CONFLICT (invite_id) DO NOTHING`
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, query, inviteID)
	return err
}

func (r *InviteRepo) IsDisposed(ctx context.Context, inviteID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM disposed_invites WHERE invite_id = $1)`
	exec := GetExecutor(ctx, r.db)
	var disposed bool
	err := exec.QueryRowContext(ctx, query, inviteID).Scan(&disposed)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return disposed, nil
}
