package postgres

import (
	"context"
	"database/sql"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

type EntityRepo struct {
	db *sql.DB
}

func NewEntityRepo(db *sql.DB) *EntityRepo {
	return &EntityRepo{db: db}
}

/*
	-- Sync entities (opaque encrypted blobs)
	CREATE TABLE entities (
		id              UUID PRIMARY KEY,
		wallet_id       UUID NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		encr            TEXT NOT NULL,
		client_updated  BIGINT NOT NULL
	);

	-- MCC reference data
	CREATE TABLE mcc_codes (
		code         TEXT PRIMARY KEY,
		description  TEXT NOT NULL
	);
*/

// ListForUser returns every entity across the user's wallets in client
// clock order. Snapshot payloads run into the thousands of rows, so
// callers stream the result chunked.
func (r *EntityRepo) ListForUser(ctx context.Context, userID string) ([]domain.Entity, error) {
	query := `
		SELECT e.id, e.wallet_id, e.encr, e.client_updated
		FROM entities e
		JOIN wallet_memberships m ON m.wallet_id = e.wallet_id
		WHERE m.user_id = $1
		ORDER BY e.client_updated
	`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (r *EntityRepo) ListMCC(ctx context.Context) ([]domain.MCC, error) {
	query := `SELECT code, description FROM mcc_codes ORDER BY code`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.MCC
	for rows.Next() {
		var m domain.MCC
		if err := rows.Scan(&m.Code, &m.Description); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanEntities(rows *sql.Rows) ([]domain.Entity, error) {
	var out []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Encr, &e.ClientUpdated); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
