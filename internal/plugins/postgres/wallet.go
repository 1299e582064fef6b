package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

type WalletRepo struct {
	db *sql.DB
}

func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

/*
	-- Wallets
	CREATE TABLE wallets (
		id          UUID PRIMARY KEY,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
*/

func (r *WalletRepo) GetWalletByID(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet := &domain.Wallet{ID: walletID}
	query := `SELECT created_at, updated_at FROM wallets WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, walletID).Scan(&wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return wallet, nil
}

// GetOwner resolves the single owner membership. A wallet with zero or
// multiple owner rows is in a broken state and must not accept joins.
func (r *WalletRepo) GetOwner(ctx context.Context, walletID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT id, wallet_id, user_id, invite_id, access_level, chest, created_at
		FROM wallet_memberships
		WHERE wallet_id = $1 AND access_level = $2
	`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, walletID, domain.AccessOwner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var owners []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ID, &m.WalletID, &m.UserID, &m.InviteID, &m.AccessLevel, &m.Chest, &m.CreatedAt); err != nil {
			return nil, err
		}
		owners = append(owners, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(owners) != 1 {
		return nil, domain.ErrNoWalletOwner
	}
	return &owners[0], nil
}

func (r *WalletRepo) ListMemberUserIDs(ctx context.Context, walletID uuid.UUID) ([]string, error) {
	query := `SELECT user_id FROM wallet_memberships WHERE wallet_id = $1`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *WalletRepo) GetSnapshot(ctx context.Context, walletID uuid.UUID) (*domain.WalletSnapshot, error) {
	wallet, err := r.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, wallet_id, user_id, invite_id, access_level, chest, created_at
		FROM wallet_memberships
		WHERE wallet_id = $1
		ORDER BY created_at
	`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snapshot := &domain.WalletSnapshot{WalletID: wallet.ID, UpdatedAt: wallet.UpdatedAt}
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ID, &m.WalletID, &m.UserID, &m.InviteID, &m.AccessLevel, &m.Chest, &m.CreatedAt); err != nil {
			return nil, err
		}
		snapshot.Members = append(snapshot.Members, m)
	}
	return snapshot, rows.Err()
}
