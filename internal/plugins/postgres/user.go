package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

/*
	-- Users
	CREATE TABLE users (
		id                   TEXT PRIMARY KEY,
		b64_sign_public_key  TEXT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	);
*/

func (r *UserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{ID: id}
	query := `SELECT b64_sign_public_key, created_at FROM users WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, id).Scan(&user.B64SignPublicKey, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) GetSignPublicKey(ctx context.Context, userID string) ([]byte, error) {
	user, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(user.B64SignPublicKey)
	if err != nil {
		return nil, err
	}
	return key, nil
}
