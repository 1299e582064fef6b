package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository handles account identities and their signing keys.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	// GetSignPublicKey returns the raw (decoded) signing public key the
	// user registered at signup.
	GetSignPublicKey(ctx context.Context, userID string) ([]byte, error)
}

// WalletRepository resolves wallets, their owners and member sets.
type WalletRepository interface {
	GetWalletByID(ctx context.Context, walletID uuid.UUID) (*Wallet, error)
	// GetOwner returns the single owner membership. ErrNoWalletOwner if
	// zero or more than one row carries the owner access level.
	GetOwner(ctx context.Context, walletID uuid.UUID) (*Membership, error)
	ListMemberUserIDs(ctx context.Context, walletID uuid.UUID) ([]string, error)
	GetSnapshot(ctx context.Context, walletID uuid.UUID) (*WalletSnapshot, error)
}

// MembershipRepository handles the durable wallet-membership rows the join
// handshake creates and, on failure, rolls back.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, m *Membership) error
	// DeleteByInvite removes the membership created for this exact
	// (wallet, invite, user) tuple and reports rows affected. Zero rows
	// means nothing to clean up, not an error.
	DeleteByInvite(ctx context.Context, walletID, inviteID uuid.UUID, userID string) (int64, error)
	IsMember(ctx context.Context, walletID uuid.UUID, userID string) (bool, error)
}

// InviteRepository is the one-time-use bookkeeping for invites.
type InviteRepository interface {
	// Dispose marks the invite consumed. Idempotent.
	Dispose(ctx context.Context, inviteID uuid.UUID) error
	IsDisposed(ctx context.Context, inviteID uuid.UUID) (bool, error)
}

// EntityRepository reads sync records and reference data for snapshot
// streaming.
type EntityRepository interface {
	// ListForUser returns all entities across the user's wallets, ordered
	// by client clock.
	ListForUser(ctx context.Context, userID string) ([]Entity, error)
	ListMCC(ctx context.Context) ([]MCC, error)
}
