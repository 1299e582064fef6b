package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccessLevel string

const (
	AccessOwner AccessLevel = "owner"
	AccessUsual AccessLevel = "usual"
)

// User is the account identity. The signing public key is registered at
// signup and is the only key material the server ever sees in the clear.
type User struct {
	ID               string
	B64SignPublicKey string
	CreatedAt        time.Time
}

// Wallet is a shared encrypted ledger. Everything below the id is
// client-side encrypted; the server never holds plaintext wallet data.
type Wallet struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership links a user to a wallet. Chest holds the wallet secret key
// encrypted for this user; it stays nil until the owner hands it over
// during the join handshake.
type Membership struct {
	ID          uuid.UUID   `json:"id"`
	WalletID    uuid.UUID   `json:"wallet_id"`
	UserID      string      `json:"user_id"`
	InviteID    *uuid.UUID  `json:"invite_id,omitempty"`
	AccessLevel AccessLevel `json:"access_level"`
	Chest       *string     `json:"chest,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// WalletSnapshot is republished to all members whenever the member list
// changes.
type WalletSnapshot struct {
	WalletID  uuid.UUID    `json:"wallet_id"`
	UpdatedAt time.Time    `json:"updated_at"`
	Members   []Membership `json:"members"`
}

// Entity is one sync record: an opaque encrypted blob plus the client
// clock used for merge ordering on the client side.
type Entity struct {
	ID            uuid.UUID `json:"id"`
	WalletID      uuid.UUID `json:"wallet_id"`
	Encr          string    `json:"encr"`
	ClientUpdated int64     `json:"client_updated"`
}

// MCC is a merchant-category reference row. The full table runs into the
// thousands, so it is only ever delivered chunked.
type MCC struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Charge is a billing event pushed to the charged user.
type Charge struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}
