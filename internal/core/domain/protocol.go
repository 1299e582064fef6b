package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event types delivered to clients as {type, data} JSON.
const (
	TypeUserUpdated     = "user.updated"
	TypeWalletUpdated   = "wallet.updated"
	TypeWalletDestroyed = "wallet.destroyed"
	TypeEntityUpdated   = "entity.updated"
	TypeEntitySnapshot  = "entity.snapshot"
	TypeMCCList         = "mcc.list"
	TypeInviteValidate  = "invite.validate"
	TypeInviteAccept    = "invite.accept"
	TypeInviteReject    = "invite.reject"
	TypeInviteError     = "invite.error"
	TypeChargeUpdated   = "charge.updated"
	TypePing            = "ping"
)

// Purpose keys disambiguate the independent subscriptions one session holds
// on its user channel.
const (
	PurposeUser    = "user"
	PurposeWallet  = "wallet"
	PurposeSync    = "sync"
	PurposeInvite  = "invite"
	PurposeBilling = "billing"
)

// UserChannel names the broadcast group carrying all of a user's
// cross-device events.
func UserChannel(userID string) string {
	return "user--" + userID
}

// Event is the client-facing wire unit, one WebSocket text frame or one
// SSE data field.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Envelope is the unit carried inside each broker message. PublisherID is
// empty when the publish is not attributable to one session (background
// jobs, billing hooks).
type Envelope struct {
	PublisherID string          `json:"publisher_id"`
	Purpose     string          `json:"purpose"`
	Data        json.RawMessage `json:"data"`
}

// InvitePayload is the decoded content of the b64 invite string the owner
// generated. The signature over the raw bytes is what gets verified, the
// decoded form is only used for routing.
type InvitePayload struct {
	InviteID      uuid.UUID `json:"inviteId"`
	WalletID      uuid.UUID `json:"walletId"`
	UserInviterID string    `json:"userInviterId"`
}

// JoinRequest is submitted by the joining user to start the handshake.
type JoinRequest struct {
	B64InviteString                 string `json:"b64InviteString"`
	B64InviteSignatureByJoiningUser string `json:"b64InviteSignatureByJoiningUser"`
	B64PublicECDHKey                string `json:"b64PublicECDHKey"`
}

// InviteResolution is the owner's answer. AllowJoin discriminates the
// union: true requires both key fields, false must omit both.
type InviteResolution struct {
	AllowJoin                       bool    `json:"allowJoin"`
	JoiningUserID                   string  `json:"joiningUserId"`
	B64InviteString                 string  `json:"b64InviteString"`
	B64InviteSignatureByJoiningUser string  `json:"b64InviteSignatureByJoiningUser"`
	B64PublicECDHKey                *string `json:"b64PublicECDHKey,omitempty"`
	EncryptedSecretKey              *string `json:"encryptedSecretKey,omitempty"`
}

// InviteValidateMessage is fanned out to the owner's sessions when a
// joining user submits a request.
type InviteValidateMessage struct {
	JoiningUserID                   string `json:"joiningUserId"`
	B64InviteString                 string `json:"b64InviteString"`
	B64InviteSignatureByJoiningUser string `json:"b64InviteSignatureByJoiningUser"`
	B64PublicECDHKey                string `json:"b64PublicECDHKey"`
}

// InviteAcceptMessage carries the owner's key material to the joining user.
type InviteAcceptMessage struct {
	WalletID           uuid.UUID `json:"walletId"`
	B64PublicECDHKey   string    `json:"b64PublicECDHKey"`
	EncryptedSecretKey string    `json:"encryptedSecretKey"`
}

// InviteRejectMessage tells the joining user the owner declined.
type InviteRejectMessage struct {
	WalletID uuid.UUID `json:"walletId"`
	InviteID uuid.UUID `json:"inviteId"`
}

// InviteErrorMessage notifies the counterpart that the flow was aborted
// after partial progress.
type InviteErrorMessage struct {
	WalletID uuid.UUID `json:"walletId"`
	InviteID uuid.UUID `json:"inviteId"`
}
