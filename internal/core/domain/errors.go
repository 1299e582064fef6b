package domain

import "errors"

// Validation errors: the caller sent something malformed. Fix the input,
// never retry as-is.
var (
	ErrInvalidInvite         = errors.New("invite payload malformed")
	ErrInvalidSignature      = errors.New("invite signature verification failed")
	ErrMissingKeyMaterial    = errors.New("accept resolution requires key material")
	ErrUnexpectedKeyMaterial = errors.New("reject resolution must not carry key material")
)

// State-conflict errors: the request was well-formed but the durable state
// disagrees with it.
var (
	ErrInviteAlreadyUsed = errors.New("invite already used")
	ErrAlreadyMember     = errors.New("user is already a wallet member")
	ErrNotWalletOwner    = errors.New("user is not the wallet owner")
	ErrNoWalletOwner     = errors.New("wallet has no resolvable owner")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrUserNotFound      = errors.New("user not found")
)

// Liveness errors: the counterpart has no connected session right now.
// Retry later is the correct client remediation.
var (
	ErrOwnerOffline       = errors.New("wallet owner has no connected session")
	ErrJoiningUserOffline = errors.New("joining user has no connected session")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindConflict
	KindLiveness
)

// Kind classifies a protocol error so HTTP handlers can pick a status code
// without matching on error strings.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidInvite),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMissingKeyMaterial),
		errors.Is(err, ErrUnexpectedKeyMaterial):
		return KindValidation
	case errors.Is(err, ErrInviteAlreadyUsed),
		errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrNotWalletOwner),
		errors.Is(err, ErrNoWalletOwner),
		errors.Is(err, ErrWalletNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindConflict
	case errors.Is(err, ErrOwnerOffline),
		errors.Is(err, ErrJoiningUserOffline):
		return KindLiveness
	}
	return KindUnknown
}
