package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
	"github.com/safeapps-io/money-back/pkg/logging"

	"github.com/google/uuid"
)

var tracer = otel.Tracer("invite-service")

// InviteService runs the wallet-join handshake: a two-party asynchronous
// exchange between the joining user and the wallet owner, carried entirely
// over the realtime registry. Publish receiver counts are the only liveness
// signal; there is no ack or timeout beyond the synchronous check at
// publish time.
type InviteService struct {
	log            *slog.Logger
	registry       contracts.Registry
	verifier       contracts.SignatureVerifier
	walletEvents   *WalletEvents
	userRepo       domain.UserRepository
	walletRepo     domain.WalletRepository
	membershipRepo domain.MembershipRepository
	inviteRepo     domain.InviteRepository
	txManager      Transactor
}

func NewInviteService(
	log *slog.Logger,
	registry contracts.Registry,
	verifier contracts.SignatureVerifier,
	walletEvents *WalletEvents,
	userRepo domain.UserRepository,
	walletRepo domain.WalletRepository,
	membershipRepo domain.MembershipRepository,
	inviteRepo domain.InviteRepository,
	txManager Transactor,
) *InviteService {
	return &InviteService{
		log:            log,
		registry:       registry,
		verifier:       verifier,
		walletEvents:   walletEvents,
		userRepo:       userRepo,
		walletRepo:     walletRepo,
		membershipRepo: membershipRepo,
		inviteRepo:     inviteRepo,
		txManager:      txManager,
	}
}

// LaunchWalletJoin validates the joining user's request and forwards it to
// the owner's sessions. Nothing durable is written here: if the owner has
// no connected session the request can never resolve, so it fails
// immediately with ErrOwnerOffline and storage stays untouched.
func (s *InviteService) LaunchWalletJoin(ctx context.Context, joiningUserID string, req domain.JoinRequest) error {
	ctx, span := tracer.Start(ctx, "InviteService.LaunchWalletJoin", trace.WithAttributes(
		attribute.String("user.id", joiningUserID),
	))
	defer span.End()

	payload, err := s.verifyInvite(ctx, joiningUserID, req.B64InviteString, req.B64InviteSignatureByJoiningUser)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.String("wallet.id", payload.WalletID.String()),
		attribute.String("invite.id", payload.InviteID.String()),
	)

	disposed, err := s.inviteRepo.IsDisposed(ctx, payload.InviteID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("invite disposal lookup: %w", err)
	}
	if disposed {
		span.RecordError(domain.ErrInviteAlreadyUsed)
		return domain.ErrInviteAlreadyUsed
	}

	isMember, err := s.membershipRepo.IsMember(ctx, payload.WalletID, joiningUserID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("membership lookup: %w", err)
	}
	if isMember {
		span.RecordError(domain.ErrAlreadyMember)
		return domain.ErrAlreadyMember
	}

	owner, err := s.walletRepo.GetOwner(ctx, payload.WalletID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	count, err := s.registry.Publish(ctx, domain.UserChannel(owner.UserID), domain.InviteValidateMessage{
		JoiningUserID:                   joiningUserID,
		B64InviteString:                 req.B64InviteString,
		B64InviteSignatureByJoiningUser: req.B64InviteSignatureByJoiningUser,
		B64PublicECDHKey:                req.B64PublicECDHKey,
	}, domain.PurposeInvite, "")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("validate publish: %w", err)
	}
	if count == 0 {
		span.RecordError(domain.ErrOwnerOffline)
		span.SetStatus(codes.Error, "owner offline")
		return domain.ErrOwnerOffline
	}
	span.SetAttributes(attribute.Int64("owner.sessions", count))
	s.log.InfoContext(ctx, "invite - launch - validate published", logging.Wallet(payload.WalletID.String()), logging.Invite(payload.InviteID.String()), slog.Int64("owner_sessions", count))
	return nil
}

// ResolveInvitation is the owner's answer to a validate message. Reject
// disposes the invite for good; accept creates the membership row and hands
// the key material over. If the joining user's session vanished between
// request and resolution the row is rolled back immediately: without the
// key material the member could never decrypt anything.
func (s *InviteService) ResolveInvitation(ctx context.Context, ownerID string, res domain.InviteResolution) error {
	ctx, span := tracer.Start(ctx, "InviteService.ResolveInvitation", trace.WithAttributes(
		attribute.String("user.id", ownerID),
		attribute.Bool("invite.allow_join", res.AllowJoin),
	))
	defer span.End()

	if res.AllowJoin && (res.B64PublicECDHKey == nil || res.EncryptedSecretKey == nil) {
		span.RecordError(domain.ErrMissingKeyMaterial)
		return domain.ErrMissingKeyMaterial
	}
	if !res.AllowJoin && (res.B64PublicECDHKey != nil || res.EncryptedSecretKey != nil) {
		span.RecordError(domain.ErrUnexpectedKeyMaterial)
		return domain.ErrUnexpectedKeyMaterial
	}

	payload, err := s.checkOwnerInvitationMessage(ctx, ownerID, res)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.String("wallet.id", payload.WalletID.String()),
		attribute.String("invite.id", payload.InviteID.String()),
	)

	if !res.AllowJoin {
		return s.reject(ctx, payload, res)
	}
	return s.accept(ctx, payload, res)
}

// checkOwnerInvitationMessage is the shared guard before either
// resolution: the joining user's signature must verify against their
// stored key, and the purported owner must still own the wallet. This
// blocks a malicious or stale owner-side client from resolving a request
// for a wallet it no longer owns.
func (s *InviteService) checkOwnerInvitationMessage(ctx context.Context, ownerID string, res domain.InviteResolution) (*domain.InvitePayload, error) {
	payload, err := s.verifyInvite(ctx, res.JoiningUserID, res.B64InviteString, res.B64InviteSignatureByJoiningUser)
	if err != nil {
		return nil, err
	}
	// A stale owner client may resolve an invite another session already
	// rejected; a burned invite must stay burned.
	disposed, err := s.inviteRepo.IsDisposed(ctx, payload.InviteID)
	if err != nil {
		return nil, fmt.Errorf("invite disposal lookup: %w", err)
	}
	if disposed {
		return nil, domain.ErrInviteAlreadyUsed
	}
	owner, err := s.walletRepo.GetOwner(ctx, payload.WalletID)
	if err != nil {
		return nil, err
	}
	if owner.UserID != ownerID {
		return nil, domain.ErrNotWalletOwner
	}
	return payload, nil
}

func (s *InviteService) reject(ctx context.Context, payload *domain.InvitePayload, res domain.InviteResolution) error {
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		return s.inviteRepo.Dispose(txCtx, payload.InviteID)
	}); err != nil {
		s.log.ErrorContext(ctx, "invite - reject - dispose failed", logging.Invite(payload.InviteID.String()), logging.Err(err))
		return fmt.Errorf("invite dispose: %w", err)
	}
	// Receiver count deliberately ignored: the joining user learns the
	// outcome on next connect either way, the invite is burned regardless.
	if _, err := s.registry.Publish(ctx, domain.UserChannel(res.JoiningUserID), domain.InviteRejectMessage{
		WalletID: payload.WalletID,
		InviteID: payload.InviteID,
	}, domain.PurposeInvite, ""); err != nil {
		s.log.ErrorContext(ctx, "invite - reject - publish failed", logging.Invite(payload.InviteID.String()), logging.Err(err))
	}
	s.walletEvents.PublishWalletUpdate(ctx, payload.WalletID, "")
	s.log.InfoContext(ctx, "invite - reject - resolved", logging.Wallet(payload.WalletID.String()), logging.Invite(payload.InviteID.String()))
	return nil
}

func (s *InviteService) accept(ctx context.Context, payload *domain.InvitePayload, res domain.InviteResolution) error {
	membership := &domain.Membership{
		ID:          uuid.New(),
		WalletID:    payload.WalletID,
		UserID:      res.JoiningUserID,
		InviteID:    &payload.InviteID,
		AccessLevel: domain.AccessUsual,
		Chest:       res.EncryptedSecretKey,
	}
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		return s.membershipRepo.CreateMembership(txCtx, membership)
	}); err != nil {
		s.log.ErrorContext(ctx, "invite - accept - create membership failed", logging.Wallet(payload.WalletID.String()), logging.Err(err))
		return fmt.Errorf("create membership: %w", err)
	}

	count, err := s.registry.Publish(ctx, domain.UserChannel(res.JoiningUserID), domain.InviteAcceptMessage{
		WalletID:           payload.WalletID,
		B64PublicECDHKey:   *res.B64PublicECDHKey,
		EncryptedSecretKey: *res.EncryptedSecretKey,
	}, domain.PurposeInvite, "")
	if err != nil || count == 0 {
		// The joining user is gone and never received the key material.
		// A member row without it is unrecoverable client-side, so undo.
		if _, delErr := s.membershipRepo.DeleteByInvite(ctx, payload.WalletID, payload.InviteID, res.JoiningUserID); delErr != nil {
			s.log.ErrorContext(ctx, "invite - accept - rollback failed", logging.Wallet(payload.WalletID.String()), logging.Invite(payload.InviteID.String()), logging.Err(delErr))
		}
		if err != nil {
			s.log.ErrorContext(ctx, "invite - accept - publish failed", logging.Invite(payload.InviteID.String()), logging.Err(err))
			return fmt.Errorf("accept publish: %w", err)
		}
		s.log.WarnContext(ctx, "invite - accept - joining user offline, membership rolled back", logging.Wallet(payload.WalletID.String()), logging.Invite(payload.InviteID.String()))
		return domain.ErrJoiningUserOffline
	}

	s.walletEvents.PublishWalletUpdate(ctx, payload.WalletID, "")
	s.log.InfoContext(ctx, "invite - accept - resolved", logging.Wallet(payload.WalletID.String()), logging.Invite(payload.InviteID.String()), slog.Int64("joining_sessions", count))
	return nil
}

// InvitationError is the owner-side abort: notify the joining user so
// their client can reset the pending join.
func (s *InviteService) InvitationError(ctx context.Context, joiningUserID string, walletID, inviteID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "InviteService.InvitationError")
	defer span.End()
	if _, err := s.registry.Publish(ctx, domain.UserChannel(joiningUserID), domain.InviteErrorMessage{
		WalletID: walletID,
		InviteID: inviteID,
	}, domain.PurposeInvite, ""); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error publish: %w", err)
	}
	return nil
}

// JoiningError is the joining-side abort after partial progress: delete
// whatever membership the flow created for this tuple and tell the owner.
// Zero rows affected means nothing to clean up and no one to notify.
func (s *InviteService) JoiningError(ctx context.Context, joiningUserID string, walletID, inviteID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "InviteService.JoiningError", trace.WithAttributes(
		attribute.String("wallet.id", walletID.String()),
		attribute.String("invite.id", inviteID.String()),
	))
	defer span.End()

	rows, err := s.membershipRepo.DeleteByInvite(ctx, walletID, inviteID, joiningUserID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("membership cleanup: %w", err)
	}
	if rows == 0 {
		return nil
	}
	owner, err := s.walletRepo.GetOwner(ctx, walletID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if _, err := s.registry.Publish(ctx, domain.UserChannel(owner.UserID), domain.InviteErrorMessage{
		WalletID: walletID,
		InviteID: inviteID,
	}, domain.PurposeInvite, ""); err != nil {
		s.log.ErrorContext(ctx, "invite - joining error - publish failed", logging.Wallet(walletID.String()), logging.Err(err))
	}
	s.walletEvents.PublishWalletUpdate(ctx, walletID, "")
	return nil
}

// verifyInvite decodes the invite string and checks the joining user's
// detached signature over the raw invite bytes against their stored key.
func (s *InviteService) verifyInvite(ctx context.Context, joiningUserID, b64Invite, b64Signature string) (*domain.InvitePayload, error) {
	inviteBytes, err := base64.StdEncoding.DecodeString(b64Invite)
	if err != nil {
		return nil, domain.ErrInvalidInvite
	}
	var payload domain.InvitePayload
	if err := json.Unmarshal(inviteBytes, &payload); err != nil {
		return nil, domain.ErrInvalidInvite
	}
	if payload.InviteID == uuid.Nil || payload.WalletID == uuid.Nil {
		return nil, domain.ErrInvalidInvite
	}
	sig, err := base64.StdEncoding.DecodeString(b64Signature)
	if err != nil {
		return nil, domain.ErrInvalidInvite
	}
	pubKey, err := s.userRepo.GetSignPublicKey(ctx, joiningUserID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	if !s.verifier.Verify(pubKey, inviteBytes, sig) {
		return nil, domain.ErrInvalidSignature
	}
	return &payload, nil
}
