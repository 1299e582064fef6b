package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
)

// fakeRegistry records publishes and answers each channel with a
// configurable receiver count, standing in for the broker's liveness
// signal.
type fakeRegistry struct {
	mu        sync.Mutex
	counts    map[string]int64
	published []publishedMsg
	handlers  []handlerSlot
}

type publishedMsg struct {
	channel     string
	purpose     string
	publisherID string
	data        any
}

type handlerSlot struct {
	channel    string
	listenerID string
	purposeKey string
	fn         contracts.EventHandler
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{counts: make(map[string]int64)}
}

func (r *fakeRegistry) Subscribe(_ context.Context, channels []string, listenerID, purposeKey string, fn contracts.EventHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range channels {
		r.handlers = append(r.handlers, handlerSlot{channel: ch, listenerID: listenerID, purposeKey: purposeKey, fn: fn})
	}
	return nil
}

func (r *fakeRegistry) Publish(_ context.Context, channel string, data any, purposeKey, publisherID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, publishedMsg{channel: channel, purpose: purposeKey, publisherID: publisherID, data: data})
	return r.counts[channel], nil
}

func (r *fakeRegistry) RemoveHandler(_ context.Context, channels []string, listenerID, purposeKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []handlerSlot
	for _, h := range r.handlers {
		if h.listenerID == listenerID && h.purposeKey == purposeKey && contains(channels, h.channel) {
			continue
		}
		kept = append(kept, h)
	}
	r.handlers = kept
	return nil
}

func (r *fakeRegistry) Unsubscribe(_ context.Context, channels []string, listenerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []handlerSlot
	for _, h := range r.handlers {
		if h.listenerID == listenerID && contains(channels, h.channel) {
			continue
		}
		kept = append(kept, h)
	}
	r.handlers = kept
	return nil
}

// emit pushes one envelope through every handler on the channel, the way
// the real registry's dispatch would after echo suppression.
func (r *fakeRegistry) emit(ctx context.Context, channel string, env domain.Envelope) {
	r.mu.Lock()
	var fns []contracts.EventHandler
	for _, h := range r.handlers {
		if h.channel == channel {
			fns = append(fns, h.fn)
		}
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, env)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *fakeRegistry) messagesTo(channel string) []publishedMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []publishedMsg
	for _, m := range r.published {
		if m.channel == channel {
			out = append(out, m)
		}
	}
	return out
}

type fakeUserRepo struct {
	keys map[string][]byte
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if _, ok := r.keys[id]; !ok {
		return nil, domain.ErrUserNotFound
	}
	return &domain.User{ID: id}, nil
}

func (r *fakeUserRepo) GetSignPublicKey(_ context.Context, userID string) ([]byte, error) {
	key, ok := r.keys[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return key, nil
}

type fakeWalletRepo struct {
	wallets map[uuid.UUID]*domain.Wallet
	members *fakeMembershipRepo
}

func (r *fakeWalletRepo) GetWalletByID(_ context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return w, nil
}

func (r *fakeWalletRepo) GetOwner(_ context.Context, walletID uuid.UUID) (*domain.Membership, error) {
	var owner *domain.Membership
	for i, m := range r.members.rows {
		if m.WalletID == walletID && m.AccessLevel == domain.AccessOwner {
			if owner != nil {
				return nil, domain.ErrNoWalletOwner
			}
			owner = &r.members.rows[i]
		}
	}
	if owner == nil {
		return nil, domain.ErrNoWalletOwner
	}
	return owner, nil
}

func (r *fakeWalletRepo) ListMemberUserIDs(_ context.Context, walletID uuid.UUID) ([]string, error) {
	var ids []string
	for _, m := range r.members.rows {
		if m.WalletID == walletID {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

func (r *fakeWalletRepo) GetSnapshot(_ context.Context, walletID uuid.UUID) (*domain.WalletSnapshot, error) {
	if _, ok := r.wallets[walletID]; !ok {
		return nil, domain.ErrWalletNotFound
	}
	snap := &domain.WalletSnapshot{WalletID: walletID, UpdatedAt: time.Now()}
	for _, m := range r.members.rows {
		if m.WalletID == walletID {
			snap.Members = append(snap.Members, m)
		}
	}
	return snap, nil
}

type fakeMembershipRepo struct {
	mu   sync.Mutex
	rows []domain.Membership
}

func (r *fakeMembershipRepo) CreateMembership(_ context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *m)
	return nil
}

func (r *fakeMembershipRepo) DeleteByInvite(_ context.Context, walletID, inviteID uuid.UUID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Membership
	var deleted int64
	for _, m := range r.rows {
		if m.WalletID == walletID && m.UserID == userID && m.InviteID != nil && *m.InviteID == inviteID {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.rows = kept
	return deleted, nil
}

func (r *fakeMembershipRepo) IsMember(_ context.Context, walletID uuid.UUID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.WalletID == walletID && m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

type fakeInviteRepo struct {
	mu       sync.Mutex
	disposed map[uuid.UUID]bool
}

func (r *fakeInviteRepo) Dispose(_ context.Context, inviteID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed[inviteID] = true
	return nil
}

func (r *fakeInviteRepo) IsDisposed(_ context.Context, inviteID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed[inviteID], nil
}

// passTx runs the unit directly; transactional atomicity is the real
// TxManager's concern, not the protocol's.
type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type ed25519Verifier struct{}

func (ed25519Verifier) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// inviteFixture assembles a wallet with one owner and a joining user whose
// signed invite string is valid.
type inviteFixture struct {
	svc       *InviteService
	registry  *fakeRegistry
	members   *fakeMembershipRepo
	invites   *fakeInviteRepo
	walletID  uuid.UUID
	inviteID  uuid.UUID
	ownerID   string
	joiningID string
	b64Invite string
	b64Sig    string
	ecdhKey   string
	chest     string
}

func newInviteFixture(t *testing.T) *inviteFixture {
	t.Helper()

	f := &inviteFixture{
		registry:  newFakeRegistry(),
		walletID:  uuid.New(),
		inviteID:  uuid.New(),
		ownerID:   "owner-1",
		joiningID: "joiner-1",
		ecdhKey:   "b64-ecdh-public",
		chest:     "b64-encrypted-secret-key",
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	inviteBytes, err := json.Marshal(domain.InvitePayload{
		InviteID:      f.inviteID,
		WalletID:      f.walletID,
		UserInviterID: f.ownerID,
	})
	require.NoError(t, err)
	f.b64Invite = base64.StdEncoding.EncodeToString(inviteBytes)
	f.b64Sig = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, inviteBytes))

	users := &fakeUserRepo{keys: map[string][]byte{f.joiningID: pub}}
	f.members = &fakeMembershipRepo{rows: []domain.Membership{{
		ID:          uuid.New(),
		WalletID:    f.walletID,
		UserID:      f.ownerID,
		AccessLevel: domain.AccessOwner,
	}}}
	wallets := &fakeWalletRepo{
		wallets: map[uuid.UUID]*domain.Wallet{f.walletID: {ID: f.walletID}},
		members: f.members,
	}
	f.invites = &fakeInviteRepo{disposed: make(map[uuid.UUID]bool)}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	walletEvents := NewWalletEvents(log, f.registry, wallets)
	f.svc = NewInviteService(log, f.registry, ed25519Verifier{}, walletEvents, users, wallets, f.members, f.invites, passTx{})
	return f
}

func (f *inviteFixture) joinRequest() domain.JoinRequest {
	return domain.JoinRequest{
		B64InviteString:                 f.b64Invite,
		B64InviteSignatureByJoiningUser: f.b64Sig,
		B64PublicECDHKey:                "b64-joiner-ecdh",
	}
}

func (f *inviteFixture) acceptResolution() domain.InviteResolution {
	return domain.InviteResolution{
		AllowJoin:                       true,
		JoiningUserID:                   f.joiningID,
		B64InviteString:                 f.b64Invite,
		B64InviteSignatureByJoiningUser: f.b64Sig,
		B64PublicECDHKey:                &f.ecdhKey,
		EncryptedSecretKey:              &f.chest,
	}
}

func (f *inviteFixture) setOnline(userID string, sessions int64) {
	f.registry.counts[domain.UserChannel(userID)] = sessions
}

func TestLaunchWalletJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards to online owner", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.ownerID, 2)

		require.NoError(t, f.svc.LaunchWalletJoin(ctx, f.joiningID, f.joinRequest()))

		msgs := f.registry.messagesTo(domain.UserChannel(f.ownerID))
		require.Len(t, msgs, 1)
		assert.Equal(t, domain.PurposeInvite, msgs[0].purpose)
		validate, ok := msgs[0].data.(domain.InviteValidateMessage)
		require.True(t, ok)
		assert.Equal(t, f.joiningID, validate.JoiningUserID)
		assert.Equal(t, f.b64Invite, validate.B64InviteString)
	})

	t.Run("owner offline fails fast without storage writes", func(t *testing.T) {
		f := newInviteFixture(t)

		err := f.svc.LaunchWalletJoin(ctx, f.joiningID, f.joinRequest())

		require.ErrorIs(t, err, domain.ErrOwnerOffline)
		disposed, _ := f.invites.IsDisposed(ctx, f.inviteID)
		assert.False(t, disposed, "nothing durable may change before the owner answers")
		isMember, _ := f.members.IsMember(ctx, f.walletID, f.joiningID)
		assert.False(t, isMember)
	})

	t.Run("tampered invite rejected", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.ownerID, 1)

		forged, err := json.Marshal(domain.InvitePayload{
			InviteID:      f.inviteID,
			WalletID:      uuid.New(),
			UserInviterID: f.ownerID,
		})
		require.NoError(t, err)
		req := f.joinRequest()
		req.B64InviteString = base64.StdEncoding.EncodeToString(forged)

		err = f.svc.LaunchWalletJoin(ctx, f.joiningID, req)
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
		assert.Empty(t, f.registry.published)
	})

	t.Run("disposed invite cannot relaunch", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.ownerID, 1)
		require.NoError(t, f.invites.Dispose(ctx, f.inviteID))

		err := f.svc.LaunchWalletJoin(ctx, f.joiningID, f.joinRequest())
		require.ErrorIs(t, err, domain.ErrInviteAlreadyUsed)
	})

	t.Run("existing member cannot rejoin", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.ownerID, 1)
		require.NoError(t, f.members.CreateMembership(ctx, &domain.Membership{
			ID: uuid.New(), WalletID: f.walletID, UserID: f.joiningID, AccessLevel: domain.AccessUsual,
		}))

		err := f.svc.LaunchWalletJoin(ctx, f.joiningID, f.joinRequest())
		require.ErrorIs(t, err, domain.ErrAlreadyMember)
	})
}

func TestResolveInvitationAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("creates membership and hands key material over", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.joiningID, 1)

		require.NoError(t, f.svc.ResolveInvitation(ctx, f.ownerID, f.acceptResolution()))

		isMember, err := f.members.IsMember(ctx, f.walletID, f.joiningID)
		require.NoError(t, err)
		assert.True(t, isMember)

		msgs := f.registry.messagesTo(domain.UserChannel(f.joiningID))
		require.NotEmpty(t, msgs)
		accept, ok := msgs[0].data.(domain.InviteAcceptMessage)
		require.True(t, ok)
		assert.Equal(t, f.walletID, accept.WalletID)
		assert.Equal(t, f.chest, accept.EncryptedSecretKey)

		// The refreshed member list reaches every member, owner included.
		ownerMsgs := f.registry.messagesTo(domain.UserChannel(f.ownerID))
		require.NotEmpty(t, ownerMsgs)
		assert.Equal(t, domain.PurposeWallet, ownerMsgs[len(ownerMsgs)-1].purpose)
	})

	t.Run("joining user offline rolls the membership back", func(t *testing.T) {
		f := newInviteFixture(t)
		// No session for the joining user: the accept publish lands on zero
		// receivers.

		err := f.svc.ResolveInvitation(ctx, f.ownerID, f.acceptResolution())

		require.ErrorIs(t, err, domain.ErrJoiningUserOffline)
		isMember, lookupErr := f.members.IsMember(ctx, f.walletID, f.joiningID)
		require.NoError(t, lookupErr)
		assert.False(t, isMember, "membership without delivered key material must not survive")

		disposed, _ := f.invites.IsDisposed(ctx, f.inviteID)
		assert.False(t, disposed, "invite stays usable for a retry")
	})

	t.Run("invite remains usable after rollback", func(t *testing.T) {
		f := newInviteFixture(t)

		require.ErrorIs(t, f.svc.ResolveInvitation(ctx, f.ownerID, f.acceptResolution()), domain.ErrJoiningUserOffline)

		f.setOnline(f.ownerID, 1)
		f.setOnline(f.joiningID, 1)
		require.NoError(t, f.svc.LaunchWalletJoin(ctx, f.joiningID, f.joinRequest()))
		require.NoError(t, f.svc.ResolveInvitation(ctx, f.ownerID, f.acceptResolution()))

		isMember, err := f.members.IsMember(ctx, f.walletID, f.joiningID)
		require.NoError(t, err)
		assert.True(t, isMember)
	})

	t.Run("missing key material", func(t *testing.T) {
		f := newInviteFixture(t)
		res := f.acceptResolution()
		res.EncryptedSecretKey = nil

		err := f.svc.ResolveInvitation(ctx, f.ownerID, res)
		require.ErrorIs(t, err, domain.ErrMissingKeyMaterial)
	})

	t.Run("only the current owner may resolve", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.joiningID, 1)

		err := f.svc.ResolveInvitation(ctx, "someone-else", f.acceptResolution())
		require.ErrorIs(t, err, domain.ErrNotWalletOwner)
		isMember, _ := f.members.IsMember(ctx, f.walletID, f.joiningID)
		assert.False(t, isMember)
	})
}

func TestResolveInvitationReject(t *testing.T) {
	ctx := context.Background()

	t.Run("burns the invite regardless of joining user liveness", func(t *testing.T) {
		f := newInviteFixture(t)
		res := f.acceptResolution()
		res.AllowJoin = false
		res.B64PublicECDHKey = nil
		res.EncryptedSecretKey = nil

		require.NoError(t, f.svc.ResolveInvitation(ctx, f.ownerID, res))

		disposed, err := f.invites.IsDisposed(ctx, f.inviteID)
		require.NoError(t, err)
		assert.True(t, disposed)

		msgs := f.registry.messagesTo(domain.UserChannel(f.joiningID))
		require.NotEmpty(t, msgs)
		_, ok := msgs[0].data.(domain.InviteRejectMessage)
		assert.True(t, ok)

		// Replay of the same invite string must now fail.
		f.setOnline(f.ownerID, 1)
		err = f.svc.LaunchWalletJoin(ctx, f.joiningID, f.joinRequest())
		require.ErrorIs(t, err, domain.ErrInviteAlreadyUsed)
	})

	t.Run("stale owner client cannot accept a rejected invite", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.joiningID, 1)
		reject := f.acceptResolution()
		reject.AllowJoin = false
		reject.B64PublicECDHKey = nil
		reject.EncryptedSecretKey = nil
		require.NoError(t, f.svc.ResolveInvitation(ctx, f.ownerID, reject))

		err := f.svc.ResolveInvitation(ctx, f.ownerID, f.acceptResolution())

		require.ErrorIs(t, err, domain.ErrInviteAlreadyUsed)
		isMember, lookupErr := f.members.IsMember(ctx, f.walletID, f.joiningID)
		require.NoError(t, lookupErr)
		assert.False(t, isMember, "a burned invite must never mint a membership")
	})

	t.Run("reject must not carry key material", func(t *testing.T) {
		f := newInviteFixture(t)
		res := f.acceptResolution()
		res.AllowJoin = false
		res.EncryptedSecretKey = nil

		err := f.svc.ResolveInvitation(ctx, f.ownerID, res)
		require.ErrorIs(t, err, domain.ErrUnexpectedKeyMaterial)
	})
}

func TestJoiningError(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing created is a clean no-op", func(t *testing.T) {
		f := newInviteFixture(t)

		require.NoError(t, f.svc.JoiningError(ctx, f.joiningID, f.walletID, f.inviteID))
		assert.Empty(t, f.registry.published, "no cleanup, no notification")
	})

	t.Run("deletes the partial membership and tells the owner", func(t *testing.T) {
		f := newInviteFixture(t)
		f.setOnline(f.joiningID, 1)
		require.NoError(t, f.svc.ResolveInvitation(ctx, f.ownerID, f.acceptResolution()))

		require.NoError(t, f.svc.JoiningError(ctx, f.joiningID, f.walletID, f.inviteID))

		isMember, err := f.members.IsMember(ctx, f.walletID, f.joiningID)
		require.NoError(t, err)
		assert.False(t, isMember)

		var sawError bool
		for _, m := range f.registry.messagesTo(domain.UserChannel(f.ownerID)) {
			if _, ok := m.data.(domain.InviteErrorMessage); ok {
				sawError = true
			}
		}
		assert.True(t, sawError)
	})
}

func TestInvitationError(t *testing.T) {
	f := newInviteFixture(t)

	require.NoError(t, f.svc.InvitationError(context.Background(), f.joiningID, f.walletID, f.inviteID))

	msgs := f.registry.messagesTo(domain.UserChannel(f.joiningID))
	require.Len(t, msgs, 1)
	errMsg, ok := msgs[0].data.(domain.InviteErrorMessage)
	require.True(t, ok)
	assert.Equal(t, f.inviteID, errMsg.InviteID)
}
