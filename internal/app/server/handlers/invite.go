package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/safeapps-io/money-back/internal/core/domain"
	"github.com/safeapps-io/money-back/internal/core/services"
	"github.com/safeapps-io/money-back/pkg/logging"
	"github.com/safeapps-io/money-back/pkg/middleware"
)

// InviteHandler exposes the wallet-join handshake over HTTP. The actual
// exchange between the two parties flows through the realtime registry;
// these endpoints only feed it.
type InviteHandler struct {
	inviteSvc *services.InviteService
}

func NewInviteHandler(inviteSvc *services.InviteService) *InviteHandler {
	return &InviteHandler{inviteSvc: inviteSvc}
}

// Join is the joining user's entry point into the handshake.
func (h *InviteHandler) Join(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	var req domain.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.B64InviteString == "" || req.B64InviteSignatureByJoiningUser == "" || req.B64PublicECDHKey == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if err := h.inviteSvc.LaunchWalletJoin(r.Context(), userID, req); err != nil {
		log.ErrorContext(r.Context(), "invite handler - join failed", "user_id", userID, "err", err)
		writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "awaiting_owner"})
}

// Resolve is the owner's answer to a validate message.
func (h *InviteHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	var res domain.InviteResolution
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if res.JoiningUserID == "" || res.B64InviteString == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if err := h.inviteSvc.ResolveInvitation(r.Context(), userID, res); err != nil {
		log.ErrorContext(r.Context(), "invite handler - resolve failed", "user_id", userID, "err", err)
		writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "resolved"})
}

// Abort lets either party bail out after partial progress. The owner names
// the joining user; the joining user aborts for themselves, cleaning up
// any membership row the flow already created.
func (h *InviteHandler) Abort(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	var req struct {
		WalletID      uuid.UUID `json:"walletId"`
		InviteID      uuid.UUID `json:"inviteId"`
		JoiningUserID string    `json:"joiningUserId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.WalletID == uuid.Nil || req.InviteID == uuid.Nil {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	var err error
	if req.JoiningUserID != "" && req.JoiningUserID != userID {
		err = h.inviteSvc.InvitationError(r.Context(), req.JoiningUserID, req.WalletID, req.InviteID)
	} else {
		err = h.inviteSvc.JoiningError(r.Context(), userID, req.WalletID, req.InviteID)
	}
	if err != nil {
		log.ErrorContext(r.Context(), "invite handler - abort failed", "user_id", userID, "err", err)
		writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "aborted"})
}
