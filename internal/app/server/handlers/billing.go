package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/safeapps-io/money-back/internal/core/domain"
	"github.com/safeapps-io/money-back/internal/core/services"
	"github.com/safeapps-io/money-back/pkg/logging"
)

// BillingHandler accepts charge notifications from the payment-provider
// processing pipeline and fans them out to the charged user's sessions.
type BillingHandler struct {
	billing *services.BillingEvents
}

func NewBillingHandler(billing *services.BillingEvents) *BillingHandler {
	return &BillingHandler{billing: billing}
}

func (h *BillingHandler) Notify(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	var charge domain.Charge
	if err := json.NewDecoder(r.Body).Decode(&charge); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if charge.UserID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}
	if charge.ID == uuid.Nil {
		charge.ID = uuid.New()
	}
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = time.Now()
	}
	h.billing.PublishCharge(r.Context(), charge)
	log.InfoContext(r.Context(), "billing handler - charge published", "user_id", charge.UserID, "charge_id", charge.ID.String())
	w.WriteHeader(http.StatusAccepted)
}
