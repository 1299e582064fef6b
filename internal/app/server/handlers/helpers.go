package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeProtocolError maps the error taxonomy onto HTTP statuses. Liveness
// gets a distinct code because the client remediation differs: retry later
// instead of fixing the input.
func writeProtocolError(w http.ResponseWriter, err error) {
	var status int
	var code string
	message := err.Error()
	switch domain.Kind(err) {
	case domain.KindValidation:
		status, code = http.StatusBadRequest, "validation"
	case domain.KindConflict:
		status, code = http.StatusConflict, "conflict"
	case domain.KindLiveness:
		status, code = http.StatusConflict, "offline"
	default:
		// Never leak infrastructure details to the client.
		status, code, message = http.StatusBadGateway, "internal", "temporary failure"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Code: code, Message: message})
}

// ticketFromRequest mirrors the auth middleware's ticket extraction; the
// WS adapter keeps the raw ticket for per-send revalidation.
func ticketFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("ticket")
}
