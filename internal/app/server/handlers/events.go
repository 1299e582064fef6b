package handlers

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/safeapps-io/money-back/internal/app/server/sse"
	"github.com/safeapps-io/money-back/internal/config"
	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/pkg/logging"
	"github.com/safeapps-io/money-back/pkg/middleware"
)

// EventsHandler serves the Server-Sent-Events stream.
type EventsHandler struct {
	registry contracts.Registry
	senders  *Senders
	cfg      config.RealtimeConfig
}

func NewEventsHandler(registry contracts.Registry, senders *Senders, cfg config.RealtimeConfig) *EventsHandler {
	return &EventsHandler{registry: registry, senders: senders, cfg: cfg}
}

func (h *EventsHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized: User ID missing", http.StatusUnauthorized)
		return
	}
	sessionID, ok := r.Context().Value(middleware.SessionIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized: Session ID missing", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("session.id", sessionID),
	)

	stream, err := sse.NewStream(r.Context(), w, sessionID, userID, h.cfg.SSERetryMinMS, h.cfg.SSERetryMaxMS)
	if err != nil {
		log.ErrorContext(r.Context(), "events handler - stream init failed", "err", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	defer stream.Close()

	ctx := r.Context()
	if err := h.senders.attach(ctx, stream); err != nil {
		log.ErrorContext(ctx, "events handler - attach failed", "session_id", sessionID, "err", err)
		return
	}
	// Detach may not run on the request context, it is already canceled
	// by the time the connection closes.
	defer func() {
		if err := h.senders.detach(context.WithoutCancel(ctx), h.registry, stream); err != nil {
			log.ErrorContext(ctx, "events handler - detach failed", "session_id", sessionID, "err", err)
		}
	}()
	log.InfoContext(ctx, "events handler - stream established", "session_id", sessionID, "user_id", userID)

	go h.senders.Ping.Start(ctx, stream)

	if err := h.senders.Sync.StreamSnapshot(ctx, stream); err != nil {
		log.ErrorContext(ctx, "events handler - initial snapshot failed", "session_id", sessionID, "err", err)
	}

	<-ctx.Done()
	log.InfoContext(context.WithoutCancel(ctx), "events handler - stream closed", "session_id", sessionID)
}
