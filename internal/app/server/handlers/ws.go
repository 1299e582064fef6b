package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/safeapps-io/money-back/internal/app/server/ws"
	"github.com/safeapps-io/money-back/internal/config"
	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/services"
	"github.com/safeapps-io/money-back/pkg/logging"
	"github.com/safeapps-io/money-back/pkg/middleware"
)

// WSHandler serves the WebSocket delivery path, including the client
// frames that request chunked snapshot and reference-data streams.
type WSHandler struct {
	registry contracts.Registry
	senders  *Senders
	tokenSvc *services.TokenService
	cfg      config.RealtimeConfig
}

func NewWSHandler(registry contracts.Registry, senders *Senders, tokenSvc *services.TokenService, cfg config.RealtimeConfig) *WSHandler {
	return &WSHandler{registry: registry, senders: senders, tokenSvc: tokenSvc, cfg: cfg}
}

func (h *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
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
	ticket := ticketFromRequest(r)
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("session.id", sessionID),
	)

	// The request context dies with the HTTP handshake once the
	// connection is hijacked; the session gets its own lifetime.
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	defer cancel()
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", "err", err)
		return
	}
	conn.SetCloseHandler(func(code int, text string) error {
		log.Info("ws handler - socket closed", "session_id", sessionID)
		cancel()
		return nil
	})
	wsConn := ws.NewWebSocket(ctx, conn, h.cfg.WriteTimeout)
	socket := ws.NewSocket(ctx, wsConn, sessionID, userID, ticket, func(ticket string) error {
		_, err := h.tokenSvc.ValidateTicket(ticket)
		return err
	})
	defer socket.Close()

	if err := h.senders.attach(ctx, socket); err != nil {
		log.ErrorContext(ctx, "ws handler - attach failed", "session_id", sessionID, "err", err)
		return
	}
	defer func() {
		if err := h.senders.detach(context.WithoutCancel(ctx), h.registry, socket); err != nil {
			log.ErrorContext(ctx, "ws handler - detach failed", "session_id", sessionID, "err", err)
		}
	}()
	log.InfoContext(ctx, "ws handler - connection established", "session_id", sessionID, "user_id", userID)

	go h.senders.Ping.Start(ctx, socket)

	wsConn.ReadLoop(func(data []byte) {
		if err := h.handleFrame(ctx, socket, data); err != nil {
			log.ErrorContext(ctx, "ws handler - frame failed", "session_id", sessionID, "err", err)
		}
	})
}

// handleFrame dispatches client requests. Both streams may interleave with
// live events on the same connection; clients merge by their own clocks.
func (h *WSHandler) handleFrame(ctx context.Context, socket *ws.Socket, data []byte) error {
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("frame decode: %w", err)
	}
	switch frame.Type {
	case "sync.request":
		return h.senders.Sync.StreamSnapshot(ctx, socket)
	case "mcc.request":
		return h.senders.Sync.StreamMCC(ctx, socket)
	}
	// Unknown frame types are ignored, older clients may send extras.
	return nil
}
