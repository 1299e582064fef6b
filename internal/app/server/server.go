package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/safeapps-io/money-back/internal/app/server/handlers"
	"github.com/safeapps-io/money-back/internal/config"
	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/services"
	"github.com/safeapps-io/money-back/pkg/middleware"
)

type Server struct {
	log  *slog.Logger
	mux  *http.ServeMux
	addr string
	srv  *http.Server

	eventsHandler  *handlers.EventsHandler
	wsHandler      *handlers.WSHandler
	inviteHandler  *handlers.InviteHandler
	billingHandler *handlers.BillingHandler
	tokenSvc       *services.TokenService
	serviceName    string
}

func NewServer(
	log *slog.Logger,
	cfg config.Config,
	registry contracts.Registry,
	senders *handlers.Senders,
	inviteSvc *services.InviteService,
	billing *services.BillingEvents,
	tokenSvc *services.TokenService,
) *Server {
	s := &Server{
		log:            log,
		mux:            http.NewServeMux(),
		addr:           cfg.Service.Addr,
		eventsHandler:  handlers.NewEventsHandler(registry, senders, *cfg.Realtime),
		wsHandler:      handlers.NewWSHandler(registry, senders, tokenSvc, *cfg.Realtime),
		inviteHandler:  handlers.NewInviteHandler(inviteSvc),
		billingHandler: handlers.NewBillingHandler(billing),
		tokenSvc:       tokenSvc,
		serviceName:    cfg.Service.Name,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	reqLog := middleware.RequestLogger(s.log)
	tracing := middleware.TracerMiddleware(s.serviceName)

	chain := func(h http.Handler) http.Handler {
		return tracing(reqLog(auth(h)))
	}

	s.mux.Handle("GET /events", chain(http.HandlerFunc(s.eventsHandler.Handler)))
	s.mux.Handle("GET /ws", chain(http.HandlerFunc(s.wsHandler.Handler)))
	s.mux.Handle("POST /wallets/join", chain(http.HandlerFunc(s.inviteHandler.Join)))
	s.mux.Handle("POST /wallets/join/resolve", chain(http.HandlerFunc(s.inviteHandler.Resolve)))
	s.mux.Handle("POST /wallets/join/error", chain(http.HandlerFunc(s.inviteHandler.Abort)))
	s.mux.Handle("POST /billing/events", chain(http.HandlerFunc(s.billingHandler.Notify)))
}

func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:        s.addr,
		Handler:     s.mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE and WS connections are long-lived.
	}
	s.log.Info("server - starting", "addr", s.addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
