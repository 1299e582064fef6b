package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/safeapps-io/money-back/internal/app/registry"
	"github.com/safeapps-io/money-back/internal/app/server"
	"github.com/safeapps-io/money-back/internal/app/server/handlers"
	"github.com/safeapps-io/money-back/internal/config"
	"github.com/safeapps-io/money-back/internal/core/services"
	"github.com/safeapps-io/money-back/internal/platform/logger"
	"github.com/safeapps-io/money-back/internal/platform/telemetry"
	cryptoPlugin "github.com/safeapps-io/money-back/internal/plugins/crypto"
	"github.com/safeapps-io/money-back/internal/plugins/postgres"
	redisPlugin "github.com/safeapps-io/money-back/internal/plugins/redis"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "DSN", cfg.Postgres.DSN)
		return
	}
	log.Info("postgres connected")
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL)
		return
	}
	log.Info("redis connected")

	// Adapters
	userRepo := postgres.NewUserRepo(pdb)
	walletRepo := postgres.NewWalletRepo(pdb)
	membershipRepo := postgres.NewMembershipRepo(pdb)
	inviteRepo := postgres.NewInviteRepo(pdb)
	entityRepo := postgres.NewEntityRepo(pdb)
	verifier := cryptoPlugin.NewEd25519Verifier()
	transport := redisPlugin.NewRedisPubSubTransport(ctx, rdb)

	// Core
	reg := registry.NewRegistry(log, transport)
	go func() {
		if err := reg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("registry stopped", "err", err)
		}
	}()
	defer reg.Close()

	txManager := services.NewTxManager(pdb)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	defer tokenSvc.Close()
	walletEvents := services.NewWalletEvents(log, reg, walletRepo)
	senders := &handlers.Senders{
		User:    services.NewUserEvents(log, reg),
		Wallet:  walletEvents,
		Sync:    services.NewSyncEvents(log, reg, walletRepo, entityRepo, cfg.Realtime.ChunkSize),
		Billing: services.NewBillingEvents(log, reg),
		Ping:    services.NewPinger(log, cfg.Realtime.PingInterval),
	}
	inviteSvc := services.NewInviteService(
		log, reg, verifier, walletEvents,
		userRepo, walletRepo, membershipRepo, inviteRepo, txManager,
	)

	// Server
	srv := server.NewServer(log, *cfg, reg, senders, inviteSvc, senders.Billing, tokenSvc)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "err", err)
	}
}
