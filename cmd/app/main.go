// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vendor-payments/internal/config"
	"vendor-payments/internal/infra/adapters/gateway"
	"vendor-payments/internal/infra/adapters/ledger"
	pg "vendor-payments/internal/infra/db/postgres"
	"vendor-payments/internal/infra/logging"
	"vendor-payments/internal/infra/metrics"
	red "vendor-payments/internal/infra/redis"
	"vendor-payments/internal/infra/sched"
	"vendor-payments/internal/infra/web"
	"vendor-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Redis (pending-intent slots) ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	pendingStore := red.NewPendingStore(redisClient)

	// ---- Postgres (outcome audit trail) ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	outcomeRepo := pg.NewOutcomeRepo(pool)
	if err := outcomeRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("outcome schema: %v", err)
	}

	// ---- Gateway + ledgers ----
	gw, err := gateway.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}
	wallet, err := ledger.NewWalletClient(cfg.Ledger.WalletURL, cfg.Ledger.Timeout)
	if err != nil {
		log.Fatalf("wallet ledger: %v", err)
	}
	subscription, err := ledger.NewSubscriptionClient(cfg.Ledger.SubscriptionURL, cfg.Ledger.Timeout)
	if err != nil {
		log.Fatalf("subscription ledger: %v", err)
	}

	// ---- Coordinator ----
	poller := sched.NewPoller(gw, cfg.Reconciler.PollInterval, logger)
	uc, err := usecase.NewReconcileUseCase(pendingStore, outcomeRepo, gw, poller, wallet, subscription, cfg.Reconciler.GraceWindow, logger)
	if err != nil {
		log.Fatalf("reconcile usecase: %v", err)
	}
	defer uc.Close()

	// Resume or discard whatever the previous run left pending.
	if err := uc.RestoreOnLoad(ctx); err != nil {
		logger.Error().Err(err).Msg("restore on load failed")
	}

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret, cfg.Web.SecureCookie, cfg.Web.SessionTTL)
	srv := web.NewServer(uc, outcomeRepo, auth, cfg.Web.APIKey, logger)
	go func() {
		if err := srv.Start(cfg.Web.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Pollers stop here; pending records stay in Redis and are resumed by the
	// next start's RestoreOnLoad, same as a page reload in the old dashboard.
}
