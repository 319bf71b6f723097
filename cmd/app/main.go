// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paybridge/internal/config"
	pg "paybridge/internal/infra/db/postgres"
	"paybridge/internal/infra/gateway"
	"paybridge/internal/infra/logging"
	"paybridge/internal/infra/metrics"
	red "paybridge/internal/infra/redis"
	"paybridge/internal/infra/sched"
	"paybridge/internal/infra/secrets"
	"paybridge/internal/infra/web"
	"paybridge/internal/infra/worker"
	"paybridge/internal/usecase"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, insecure cookies)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	deduper := red.NewWebhookDeduper(redisClient, cfg.Redis.TTL)
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	txm := pg.NewTxManager(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	orderRepo := pg.NewOrderRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	webhookRepo := pg.NewWebhookRepo(pool)
	idemRepo := pg.NewIdempotencyRepo(pool)
	configRepo := pg.NewGatewayConfigRepoCacheDecorator(pg.NewGatewayConfigRepo(pool), redisClient, cfg.Redis.TTL)

	// ---- Secrets ----
	secretSource := secrets.NewEnvSource(cfg.App)

	// ---- Use cases ----
	configUC := usecase.NewGatewayConfigUseCase(configRepo, secretSource, logger)
	adapters := gateway.NewFactory(configUC, cfg.Payments.GatewayTimeout, logger)
	idemUC := usecase.NewIdempotencyUseCase(idemRepo, cfg.Payments.IdempotencyTTL, logger)

	registry := sched.NewRegistry()
	paymentUC := usecase.NewPaymentUseCase(paymentRepo, orderRepo, refundRepo, txm, adapters, idemUC, registry, logger)
	webhookUC := usecase.NewWebhookUseCase(webhookRepo, paymentRepo, orderRepo, refundRepo, configRepo, txm, adapters, deduper, logger)

	// ---- Background workers ----
	workers := worker.NewPool(0, logger)
	workers.Start(ctx)
	reconciler := sched.NewReconciler(
		paymentUC, idemUC, paymentRepo, registry, workers, locker,
		cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchLimit,
		logger,
	)
	go reconciler.Start(ctx)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, "", cfg.Admin.SessionTTL)
	srv := web.NewServer(
		paymentUC, webhookUC, configUC, adapters,
		cfg.Admin.APIKey, auth,
		cfg.Env(), cfg.Server.WebhookMaxBody,
		rateLimiter, cfg.Server.WebhookRateLimit,
		logger,
	)
	go func() {
		if err := srv.Start(cfg.Server.Port, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Str("version", version).
		Str("env", string(cfg.Env())).
		Int("port", cfg.Server.Port).
		Msg("paybridge up")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
	workers.Stop()
}
