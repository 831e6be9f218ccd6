// main wires the platform: stores (memory by default, Postgres and Redis when
// configured), the reservation engine, the OTP challenge service, the gated
// mutation gateway, and two HTTP listeners (API and metrics).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"zeron/internal/gateway"
	gatewayhandler "zeron/internal/gateway/handler"
	"zeron/internal/identity"
	identitystore "zeron/internal/identity/store"
	investmenthandler "zeron/internal/investment/handler"
	investmentservice "zeron/internal/investment/service"
	investmentstore "zeron/internal/investment/store"
	"zeron/internal/notify"
	otpservice "zeron/internal/otp/service"
	otpstore "zeron/internal/otp/store"
	"zeron/internal/platform/config"
	"zeron/internal/platform/httpserver"
	"zeron/internal/platform/logger"
	"zeron/internal/platform/metrics"
	"zeron/internal/platform/postgres"
	redisclient "zeron/internal/platform/redis"
	propertyhandler "zeron/internal/property/handler"
	propertystore "zeron/internal/property/store"
	httptransport "zeron/internal/transport/http"
	auditmemory "zeron/pkg/platform/audit/store/memory"
	"zeron/pkg/platform/tx"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	auditStore := auditmemory.NewInMemoryStore()

	// Stores default to in-memory; configured DSNs swap in the durable
	// implementations without touching the services above them.
	var (
		properties  propertystore.Store   = propertystore.NewInMemoryStore()
		investments investmentstore.Store = investmentstore.NewInMemoryStore()
		challenges  otpstore.Store        = otpstore.NewInMemoryStore()
		runner      tx.Runner             = tx.PassthroughRunner{}
		health      func() error
	)

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := postgres.ApplySchema(ctx, db); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		properties = propertystore.NewPostgres(db)
		investments = investmentstore.NewPostgres(db)
		runner = tx.SQLRunner{DB: db}
		health = db.Ping
		log.Info("postgres stores enabled")
	}

	if cfg.RedisURL != "" {
		rc, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		defer rc.Close()
		challenges = otpstore.NewRedis(rc.Client)
		log.Info("redis challenge store enabled")
	}

	directory := identitystore.NewInMemoryDirectory()
	provider := identity.NewJWTProvider(cfg.JWTSigningKey, directory)

	var dispatcher notify.Dispatcher = notify.NewFallbackRecorder()
	if cfg.SMTPAddr != "" {
		dispatcher = notify.NewSMTPDispatcher(cfg.SMTPAddr, cfg.SMTPFrom)
	}

	engine, err := investmentservice.NewEngine(properties, investments, directory,
		investmentservice.WithLogger(log),
		investmentservice.WithMetrics(m),
		investmentservice.WithAuditPublisher(auditStore),
		investmentservice.WithTxRunner(runner),
	)
	if err != nil {
		return fmt.Errorf("build reservation engine: %w", err)
	}

	challengeService, err := otpservice.New(challenges, dispatcher,
		otpservice.WithLogger(log),
		otpservice.WithMetrics(m),
		otpservice.WithAuditPublisher(auditStore),
		otpservice.WithConfig(otpservice.Config{
			TTL:         cfg.ChallengeTTL,
			MaxAttempts: cfg.ChallengeMaxAttempts,
		}),
	)
	if err != nil {
		return fmt.Errorf("build challenge service: %w", err)
	}

	gw, err := gateway.New(challengeService, gateway.Operations(properties, directory),
		gateway.WithLogger(log),
		gateway.WithAuditPublisher(auditStore),
	)
	if err != nil {
		return fmt.Errorf("build mutation gateway: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:     log,
		Identity:   provider,
		Properties: propertyhandler.New(properties, log),
		Investment: investmenthandler.New(engine, log),
		Gateway:    gatewayhandler.New(gw, challengeService, log),
		Health:     health,
	})

	apiServer := httpserver.New(cfg.Addr, router)
	metricsServer := httpserver.New(cfg.MetricsAddr, httptransport.NewMetricsRouter())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api server listening", "addr", cfg.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
