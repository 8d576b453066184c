// Command server wires the reputation service together and runs it until
// interrupted. Business logic lives in the internal service packages; main
// only selects implementations from configuration and manages lifecycle.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"irrl/internal/attestation"
	"irrl/internal/audit"
	"irrl/internal/evaluation"
	"irrl/internal/platform/config"
	"irrl/internal/platform/database"
	"irrl/internal/platform/httpserver"
	"irrl/internal/platform/logger"
	"irrl/internal/platform/metrics"
	"irrl/internal/platform/middleware"
	"irrl/internal/platform/redis"
	"irrl/internal/proof"
	"irrl/internal/realm"
	"irrl/internal/reputation"
	"irrl/internal/resolver"
	"irrl/internal/storage"
	httptransport "irrl/internal/transport/http"
	"irrl/internal/trust"
	"irrl/pkg/signing"
)

const version = "1.0.0"

func main() {
	cfg := config.FromEnv()
	logg := logger.New()

	if err := run(cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The instance signing key is generated fresh at every boot; proofs carry
	// the public key so verifiers do not depend on our key surviving restarts.
	keys, err := signing.GenerateKeyPair()
	if err != nil {
		return err
	}

	repo, checks, cleanup, err := openStorage(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer cleanup()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var cache reputation.Cache = reputation.NewMemoryCache()
	if redisClient != nil {
		cache = reputation.NewRedisCache(redisClient)
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: redisClient.Health})
		defer redisClient.Close()
	}

	auditLog := audit.Open(repo.Audit(), logg, cfg.Audit.Enabled)
	mirror, err := audit.NewKafkaMirror(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	var asyncMirror *audit.AsyncMirror
	if mirror != nil {
		asyncMirror = audit.NewAsyncMirror(mirror, logg, 256)
		auditLog = auditLog.WithMirror(asyncMirror)
		defer mirror.Close()
	}

	registry := resolver.NewRegistry()
	if err := resolver.RegisterBuiltIns(registry, resolver.BuiltInConfig{
		GitHubToken: cfg.Auth.GitHubToken,
	}); err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	repService := reputation.NewService(repo, cache, logg, reputation.NewMetrics())
	attService := attestation.NewService(repo, registry, auditLog, keys, logg, attestation.NewMetrics())

	router := httptransport.NewRouter(httptransport.Deps{
		Realms:       realm.NewService(repo, auditLog, logg),
		Attestations: attService,
		Evaluations:  evaluation.NewService(repo, auditLog, keys, repService, logg),
		Trust:        trust.NewService(repo, logg, trust.NewMetrics()),
		Reputation:   repService,
		Proofs:       proof.NewService(repo, auditLog, keys, cfg.Auth.TrustedIssuerKeys, logg),
		Resolvers:    resolver.NewService(registry, repo.Resolvers(), auditLog, logg),
		Logger:       logg,
		Metrics:      metrics.NewHTTP(),
		CORSOrigins:  cfg.Server.CORSOrigins,
		AdminSecret:  cfg.Auth.JWTSecret,
		RateLimiter:  limiter,
		Info: httptransport.InstanceInfo{
			Version:       version,
			PublicKey:     keys.PublicKey,
			AuditEnabled:  auditLog.Enabled(),
			ResolverCount: registry.Count,
		},
		Checks: checks,
	})

	srv := httpserver.New(cfg.Server.Addr(), router)
	scanner := attestation.NewScanner(attService, logg, time.Minute)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info("listening", "addr", cfg.Server.Addr(), "audit", auditLog.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error { return ignoreCancel(scanner.Run(ctx)) })
	if asyncMirror != nil {
		group.Go(func() error { return ignoreCancel(asyncMirror.Run(ctx)) })
	}
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// openStorage selects the repository implementation: postgres when a database
// URL is configured, otherwise the in-memory store.
func openStorage(ctx context.Context, cfg config.Config, logg *slog.Logger) (storage.Repository, []httptransport.HealthCheck, func(), error) {
	if cfg.Database.URL == "" {
		logg.Info("no DATABASE_URL, using in-memory storage")
		check := httptransport.HealthCheck{
			Name:  "storage",
			Check: func(context.Context) error { return nil },
		}
		return storage.NewMemory(), []httptransport.HealthCheck{check}, func() {}, nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	check := httptransport.HealthCheck{Name: "storage", Check: db.PingContext}
	return storage.NewPostgres(db), []httptransport.HealthCheck{check}, func() { db.Close() }, nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
