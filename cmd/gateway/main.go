// The gateway serves the delegated-action API: it authenticates sessions,
// enqueues their writes as tasks, and runs the worker and rebalancer that
// execute them against the chain from the custodial wallet.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	app "github.com/MoveSocial/social_layer/internal/app"
	"github.com/MoveSocial/social_layer/internal/app/httpapi"
	"github.com/MoveSocial/social_layer/internal/app/metrics"
	"github.com/MoveSocial/social_layer/internal/app/services/sponsor"
	"github.com/MoveSocial/social_layer/internal/app/storage/postgres"
	redisstore "github.com/MoveSocial/social_layer/internal/app/storage/redis"
	"github.com/MoveSocial/social_layer/internal/chain"
	"github.com/MoveSocial/social_layer/internal/config"
	"github.com/MoveSocial/social_layer/internal/middleware"
	"github.com/MoveSocial/social_layer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("gateway").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log := logger.New("gateway", level)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("gateway exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	contracts, err := cfg.Contracts()
	if err != nil {
		return err
	}

	client, err := chain.NewClient(chain.Config{RPCURL: cfg.RPCURL, Timeout: cfg.RPCTimeout})
	if err != nil {
		return err
	}
	signer, err := chain.NewSigner(cfg.SeedPhrase, client)
	if err != nil {
		return err
	}
	log.WithField("wallet", signer.Address()).Info("custodial wallet derived")

	stores, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	application, err := app.New(stores, signer, client, app.Config{
		Sponsor: sponsor.Config{
			Packages:     contracts.Packages,
			AdminCap:     contracts.AdminCap,
			ProfileIndex: contracts.ProfileIndex,
			ProfileTable: contracts.ProfileTable,
			GasCount:     cfg.GasCount,
			GasAmount:    cfg.GasAmount,
		},
		RebalanceSchedule: cfg.RebalanceSchedule,
	}, log)
	if err != nil {
		return err
	}

	if err := application.Start(ctx); err != nil {
		return err
	}

	auth := middleware.NewAuthMiddleware(cfg.JWTSecret, log, []string{"/healthz", "/metrics"})
	cors := middleware.NewCORSMiddleware([]string{"*"})
	limiter := middleware.NewRateLimiter(10, 20, log)
	limiter.StartCleanup(time.Hour)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(application))

	handler := cors.Handler(auth.Handler(limiter.Handler(metrics.InstrumentHandler(mux))))
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	return application.Stop(shutdownCtx)
}

// buildStores selects the persistence backends: postgres when DATABASE_URL is
// set, with the task mailbox optionally moved to redis, and memory otherwise.
func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	var stores app.Stores
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return stores, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = db.Close() })

		if err := db.PingContext(ctx); err != nil {
			return stores, cleanup, err
		}
		pg := postgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return stores, cleanup, err
		}
		stores.Leases = pg
		stores.Tasks = pg
		stores.ProfileCaps = pg
		log.Info("using postgres storage")
	}

	if cfg.RedisAddr != "" {
		rs, err := redisstore.Open(ctx, cfg.RedisAddr)
		if err != nil {
			return stores, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = rs.Close() })
		stores.Tasks = rs
		log.Info("using redis task mailbox")
	}

	return stores, cleanup, nil
}
