package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bank-node/config"
	httpHandler "bank-node/internal/adapter/http/handler"
	"bank-node/internal/adapter/metrics"
	"bank-node/internal/adapter/storage/memory"
	pgStorage "bank-node/internal/adapter/storage/postgres"
	redisStorage "bank-node/internal/adapter/storage/redis"
	tcpHandler "bank-node/internal/adapter/tcp/handler"
	"bank-node/internal/adapter/tcp/middleware"
	"bank-node/internal/adapter/tcp/server"
	"bank-node/internal/core/ports"
	"bank-node/internal/service"
	"bank-node/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("BANK_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("addr", cfg.Server.Addr()).
		Str("bank_code", cfg.Server.BankCode).
		Str("store", cfg.Store.Driver).
		Msg("Starting bank node")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("bank node failed")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("Server exited")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	var (
		accounts   ports.AccountRepository
		transactor ports.DBTransactor
		auditRepo  ports.AuditRepository
		checkers   []ports.HealthChecker
	)

	// Initialize the account store
	switch cfg.Store.Driver {
	case "memory":
		store := memory.NewStore()
		accounts, transactor = store, store
		checkers = append(checkers, store)
		log.Warn().Msg("Using in-memory account store; balances are lost on exit")
	default:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		defer pool.Close()

		if cfg.Database.Migrate {
			if err := pgStorage.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info().Msg("Database schema ready")
		}

		accounts = pgStorage.NewAccountRepo(pool)
		transactor = pgStorage.NewTransactor(pool)
		auditRepo = pgStorage.NewAuditRepo(pool)
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
	}

	// Initialize Redis (optional; backs rate limiting)
	var limiter ports.RateLimiter
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer rdb.Close()

		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
		if cfg.RateLimit.Enabled {
			limiter = redisStorage.NewRateLimitStore(rdb)
		}
	}

	// Initialize services
	ledger := service.NewLedgerService(accounts, transactor, cfg.Server.BankCode, cfg.Database.QueryTimeout, logger.Component(log, "ledger"))
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))
	defer auditSvc.Wait()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics := metrics.NewPrometheus()
	if err := promMetrics.Register(registry); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// Protocol pipeline and listener
	tcpLog := logger.Component(log, "tcp")
	router := tcpHandler.NewRouter(tcpHandler.RouterDeps{
		Ledger:      ledger,
		AuditSvc:    auditSvc,
		RateLimiter: limiter,
		RateRule:    middleware.RateLimitRule{Limit: cfg.RateLimit.Commands, Window: cfg.RateLimit.Window},
		Metrics:     promMetrics,
		Logger:      tcpLog,
	})
	srv := server.New(server.Config{
		ReadTimeout:          cfg.Server.ReadTimeout,
		MaxConnections:       cfg.Server.MaxConnections,
		MaxLineBytes:         cfg.Server.MaxLineBytes,
		AllowShutdownCommand: cfg.Server.AllowShutdownCommand,
	}, router, promMetrics, tcpLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr())
	})

	// Admin HTTP server with graceful shutdown
	if cfg.Admin.Enabled {
		adminSrv := &http.Server{
			Addr: cfg.Admin.Addr(),
			Handler: httpHandler.SetupRouter(httpHandler.RouterDeps{
				HealthCheckers: checkers,
				Ledger:         ledger,
				Sessions:       srv,
				Gatherer:       registry,
				Logger:         logger.Component(log, "admin"),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Info().Str("addr", adminSrv.Addr).Msg("Admin HTTP server listening")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-srv.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return adminSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		srv.Close()
		return err
	}

	// Let sessions drain, then cut off whatever is left.
	log.Info().Int64("active_sessions", srv.ActiveSessions()).Dur("grace", cfg.Server.ShutdownGrace).Msg("Draining sessions...")
	graceCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Wait(graceCtx); err != nil {
		log.Warn().Int64("active_sessions", srv.ActiveSessions()).Msg("Grace period elapsed, closing remaining sessions")
		srv.Close()
		_ = srv.Wait(context.Background())
	}
	return nil
}
