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

	"hireflow/agreement"
	"hireflow/auth"
	"hireflow/config"
	"hireflow/db"
	"hireflow/hiring"
	"hireflow/job"
	"hireflow/notify"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type app struct {
	server *Server
	relay  *notify.Relay
	close  func()
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr, "store", cfg.StoreBackend, "notify", cfg.NotifyBackends)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if a.relay != nil {
		g.Go(func() error {
			a.relay.Run(ctx, cfg.RelayInterval, func(err error) {
				logger.Warn("outbox relay failed", "error", err)
			})
			return nil
		})
	}
	return g.Wait()
}

// build wires repositories, notifiers and services for the configured backends.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	var (
		store   agreement.Store
		records hiring.Repository
		users   auth.Repository
		pool    *pgxpool.Pool
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		var err error
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		if err := db.Migrate(ctx, pool); err != nil {
			closeAll()
			return nil, err
		}
		store = agreement.NewPGStore(pool)
		records = hiring.NewRepository(pool)
		users = auth.NewRepository(pool)
	default:
		store = agreement.NewMemoryStore()
		records = hiring.NewMemoryRepository(job.NewMemoryRepository())
		users = auth.NewMemoryRepository()
	}

	var (
		direct       notify.Fanout
		relay        *notify.Relay
		relayTargets notify.Fanout
	)
	if cfg.Notifies(config.NotifyLog) {
		direct = append(direct, notify.NewLog(logger))
	}
	if cfg.Notifies(config.NotifyRedis) {
		client, err := notify.NewRedisClient(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		publisher := notify.NewRedis(client, cfg.RedisChannel)
		if cfg.Notifies(config.NotifyOutbox) {
			relayTargets = append(relayTargets, publisher)
		} else {
			direct = append(direct, publisher)
		}
	}
	if cfg.Notifies(config.NotifyOutbox) {
		direct = append(direct, notify.NewOutbox(pool))
		if len(relayTargets) > 0 {
			relay = notify.NewRelay(pool, relayTargets)
		}
	}

	authSvc := auth.NewService(users, cfg.JWTSecret)
	sources := hiring.NewSources(records)
	agreements := agreement.NewService(store, sources, direct).
		WithLogger(logger).
		WithDirectory(authSvc).
		WithDefaults(cfg.TermDefaults).
		WithSettlementDelay(cfg.SettlementDelay).
		WithPaymentMethod(cfg.PaymentMethod)

	return &app{
		server: &Server{
			agreements: agreements,
			sources:    sources,
			auth:       authSvc,
			hiring:     hiring.NewService(records),
			logger:     logger,
		},
		relay: relay,
		close: closeAll,
	}, nil
}
