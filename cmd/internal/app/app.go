// Package app wires the Parley server runtime: config, logging, storage,
// HTTP routes, and the realtime gateways.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"parley/cmd/internal/api"
	"parley/cmd/internal/auth/session"
	"parley/cmd/internal/chat"
	"parley/cmd/internal/realtime"
	"parley/cmd/internal/store"
	"parley/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the Parley server runtime: it owns the HTTP server wiring, the
// storage manager, and the realtime hub lifecycle.
type App struct {
	cfg Config
	log Logger

	// dbPool is nil when running on the in-memory store.
	dbPool *pgxpool.Pool

	registry *prometheus.Registry
	hub      *realtime.Hub

	api *api.Handler
	ws  *realtime.WSGateway
	sse *realtime.SSEHandler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	mgr, dbPool, err := newManager(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		closePool(dbPool)
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	clock := chat.SystemClock()
	sessions := session.NewService(sessCfg, mgr, clock)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := realtime.NewHub(log, realtime.WithMetrics(realtime.NewMetrics(registry)))

	users := chat.NewUserService(log, mgr, clock, pwCfg, sessions)
	channels := chat.NewChannelService(log, mgr, clock, hub)

	return &App{
		cfg:      cfg,
		log:      log,
		dbPool:   dbPool,
		registry: registry,
		hub:      hub,
		api:      api.NewHandler(log, users, channels),
		ws:       realtime.NewWSGateway(log, hub, users, channels),
		sse:      realtime.NewSSEHandler(log, hub, users, channels),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.registry, a.api, a.ws, a.sse)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.hub.Close()
	closePool(a.dbPool)

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newManager decides between Postgres-backed persistence and the in-memory
// dev store. The returned pool is nil in memory mode; the app owns the pool
// lifecycle either way.
func newManager(ctx context.Context, cfg Config, log Logger) (chat.Manager, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return store.NewMemory(), nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	pg, err := store.NewPostgres(pool, store.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return pg, pool, nil
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
