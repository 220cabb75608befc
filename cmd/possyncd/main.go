// possyncd runs the offline-first POS sync core as a daemon: local durable
// queue, connectivity monitoring, background drains, and an HTTP surface
// for the POS UI.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/retailpoint/possync/internal/api"
	"github.com/retailpoint/possync/internal/config"
	"github.com/retailpoint/possync/internal/connectivity"
	"github.com/retailpoint/possync/internal/db"
	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/queue"
	"github.com/retailpoint/possync/internal/remote"
	"github.com/retailpoint/possync/internal/service"
	syncpkg "github.com/retailpoint/possync/internal/sync"
	"github.com/retailpoint/possync/internal/sync/productcache"
	"github.com/retailpoint/possync/internal/sync/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("failed to load configuration", err)
		os.Exit(1)
	}
	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local durable store. A failed open is degraded mode, not fatal:
	// the queue runs without persistence.
	var store *db.DB
	if opened, err := db.Open(cfg.DataDir); err != nil {
		logging.Warn("local store unavailable, running without persistence", map[string]interface{}{"error": err.Error()})
	} else {
		migrator := db.NewMigrator(opened.DB)
		if err := migrator.Initialize(); err != nil {
			logging.Error("failed to initialize migrations", err)
			os.Exit(1)
		}
		if err := migrator.Up(); err != nil {
			logging.Error("failed to apply migrations", err)
			os.Exit(1)
		}
		store = opened
		defer store.Close()
	}
	offlineQueue := queue.New(store)

	// Remote store
	remoteDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logging.Error("failed to open remote store connection", err)
		os.Exit(1)
	}
	defer remoteDB.Close()

	initialOnline := remoteDB.PingContext(ctx) == nil
	if initialOnline {
		if err := remote.EnsureSchema(ctx, remoteDB); err != nil {
			logging.Error("failed to ensure remote schema", err)
			os.Exit(1)
		}
	} else {
		logging.Warn("remote store unreachable at startup, starting offline")
	}
	remoteStore := remote.NewPostgresStore(remoteDB)

	// Sync core
	monitor := connectivity.New(connectivity.Config{
		InitialOnline: initialOnline,
		Probe:         remote.Ping(remoteDB),
		ProbeInterval: cfg.ProbeInterval,
	})
	engine := syncpkg.NewEngine(offlineQueue, remoteStore, monitor)
	cache := productcache.New(offlineQueue, remoteStore)
	sched := scheduler.New(engine, offlineQueue, cache, monitor, &scheduler.Config{
		SyncInterval:  cfg.SyncInterval,
		SweepInterval: cfg.SweepInterval,
	})

	svc := service.New(offlineQueue, engine, monitor, cache, remoteStore, sched)
	svc.Init(ctx)
	defer svc.Close()

	// HTTP surface
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	api.NewHandler(svc).RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logging.Info("possyncd listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("http server failed", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Info("shutting down", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("http shutdown failed", err)
	}
}
