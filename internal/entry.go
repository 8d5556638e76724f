// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tasksync/internal/api"
	"github.com/starford/tasksync/internal/blocks"
	"github.com/starford/tasksync/internal/index"
	"github.com/starford/tasksync/internal/mcpserver"
	"github.com/starford/tasksync/internal/notion"
	"github.com/starford/tasksync/internal/sse"
	"github.com/starford/tasksync/internal/storage"
	"github.com/starford/tasksync/internal/syncservice"
)

// runtime holds the components shared by every command.
type runtime struct {
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	svc    *syncservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap opens storage and the snapshot index and builds the sync
// service. pub may be nil.
func bootstrap(app *application, pub syncservice.Publisher) (*runtime, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("notion_base_url", cfg.Notion.BaseURL),
		slog.Duration("sync_interval", cfg.Sync.Interval),
		slog.Bool("sync_content", cfg.Sync.SyncContent),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	clientOpts := []notion.ClientOption{notion.WithLogger(logger)}
	if app.httpClient != nil {
		clientOpts = append(clientOpts, notion.WithHTTPClient(app.httpClient))
	}
	client := notion.NewClient(cfg.Notion.ClientConfig(), clientOpts...)

	svc := syncservice.NewService(store, db, syncservice.Config{
		Remote:      client,
		Translator:  blocks.New(),
		Mapper:      cfg.Sync.Mapper(),
		SyncContent: cfg.Sync.SyncContent,
		Concurrency: cfg.Sync.Concurrency,
		Logger:      logger,
		Publisher:   pub,
	})

	return &runtime{logger: logger, store: store, db: db, svc: svc}, nil
}

// Run starts the daemon: vault watcher, scan scheduler and HTTP API.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := bootstrap(app, broker)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	logger := rt.logger

	g, gCtx := errgroup.WithContext(ctx)

	// Refresh the snapshot before watching. Notes deleted while the daemon
	// was down surface here as delete events.
	if err := index.Sync(rt.db, rt.store, logger, rt.svc.HandleIndexEvent(gCtx)); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Watch the vault; deletions reach the engine through the service.
	g.Go(func() error {
		onEvent := rt.svc.HandleIndexEvent(gCtx)
		if err := index.Watch(gCtx, rt.db, rt.store, cfg.Vault.Path, logger, onEvent); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	if cfg.Sync.Interval > 0 {
		g.Go(func() error {
			return rt.svc.RunScheduler(gCtx, cfg.Sync.Interval)
		})
	} else {
		logger.Info("scheduler: disabled")
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the signal goroutine has stopped the
// HTTP server, so the watcher and scheduler exit too.
var errShutdown = errors.New("shutdown")

// RunSync reconciles the given notes, or the whole vault when paths is
// empty, and returns. It fails if any note failed.
func RunSync(ctx context.Context, paths []string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := bootstrap(app, nil)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	if len(paths) == 0 {
		sum, err := rt.svc.SyncAll(ctx)
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return fmt.Errorf("sync: %d of %d notes failed", sum.Failed, sum.Total)
		}
		return nil
	}

	var failed int
	for _, p := range paths {
		res, err := rt.svc.SyncNote(ctx, p)
		if err != nil {
			failed++
			rt.logger.Error("sync: note failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		rt.logger.Info("sync: note reconciled",
			slog.String("path", res.Path),
			slog.String("outcome", res.Outcome.String()),
			slog.String("link", res.Link))
	}
	if failed > 0 {
		return fmt.Errorf("sync: %d of %d notes failed", failed, len(paths))
	}
	return nil
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := bootstrap(app, nil)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	if err := index.Sync(rt.db, rt.store, rt.logger, rt.svc.HandleIndexEvent(ctx)); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}
