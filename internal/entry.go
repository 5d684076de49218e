// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/photoattr/internal/api"
	"github.com/starford/photoattr/internal/attrservice"
	"github.com/starford/photoattr/internal/index"
	"github.com/starford/photoattr/internal/mcpserver"
	"github.com/starford/photoattr/internal/sidecar"
	"github.com/starford/photoattr/internal/sse"
	"github.com/starford/photoattr/internal/storage"
)

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// Components bundles the catalog, index, and service shared by the server,
// the MCP server, and the one-shot commands.
type Components struct {
	Sidecars *sidecar.Store
	DB       *index.DB
	Service  *attrservice.Service
	Logger   *slog.Logger
}

// Open wires the catalog and index described by cfg. The caller must Close
// the result.
func Open(cfg *Config, logger *slog.Logger) (*Components, error) {
	fs, err := storage.NewFS(cfg.Catalog.Root, cfg.Catalog.Filter())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	store := sidecar.NewStore(fs, logger)
	return &Components{
		Sidecars: store,
		DB:       db,
		Service:  attrservice.NewService(store, db, logger),
		Logger:   logger,
	}, nil
}

// Close releases the index.
func (c *Components) Close() error {
	return c.DB.Close()
}

func (a *application) setup() (*Config, *slog.Logger, error) {
	if a.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	logger := NewLogger(a.config, a.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", a.config.App.HTTP.Address()),
		slog.String("catalog_root", a.config.Catalog.Root),
		slog.String("sqlite_path", a.config.SQLite.Path),
		slog.String("log_level", a.config.App.LogLevel.String()))
	return a.config, logger, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	c, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// Run initial sync.
	if err := c.Service.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(cfg.App.EventThrottle)
	defer broker.Close()

	apiRouter := api.NewRouter(c.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if err := c.DB.Ping(); err != nil {
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

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return index.Watch(gCtx, c.DB, c.Sidecars, logger, broker.PublishImageEvent)
	})

	// Start HTTP server.
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP protocol on stdin/stdout while the watcher keeps the
// index current. It returns when stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	c, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Service.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return index.Watch(gCtx, c.DB, c.Sidecars, logger, nil)
	})
	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server starting on stdio")
		return mcpserver.New(c.Service, app.version).ServeStdio()
	})
	return g.Wait()
}
