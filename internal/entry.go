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

	"github.com/starford/avlog/internal/api"
	"github.com/starford/avlog/internal/mcpserver"
	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/recordservice"
	"github.com/starford/avlog/internal/sse"
)

// Version is reported by the CLI and the MCP server.
var Version = "dev"

var (
	errConfigRequired = errors.New("config is required")
	errWatchNeedsFile = errors.New("watch needs an input file path, stdin cannot be watched")
	errRootRequired   = errors.New("an output root is required to browse an existing tree")
)

// Convert reads one capture and writes its output tree.
func Convert(ctx context.Context, opts ...Option) (*models.Summary, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}

	name, content, err := readCapture(app)
	if err != nil {
		return nil, err
	}

	conv, err := newConverter(app, true)
	if err != nil {
		return nil, err
	}
	defer conv.Close()

	return conv.run(ctx, name, content)
}

// Watch converts the input file once and again every time it changes,
// until ctx is cancelled or SIGINT/SIGTERM arrives.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.input == "" {
		return errWatchNeedsFile
	}
	slog.SetDefault(app.logger)

	conv, err := newConverter(app, true)
	if err != nil {
		return err
	}
	defer conv.Close()

	if _, err := conv.convertInput(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return conv.follow(ctx, nil)
}

// Serve starts the browse API over the output root. With an input file it
// also converts it and follows changes, pushing SSE events per run.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	cfg := app.config
	if cfg.Output.Root == "" && app.input == "" {
		return errRootRequired
	}
	logger := app.logger
	slog.SetDefault(logger)

	conv, err := newConverter(app, app.input != "")
	if err != nil {
		return err
	}
	defer conv.Close()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Address()),
		slog.String("output_root", conv.store.Root()),
		slog.String("index_path", cfg.Index.Path),
		slog.String("watch", app.input),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc := recordservice.NewService(conv.store, conv.catalog, conv.writer.AggregateName())

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	published := func(summary models.Summary) {
		svc.SetLastRun(summary)
		broker.PublishConversion(summary)
	}

	if app.input != "" {
		summary, err := conv.convertInput(ctx)
		if err != nil {
			return err
		}
		published(*summary)
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if _, err := os.Stat(conv.store.Root()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"output root missing"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if app.input != "" {
		g.Go(func() error {
			return conv.follow(gCtx, published)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.HTTP.Address()))
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

// errShutdown cancels the errgroup so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// ServeMCP exposes the output root to MCP clients over stdio.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.config.Output.Root == "" {
		return errRootRequired
	}
	slog.SetDefault(app.logger)

	conv, err := newConverter(app, false)
	if err != nil {
		return err
	}
	defer conv.Close()

	app.logger.Info("MCP server starting", slog.String("output_root", conv.store.Root()))
	svc := recordservice.NewService(conv.store, conv.catalog, conv.writer.AggregateName())
	return mcpserver.New(svc, Version).ServeStdio()
}
