package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/avlog/internal/checksum"
	"github.com/starford/avlog/internal/decoder"
	"github.com/starford/avlog/internal/index"
	"github.com/starford/avlog/internal/input"
	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/output"
	"github.com/starford/avlog/internal/pipeline"
	"github.com/starford/avlog/internal/storage"
	"github.com/starford/avlog/internal/watcher"
)

// converter owns the output root, the optional catalog and everything else a
// conversion run reuses between runs.
type converter struct {
	app      *application
	adapter  *decoder.Adapter
	bucketer *pipeline.Bucketer
	store    *storage.FS
	writer   *output.Writer
	catalog  index.Catalog
}

// newConverter prepares the output root. With create unset the root must
// already exist, so a mistyped path is reported instead of served empty.
func newConverter(app *application, create bool) (*converter, error) {
	cfg := app.config

	loc, err := cfg.Output.Location()
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	bucketer := pipeline.NewBucketer(loc)

	root := output.ResolveRoot(cfg.Output.Root, app.clock)
	var store *storage.FS
	if create {
		store, err = output.OpenRoot(root)
	} else {
		store, err = storage.NewFS(root)
	}
	if err != nil {
		return nil, err
	}

	c := &converter{
		app:      app,
		adapter:  decoder.NewAdapter(cfg.Decode.DecodeMode(), app.decoder),
		bucketer: bucketer,
		store:    store,
		writer:   output.NewWriter(store, bucketer, cfg.Output.AggregateName),
	}

	if cfg.Index.Enabled() {
		db, err := index.Open(cfg.Index.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		c.catalog = db
	}
	return c, nil
}

// Close releases the catalog, if open.
func (c *converter) Close() error {
	if c.catalog == nil {
		return nil
	}
	return c.catalog.Close()
}

// readCapture reads the configured input, or stdin when no path was given.
func readCapture(app *application) (string, string, error) {
	src, err := input.Open(app.input, app.stdin)
	if err != nil {
		return "", "", err
	}
	defer src.Close()

	content, format, err := input.ReadText(src)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", src.Name, err)
	}
	app.logger.Debug("capture read",
		slog.String("input", src.Name),
		slog.String("format", format),
		slog.Int("bytes", len(content)))
	return src.Name, content, nil
}

// run converts one capture and writes the output tree. Per-line failures
// are logged and counted; only output failures are returned.
func (c *converter) run(ctx context.Context, name, content string) (*models.Summary, error) {
	runID := uuid.New().String()
	logger := c.app.logger.With(slog.String("run_id", runID))

	agg, err := pipeline.New(c.adapter, c.app.config.Decode.Workers, logger).Run(ctx, content)
	if err != nil {
		return nil, err
	}

	if _, err := c.writer.Write(agg); err != nil {
		return nil, err
	}

	summary := models.Summary{
		RunID:       runID,
		Input:       name,
		OutputRoot:  c.store.Root(),
		Lines:       agg.Lines,
		Frames:      len(agg.Frames),
		Records:     len(agg.Records),
		Failures:    agg.Failures,
		Checksum:    checksum.Sum([]byte(content)),
		CompletedAt: c.app.clock.Now(),
	}

	if c.catalog != nil {
		if err := c.catalog.Replace(agg.Frames, c.bucketer, summary); err != nil {
			return nil, err
		}
	}

	logger.Info("conversion completed",
		slog.String("output_root", summary.OutputRoot),
		slog.Int("frames", summary.Frames),
		slog.Int("records", summary.Records),
		slog.Int("failures", summary.Failures))
	fmt.Fprintf(c.app.stdout, "Wrote %d records to %s\n", summary.Records, summary.OutputRoot)
	return &summary, nil
}

// convertInput reads the configured input and converts it.
func (c *converter) convertInput(ctx context.Context) (*models.Summary, error) {
	name, content, err := readCapture(c.app)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, name, content)
}

// follow re-converts the input file whenever its content changes, calling
// notify after each successful run. It blocks until ctx is done.
func (c *converter) follow(ctx context.Context, notify func(models.Summary)) error {
	path := c.app.input
	logger := c.app.logger

	last, err := checksum.File(path)
	if err != nil {
		logger.Warn("watch: initial checksum failed", slog.String("error", err.Error()))
	}

	return watcher.Watch(ctx, path, watcher.DefaultDebounce, logger, func() {
		sum, err := checksum.File(path)
		if err != nil {
			logger.Warn("watch: checksum failed", slog.String("error", err.Error()))
			return
		}
		if sum == last {
			logger.Debug("watch: input unchanged", slog.String("checksum", sum))
			return
		}
		summary, err := c.convertInput(ctx)
		if err != nil {
			logger.Error("watch: conversion failed", slog.String("error", err.Error()))
			return
		}
		last = sum
		if notify != nil {
			notify(*summary)
		}
	})
}
