package internal

import (
	"io"
	"log/slog"
	"os"

	"github.com/starford/avlog/internal/clock"
	"github.com/starford/avlog/internal/decoder"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	clock   clock.Clock
	input   string
	stdin   *os.File
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	decoder decoder.FrameDecoder
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithClock sets the clock used to name the default output root.
func WithClock(c clock.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithInput sets the capture path. Empty means stdin.
func WithInput(path string) Option {
	return func(a *application) {
		a.input = path
	}
}

// WithStdin sets the stream read when no input path is given.
func WithStdin(f *os.File) Option {
	return func(a *application) {
		a.stdin = f
	}
}

// WithStdout sets where the run summary line is printed.
func WithStdout(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

// WithStderr sets where diagnostics are logged when no logger is given.
func WithStderr(w io.Writer) Option {
	return func(a *application) {
		a.stderr = w
	}
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithFrameDecoder replaces the Teltonika frame decoder.
func WithFrameDecoder(d decoder.FrameDecoder) Option {
	return func(a *application) {
		a.decoder = d
	}
}

// newApplication applies opts and fills in process defaults.
func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errConfigRequired
	}
	if app.clock == nil {
		app.clock = clock.System{}
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	if app.logger == nil {
		app.logger = NewLogger(app.config.App, app.stderr)
	}
	if app.decoder == nil {
		app.decoder = decoder.Teltonika{}
	}
	return app, nil
}
