package internal

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger builds the diagnostic logger. With LogFormatAuto it writes
// human-readable text when w is a terminal and JSON otherwise.
func NewLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.LogLevel}

	format := cfg.LogFormat
	if format == LogFormatAuto || format == "" {
		format = LogFormatJSON
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = LogFormatText
		}
	}

	var handler slog.Handler
	if format == LogFormatText {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}
