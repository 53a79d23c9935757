// Package logging builds the slog logger used across convertd: a tinted
// console handler plus a JSON file handler behind one fan-out handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options describes logger construction parameters.
type Options struct {
	Level    string
	FilePath string
	// NoColor forces plain console output; otherwise color follows whether
	// stdout is a terminal.
	NoColor bool
}

// New constructs the logger. The returned closer owns the log file handle
// and should be closed on shutdown. FilePath may be empty for console-only
// logging (tests, validate-only runs).
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)

	noColor := opts.NoColor || !isatty.IsTerminal(os.Stdout.Fd())
	console := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	})

	if strings.TrimSpace(opts.FilePath) == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if dir := filepath.Dir(opts.FilePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", opts.FilePath, err)
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(newFanoutHandler(console, fileHandler)), file, nil
}

// ParseLevel maps a config log level to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
