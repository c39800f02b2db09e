// Package diag sets up the diagnostics sink. Standard output carries the
// protocol stream, so logs go to a file or to stderr, never to stdout.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup returns a logger writing to path (appending) or to stderr when path
// is empty. It also installs the logger as the slog default, which routes the
// standard log package into the same sink. The returned func closes the file.
func Setup(path, level string) (*slog.Logger, func(), error) {
	out := io.Writer(os.Stderr)
	closeFn := func() {}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("os.MkdirAll failed: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "f.Close failed: %v\n", err)
			}
		}
	}

	logger := New(out, level)
	slog.SetDefault(logger)

	return logger, closeFn, nil
}

// New builds a text logger on w.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}
