// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"notemv-server/internal/config"

	"github.com/rs/zerolog"
)

const filePermission = 0664

// New returns a logger writing to w. Format "console" gives human readable
// output; anything else is JSON.
func New(w io.Writer, cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open is New over stdout, or over the file named by cfg.File. The returned
// closer releases the file and is a no-op for stdout.
func Open(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermission)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = zerolog.SyncWriter(f)
		closer = f
	}

	logger, err := New(out, cfg)
	if err != nil {
		closer.Close()
		return zerolog.Nop(), nil, err
	}
	return logger, closer, nil
}
