// File: internal/logging/logging.go
// Package logging builds the process logger.
// Author: momentics <momentics@gmail.com>

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configure New.
type Options struct {
	Level string
	// OutputFile receives a JSON copy of every entry. Empty disables it.
	OutputFile string
	// Console enables human-readable entries on stderr.
	Console bool
}

// New returns a logger teeing the console and the append-only output file,
// and a close function flushing both.
func New(opts Options) (*zap.Logger, func() error, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var (
		cores   []zapcore.Core
		closers []func() error
	)
	if opts.Console {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level))
	}
	if opts.OutputFile != "" {
		f, err := OpenAppend(opts.OutputFile)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, f.Close)
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(f), level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), func() error { return nil }, nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	closeFn := func() error {
		_ = logger.Sync()
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return logger, closeFn, nil
}

// OpenAppend opens path for appending, creating parent directories, and
// writes a session header line.
func OpenAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "# New Session: %s\n", time.Now().Format(time.RFC3339)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write log header: %w", err)
	}
	return f, nil
}
