package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the shared logger writes.
type Options struct {
	Level  slog.Level
	Output string // stdout, stderr or file
	File   string
	// Rotation settings, used only when Output is "file".
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu        sync.Mutex
	once      sync.Once
	logger    *slog.Logger
	configErr error
)

// Configure initializes the shared JSON logger. Only the first call takes
// effect; if it failed, every later call returns the same error.
func Configure(opts Options) (*slog.Logger, error) {
	once.Do(func() {
		w, err := writerFor(opts)
		if err != nil {
			configErr = fmt.Errorf("failed to configure logging: %w", err)
			return
		}
		mu.Lock()
		logger = newLogger(w, opts.Level)
		mu.Unlock()
	})
	if configErr != nil {
		return nil, configErr
	}
	return Logger(), nil
}

// Logger returns the configured slog logger. Before Configure succeeds it
// returns a warn-level logger on stderr.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newLogger(os.Stderr, slog.LevelWarn)
	}
	return logger
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func writerFor(opts Options) (io.Writer, error) {
	switch strings.ToLower(opts.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if opts.File == "" {
			return nil, fmt.Errorf("log file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log output %q", opts.Output)
	}
}
