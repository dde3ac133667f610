// Package debug provides the library's log/slog logger.
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	// logger is the global debug logger instance
	logger *slog.Logger
	// mu protects the logger
	mu sync.RWMutex
)

func init() {
	Init(os.Getenv("CHAIN_DEBUG") != "")
}

// Init initializes the debug logger.
// If enable is true, debug logs are written to os.Stderr, otherwise they are
// discarded.
func Init(enable bool) {
	InitWriter(enable, os.Stderr)
}

// InitWriter is Init with an explicit destination.
func InitWriter(enable bool, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	level := slog.Level(slog.LevelError + 1) // higher than any actual level
	if enable {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
