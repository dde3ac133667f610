// Package telemetry provides chain.Listener implementations that record
// execution events.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vinovest/chain"
)

// Type selects a telemetry listener.
type Type string

const (
	// TypeNoop discards events.
	TypeNoop Type = "noop"
	// TypeLog writes events to a slog.Logger.
	TypeLog Type = "log"
	// TypeMetrics aggregates counters and durations in memory.
	TypeMetrics Type = "metrics"
)

// Config holds telemetry configuration.
type Config struct {
	// Type is the listener type (noop, log, metrics).
	Type string

	// Logger receives records for TypeLog; nil uses slog.Default().
	Logger *slog.Logger

	// Buckets are the upper bounds, in seconds, of the duration histogram
	// kept by TypeMetrics.
	Buckets []float64
}

// New creates a listener based on configuration.
func New(config *Config) (chain.Listener, error) {
	if config == nil {
		return Noop{}, nil
	}

	switch Type(config.Type) {
	case TypeNoop, "":
		return Noop{}, nil

	case TypeLog:
		return NewLogListener(config.Logger), nil

	case TypeMetrics:
		return NewMetrics(config.Buckets), nil

	default:
		return nil, fmt.Errorf("unknown telemetry type: %s", config.Type)
	}
}

// Noop discards every event.
type Noop struct{}

// HandleExecutionEvent does nothing.
func (Noop) HandleExecutionEvent(context.Context, chain.ExecutionEvent) {}

var _ chain.Listener = Noop{}
