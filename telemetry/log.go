package telemetry

import (
	"context"
	"log/slog"

	"github.com/vinovest/chain"
)

// LogListener writes execution events as structured log records. Started and
// finished events are logged at debug level, errors at warn.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a LogListener writing to logger.
func NewLogListener(logger *slog.Logger) *LogListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogListener{logger: logger}
}

// HandleExecutionEvent logs ev.
func (l *LogListener) HandleExecutionEvent(ctx context.Context, ev chain.ExecutionEvent) {
	attrs := []slog.Attr{slog.String("event", ev.Kind.String())}
	if ev.Token != nil {
		attrs = append(attrs,
			slog.String("operation", ev.Token.Operation()),
			slog.String("sql", ev.Token.CommandText()),
		)
	}
	if d := ev.Duration(); d > 0 {
		attrs = append(attrs, slog.Duration("duration", d))
	}
	if ev.RowsAffected != nil {
		attrs = append(attrs, slog.Int64("rows_affected", *ev.RowsAffected))
	}

	level := slog.LevelDebug
	if ev.Err != nil {
		attrs = append(attrs, slog.Any("error", ev.Err))
		if ev.Kind == chain.EventError {
			level = slog.LevelWarn
		}
	}
	l.logger.LogAttrs(ctx, level, "sql execution", attrs...)
}

var _ chain.Listener = (*LogListener)(nil)
