package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinovest/chain"
)

func finished(op string, d time.Duration, rows int64) chain.ExecutionEvent {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return chain.ExecutionEvent{
		Kind:         chain.EventFinished,
		Token:        chain.NewExecutionToken(op, "SELECT 1", chain.CommandText),
		StartTime:    start,
		EndTime:      start.Add(d),
		RowsAffected: &rows,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		config  *Config
		want    any
		wantErr bool
	}{
		{nil, Noop{}, false},
		{&Config{}, Noop{}, false},
		{&Config{Type: "noop"}, Noop{}, false},
		{&Config{Type: "log"}, &LogListener{}, false},
		{&Config{Type: "metrics"}, &Metrics{}, false},
		{&Config{Type: "statsd"}, nil, true},
	}
	for _, tt := range tests {
		l, err := New(tt.config)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.IsType(t, tt.want, l)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics([]float64{1, 0.01, 0.1})
	ctx := context.Background()

	m.HandleExecutionEvent(ctx, chain.ExecutionEvent{Kind: chain.EventStarted, Token: chain.NewExecutionToken("ToList[Person]", "", chain.CommandText)})
	m.HandleExecutionEvent(ctx, finished("ToList[Person]", 5*time.Millisecond, 0))
	m.HandleExecutionEvent(ctx, finished("ToList[Person]", 50*time.Millisecond, 0))
	m.HandleExecutionEvent(ctx, finished("RowsAffected", 2*time.Second, 3))
	m.HandleExecutionEvent(ctx, finished("RowsAffected", 0, 4))

	assert.Equal(t, int64(1), m.Count("ToList[Person]", chain.EventStarted))
	assert.Equal(t, int64(2), m.Count("ToList[Person]", chain.EventFinished))
	assert.Equal(t, int64(7), m.RowsAffected("RowsAffected"))
	assert.Equal(t, []int64{1, 1, 0, 0}, m.Histogram("ToList[Person]"))
	assert.Equal(t, []int64{1, 0, 0, 1}, m.Histogram("RowsAffected"))
	assert.Equal(t, []string{"RowsAffected", "ToList[Person]"}, m.Operations())

	m.Reset()
	assert.Empty(t, m.Operations())
	assert.Zero(t, m.Count("ToList[Person]", chain.EventFinished))
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogListener(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.HandleExecutionEvent(context.Background(), finished("ToScalar[int](n)", 3*time.Millisecond, 2))
	ev := finished("ToObject[Person]", time.Millisecond, 0)
	ev.Kind = chain.EventError
	ev.RowsAffected = nil
	ev.Err = errors.New("boom")
	l.HandleExecutionEvent(context.Background(), ev)

	out := buf.String()
	assert.Contains(t, out, `level=DEBUG msg="sql execution" event=finished operation=ToScalar[int](n)`)
	assert.Contains(t, out, "duration=3ms")
	assert.Contains(t, out, "rows_affected=2")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "error=boom")
}
