package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vinovest/chain/internal/debug"
)

// ReaderFunc consumes the rows of an executed command. The reader is closed by
// the data source after fn returns.
type ReaderFunc func(r *Reader) error

// DataSource executes prepared tokens.
//
// Execute and ExecuteContext run the command, hand its rows to fn and return
// the rows affected reported by the database, if any. A nil fn executes a
// non-query. ExecuteStream leaves the rows open; the command completes when
// the returned Reader is closed.
type DataSource interface {
	Execute(token *ExecutionToken, fn ReaderFunc) (*int64, error)
	ExecuteContext(ctx context.Context, token *ExecutionToken, fn ReaderFunc) (*int64, error)
	ExecuteStream(ctx context.Context, token *ExecutionToken) (*Reader, error)
}

// binder is implemented by data sources that know their driver's bindvar style.
type binder interface {
	DriverName() string
	Rebind(string) string
}

// queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var (
	_ DataSource = (*SQLDataSource)(nil)
	_ binder     = (*SQLDataSource)(nil)
)

type dsOptions struct {
	logger               *slog.Logger
	listeners            []Listener
	bus                  *EventBus
	suppressGlobalEvents bool
}

// DataSourceOption configures an SQLDataSource.
type DataSourceOption func(*dsOptions)

// WithLogger sets the logger used for execution logging. The default is the
// package debug logger, which is silent unless CHAIN_DEBUG is set.
func WithLogger(l *slog.Logger) DataSourceOption {
	return func(o *dsOptions) { o.logger = l }
}

// WithListener adds a listener local to the data source.
func WithListener(l Listener) DataSourceOption {
	return func(o *dsOptions) { o.listeners = append(o.listeners, l) }
}

// WithEventBus publishes the data source's events to bus as well.
func WithEventBus(bus *EventBus) DataSourceOption {
	return func(o *dsOptions) { o.bus = bus }
}

// WithSuppressGlobalEvents stops the data source from publishing to its event
// bus; local listeners still receive events.
func WithSuppressGlobalEvents(v bool) DataSourceOption {
	return func(o *dsOptions) { o.suppressGlobalEvents = v }
}

// SQLDataSource is a DataSource over database/sql. It keeps track of the
// driverName so commands can be rebound to the driver's bindvar style.
type SQLDataSource struct {
	db         *sql.DB
	driverName string
	bindType   int

	mu        sync.RWMutex
	logger    *slog.Logger
	listeners []Listener
	bus       *EventBus
	suppress  bool
}

// NewDataSource returns a data source for a pre-existing *sql.DB. The
// driverName of the original database is required for bindvar rebinding.
func NewDataSource(db *sql.DB, driverName string, opts ...DataSourceOption) *SQLDataSource {
	o := &dsOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = debug.Logger()
	}
	return &SQLDataSource{
		db:         db,
		driverName: driverName,
		bindType:   BindType(driverName),
		logger:     o.logger.With("driver", driverName),
		listeners:  o.listeners,
		bus:        o.bus,
		suppress:   o.suppressGlobalEvents,
	}
}

// Open is the same as sql.Open, but returns an *SQLDataSource instead.
func Open(driverName, dataSourceName string, opts ...DataSourceOption) (*SQLDataSource, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	return NewDataSource(db, driverName, opts...), nil
}

// Connect to a database and verify with a ping.
func Connect(ctx context.Context, driverName, dataSourceName string, opts ...DataSourceOption) (*SQLDataSource, error) {
	ds, err := Open(driverName, dataSourceName, opts...)
	if err != nil {
		return nil, err
	}
	if err := ds.db.PingContext(ctx); err != nil {
		_ = ds.db.Close()
		return nil, err
	}
	return ds, nil
}

// MustConnect connects to a database and panics on error.
func MustConnect(driverName, dataSourceName string, opts ...DataSourceOption) *SQLDataSource {
	ds, err := Connect(context.Background(), driverName, dataSourceName, opts...)
	if err != nil {
		panic(err)
	}
	return ds
}

// DB returns the underlying pool.
func (ds *SQLDataSource) DB() *sql.DB { return ds.db }

// DriverName returns the driverName passed to Open.
func (ds *SQLDataSource) DriverName() string { return ds.driverName }

// Rebind transforms a query from QUESTION to the data source's bindvar type.
func (ds *SQLDataSource) Rebind(query string) string {
	return Rebind(ds.bindType, query)
}

// Close closes the underlying pool.
func (ds *SQLDataSource) Close() error { return ds.db.Close() }

// AddListener subscribes l to this data source only.
func (ds *SQLDataSource) AddListener(l Listener) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.listeners = append(ds.listeners, l)
}

// SetSuppressGlobalEvents toggles publishing to the event bus.
func (ds *SQLDataSource) SetSuppressGlobalEvents(v bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.suppress = v
}

func (ds *SQLDataSource) emit(ctx context.Context, ev ExecutionEvent) {
	ds.mu.RLock()
	ls := append([]Listener(nil), ds.listeners...)
	bus := ds.bus
	if ds.suppress {
		bus = nil
	}
	ds.mu.RUnlock()

	for _, l := range ls {
		l.HandleExecutionEvent(ctx, ev)
	}
	if bus != nil {
		bus.Publish(ctx, ev)
	}
}

// queryer returns the transaction bound to ctx by Transact, or the pool.
func (ds *SQLDataSource) queryer(ctx context.Context) queryer {
	if tx := transactionFor(ctx, ds); tx != nil {
		return tx
	}
	return ds.db
}

// Execute runs token synchronously. Cancellation is not observed.
func (ds *SQLDataSource) Execute(token *ExecutionToken, fn ReaderFunc) (*int64, error) {
	return ds.execute(context.Background(), nil, token, fn)
}

// ExecuteContext runs token, observing ctx while the command is in flight and
// between rows.
func (ds *SQLDataSource) ExecuteContext(ctx context.Context, token *ExecutionToken, fn ReaderFunc) (*int64, error) {
	return ds.execute(ctx, ctx, token, fn)
}

// execute runs token on ctx; readerCtx, when non-nil, is checked between rows
// and used to classify failures as cancellations.
func (ds *SQLDataSource) execute(ctx, readerCtx context.Context, token *ExecutionToken, fn ReaderFunc) (*int64, error) {
	if err := token.begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	ds.started(ctx, token, start)

	var rowsAffected *int64
	err := func() error {
		q := ds.queryer(ctx)
		if fn == nil {
			res, err := q.ExecContext(ctx, token.commandText, token.args...)
			if err != nil {
				return &ExecutionError{Operation: token.operation, CommandText: token.commandText, Cause: err}
			}
			if n, err := res.RowsAffected(); err == nil {
				rowsAffected = &n
			}
			return nil
		}
		rows, err := q.QueryContext(ctx, token.commandText, token.args...)
		if err != nil {
			return &ExecutionError{Operation: token.operation, CommandText: token.commandText, Cause: err}
		}
		r, err := newReader(readerCtx, rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		err = fn(r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		return err
	}()
	return rowsAffected, ds.complete(ctx, readerCtx, token, start, rowsAffected, err)
}

// ExecuteStream runs token and returns its open reader. The command's outcome
// event fires when the reader is closed.
func (ds *SQLDataSource) ExecuteStream(ctx context.Context, token *ExecutionToken) (*Reader, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := token.begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	ds.started(ctx, token, start)

	rows, err := ds.queryer(ctx).QueryContext(ctx, token.commandText, token.args...)
	if err != nil {
		err = &ExecutionError{Operation: token.operation, CommandText: token.commandText, Cause: err}
		return nil, ds.complete(ctx, ctx, token, start, nil, err)
	}
	r, err := newReader(ctx, rows)
	if err != nil {
		_ = rows.Close()
		return nil, ds.complete(ctx, ctx, token, start, nil, err)
	}
	r.onClose = func(closeErr error) error {
		outcome := r.err
		if outcome == nil {
			outcome = closeErr
		}
		_ = ds.complete(ctx, ctx, token, start, nil, outcome)
		return closeErr
	}
	return r, nil
}

func (ds *SQLDataSource) started(ctx context.Context, token *ExecutionToken, start time.Time) {
	ds.logger.Debug("executing", "operation", token.operation, "kind", token.kind.String(), "sql", token.commandText)
	ds.emit(ctx, ExecutionEvent{Kind: EventStarted, Token: token, StartTime: start})
}

// complete fires the outcome event for token and returns the error the caller
// sees: the classified failure, or the first row-count guard failure.
func (ds *SQLDataSource) complete(ctx, cancelCtx context.Context, token *ExecutionToken, start time.Time, rowsAffected *int64, err error) error {
	end := time.Now()
	ev := ExecutionEvent{Token: token, StartTime: start, EndTime: end}
	if err != nil {
		err = classify(cancelCtx, err)
		ev.Err = err
		if errors.Is(err, ErrCanceled) {
			token.finish(StateCanceled)
			ev.Kind = EventCanceled
			ds.logger.Debug("canceled", "operation", token.operation, "duration", end.Sub(start))
		} else {
			token.finish(StateErrored)
			ev.Kind = EventError
			ds.logger.Warn("execution failed", "operation", token.operation, "sql", token.commandText, "error", err)
		}
		ds.emit(ctx, ev)
		return err
	}

	guardErr := token.commandExecuted(rowsAffected)
	token.finish(StateFinished)
	ev.Kind = EventFinished
	ev.RowsAffected = rowsAffected
	attrs := []any{"operation", token.operation, "duration", end.Sub(start)}
	if rowsAffected != nil {
		attrs = append(attrs, "rows_affected", *rowsAffected)
	}
	ds.logger.Debug("finished", attrs...)
	ds.emit(ctx, ev)
	return guardErr
}

var cancellationClassifiers struct {
	sync.RWMutex
	fns []func(error) bool
}

// RegisterCancellationClassifier registers fn to recognise driver errors that
// mean the server canceled the statement. Such errors are reported as
// ErrCanceled instead of the driver's own error.
func RegisterCancellationClassifier(fn func(err error) bool) {
	cancellationClassifiers.Lock()
	defer cancellationClassifiers.Unlock()
	cancellationClassifiers.fns = append(cancellationClassifiers.fns, fn)
}

func isDriverCancellation(err error) bool {
	cancellationClassifiers.RLock()
	defer cancellationClassifiers.RUnlock()
	for _, fn := range cancellationClassifiers.fns {
		if fn(err) {
			return true
		}
	}
	return false
}

// cancellation wraps cause as an ErrCanceled outcome.
func cancellation(cause error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// classify turns a failure that coincides with cancellation of ctx, or that
// a driver reports as a canceled statement, into a single ErrCanceled.
// A nil ctx means the caller did not ask for cancellation.
func classify(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrCanceled) {
		return err
	}
	if ctx != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cancellation(cerr)
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return cancellation(context.DeadlineExceeded)
	case errors.Is(err, context.Canceled):
		return cancellation(context.Canceled)
	case isDriverCancellation(err):
		return cancellation(context.Canceled)
	}
	return err
}
