// Package testdb is a scripted in-memory database/sql driver for tests.
package testdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
)

// Column describes a result column.
type Column struct {
	Name         string
	DatabaseType string
	// NullableKnown reports whether the driver knows the nullability.
	NullableKnown bool
	Nullable      bool
}

// Col is a column of unknown nullability.
func Col(name, dbType string) Column {
	return Column{Name: name, DatabaseType: dbType}
}

// NotNull is a column reported as NOT NULL.
func NotNull(name, dbType string) Column {
	return Column{Name: name, DatabaseType: dbType, NullableKnown: true}
}

// Nullable is a column reported as nullable.
func Nullable(name, dbType string) Column {
	return Column{Name: name, DatabaseType: dbType, NullableKnown: true, Nullable: true}
}

// Result is the scripted response to a statement.
type Result struct {
	Columns []Column
	Rows    [][]driver.Value

	// RowsAffected is reported by Exec unless Unreported is set.
	RowsAffected int64
	Unreported   bool

	// Err fails the statement before any row is returned.
	Err error
	// RowErr fails iteration at row index FailAt.
	RowErr error
	FailAt int

	// BeforeRow runs before row i is returned, e.g. to cancel a context.
	BeforeRow func(i int)
}

// Rows builds a Result from columns and rows.
func Rows(cols []Column, rows ...[]driver.Value) *Result {
	return &Result{Columns: cols, Rows: rows}
}

// Affected builds an Exec result.
func Affected(n int64) *Result {
	return &Result{RowsAffected: n}
}

// Statement is an executed statement.
type Statement struct {
	Query string
	Args  []any
	Exec  bool
}

// HandlerFunc answers statements without a scripted result.
type HandlerFunc func(query string, args []any) (*Result, error)

// DB scripts results by statement text.
type DB struct {
	mu         sync.Mutex
	results    map[string]*Result
	handler    HandlerFunc
	statements []Statement
	openRows   int
	commits    int
	rollbacks  int
}

// New creates an empty script.
func New() *DB {
	return &DB{results: make(map[string]*Result)}
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// On scripts r as the result of query. Whitespace differences are ignored.
func (d *DB) On(query string, r *Result) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[normalize(query)] = r
	return d
}

// Handle sets the handler for unscripted statements.
func (d *DB) Handle(fn HandlerFunc) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = fn
	return d
}

// Open returns a *sql.DB backed by the script.
func (d *DB) Open() *sql.DB {
	return sql.OpenDB(&connector{db: d})
}

// Statements returns the statements executed so far.
func (d *DB) Statements() []Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Statement(nil), d.statements...)
}

// LastStatement returns the most recent statement.
func (d *DB) LastStatement() Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.statements) == 0 {
		return Statement{}
	}
	return d.statements[len(d.statements)-1]
}

// OpenRows returns the number of result sets not yet closed.
func (d *DB) OpenRows() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openRows
}

// Commits returns the number of committed transactions.
func (d *DB) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

// Rollbacks returns the number of rolled back transactions.
func (d *DB) Rollbacks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rollbacks
}

func (d *DB) lookup(query string, args []driver.NamedValue, exec bool) (*Result, error) {
	plain := make([]any, len(args))
	for i, a := range args {
		plain[i] = a.Value
	}
	d.mu.Lock()
	d.statements = append(d.statements, Statement{Query: query, Args: plain, Exec: exec})
	r, ok := d.results[normalize(query)]
	h := d.handler
	d.mu.Unlock()

	if !ok {
		if h == nil {
			return nil, fmt.Errorf("testdb: no result scripted for %q", query)
		}
		var err error
		if r, err = h(query, plain); err != nil {
			return nil, err
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r, nil
}

type connector struct {
	db *DB
}

func (c *connector) Connect(context.Context) (driver.Conn, error) { return &conn{db: c.db}, nil }
func (c *connector) Driver() driver.Driver                        { return testDriver{} }

type testDriver struct{}

func (testDriver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("testdb: use DB.Open")
}

type conn struct {
	db *DB
}

var (
	_ driver.QueryerContext = (*conn)(nil)
	_ driver.ExecerContext  = (*conn)(nil)
	_ driver.ConnBeginTx    = (*conn)(nil)
)

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("testdb: prepared statements are not supported")
}
func (c *conn) Close() error              { return nil }
func (c *conn) Begin() (driver.Tx, error) { return &tx{db: c.db}, nil }

func (c *conn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{db: c.db}, nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := c.db.lookup(query, args, false)
	if err != nil {
		return nil, err
	}
	c.db.mu.Lock()
	c.db.openRows++
	c.db.mu.Unlock()
	return &rows{ctx: ctx, db: c.db, res: r}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := c.db.lookup(query, args, true)
	if err != nil {
		return nil, err
	}
	return result{r: r}, nil
}

type result struct {
	r *Result
}

func (r result) LastInsertId() (int64, error) {
	return 0, errors.New("testdb: LastInsertId is not supported")
}

func (r result) RowsAffected() (int64, error) {
	if r.r.Unreported {
		return 0, errors.New("testdb: rows affected not reported")
	}
	return r.r.RowsAffected, nil
}

type tx struct {
	db *DB
}

func (t *tx) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.commits++
	return nil
}

func (t *tx) Rollback() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	return nil
}

type rows struct {
	ctx    context.Context
	db     *DB
	res    *Result
	i      int
	closed bool
}

var (
	_ driver.RowsColumnTypeDatabaseTypeName = (*rows)(nil)
	_ driver.RowsColumnTypeNullable         = (*rows)(nil)
	_ driver.RowsColumnTypeScanType         = (*rows)(nil)
)

func (r *rows) Columns() []string {
	names := make([]string, len(r.res.Columns))
	for i, c := range r.res.Columns {
		names[i] = c.Name
	}
	return names
}

func (r *rows) ColumnTypeDatabaseTypeName(i int) string {
	return r.res.Columns[i].DatabaseType
}

func (r *rows) ColumnTypeNullable(i int) (nullable, ok bool) {
	c := r.res.Columns[i]
	return c.Nullable, c.NullableKnown
}

func (r *rows) ColumnTypeScanType(i int) reflect.Type {
	for _, row := range r.res.Rows {
		if i < len(row) && row[i] != nil {
			return reflect.TypeOf(row[i])
		}
	}
	return reflect.TypeFor[any]()
}

func (r *rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.db.mu.Lock()
	r.db.openRows--
	r.db.mu.Unlock()
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if r.res.RowErr != nil && r.i == r.res.FailAt {
		return r.res.RowErr
	}
	if r.i >= len(r.res.Rows) {
		return io.EOF
	}
	if r.res.BeforeRow != nil {
		r.res.BeforeRow(r.i)
	}
	row := r.res.Rows[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}
