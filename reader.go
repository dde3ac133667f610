package chain

import (
	"context"
	"database/sql"
	"iter"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// RowReader is the forward-only cursor a data source hands to materializers.
// *sql.Rows implements it.
type RowReader interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close() error
	Err() error
}

// columnTyper is implemented by readers that can describe their columns.
type columnTyper interface {
	ColumnTypes() ([]*sql.ColumnType, error)
}

var _ RowReader = (*sql.Rows)(nil)

// Schema is the column layout of a result set. Name lookups are
// case-insensitive; when a name repeats, the first ordinal wins.
type Schema struct {
	columns     []ColumnDescriptor
	ordinals    map[string]int
	fingerprint uint64
}

// NewSchema builds a schema from column descriptors in reader order.
func NewSchema(columns ...ColumnDescriptor) *Schema {
	s := &Schema{
		columns:  columns,
		ordinals: make(map[string]int, len(columns)),
	}
	h := xxhash.New()
	for i, c := range columns {
		key := strings.ToLower(c.Name)
		if _, ok := s.ordinals[key]; !ok {
			s.ordinals[key] = i
		}
		_, _ = h.WriteString(key)
		_, _ = h.Write([]byte{0})
	}
	s.fingerprint = h.Sum64()
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Column returns the descriptor at ordinal i.
func (s *Schema) Column(i int) ColumnDescriptor { return s.columns[i] }

// Columns returns a copy of the column descriptors.
func (s *Schema) Columns() []ColumnDescriptor {
	return append([]ColumnDescriptor(nil), s.columns...)
}

// Names returns the column names in reader order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Ordinal returns the ordinal of the named column.
func (s *Schema) Ordinal(name string) (int, bool) {
	i, ok := s.ordinals[strings.ToLower(name)]
	return i, ok
}

// Fingerprint identifies the set and order of column names.
func (s *Schema) Fingerprint() uint64 { return s.fingerprint }

// Row is one record of a result set. It is immutable.
type Row struct {
	schema *Schema
	values []any
}

// NewRow builds a row over schema. values must have one entry per column.
func NewRow(schema *Schema, values []any) Row {
	return Row{schema: schema, values: values}
}

// Schema returns the row's schema.
func (r Row) Schema() *Schema { return r.schema }

// Len returns the number of values.
func (r Row) Len() int { return len(r.values) }

// Value returns the value at ordinal i; nil means NULL.
func (r Row) Value(i int) any { return r.values[i] }

// IsNull reports whether the value at ordinal i is NULL.
func (r Row) IsNull(i int) bool { return r.values[i] == nil }

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	i, ok := r.schema.Ordinal(name)
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Values returns a copy of the row's values in column order.
func (r Row) Values() []any {
	return append([]any(nil), r.values...)
}

// Map returns the row as a column name to value map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, c := range r.schema.columns {
		if _, ok := m[c.Name]; !ok {
			m[c.Name] = r.values[i]
		}
	}
	return m
}

// Table is a buffered result set.
type Table struct {
	schema *Schema
	rows   []Row
}

// Schema returns the table's schema.
func (t *Table) Schema() *Schema { return t.schema }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the row at index i.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Rows returns the rows in reader order.
func (t *Table) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

// All iterates the rows with their index.
func (t *Table) All() iter.Seq2[int, Row] {
	return func(yield func(int, Row) bool) {
		for i, r := range t.rows {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Reader wraps a RowReader with a schema computed once and a reusable value
// buffer. A Reader is owned by a single consumer.
type Reader struct {
	rows     RowReader
	schema   *Schema
	ctx      context.Context
	values   []any
	ptrs     []any
	rowCount int
	err      error
	closed   bool
	closeErr error
	onClose  func(closeErr error) error
}

// NewReader wraps rows. The schema is read immediately.
func NewReader(rows RowReader) (*Reader, error) {
	return newReader(nil, rows)
}

func newReader(ctx context.Context, rows RowReader) (*Reader, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var types []*sql.ColumnType
	if ct, ok := rows.(columnTyper); ok {
		// drivers without type information still work with names only
		types, _ = ct.ColumnTypes()
	}
	r := &Reader{
		rows:   rows,
		schema: NewSchema(describeColumns(names, types)...),
		ctx:    ctx,
		values: make([]any, len(names)),
		ptrs:   make([]any, len(names)),
	}
	for i := range r.values {
		r.ptrs[i] = &r.values[i]
	}
	return r, nil
}

// Schema returns the result schema.
func (r *Reader) Schema() *Schema { return r.schema }

// Next advances to the next row. It returns false at the end of the result,
// on error, on cancellation and after Close; Err tells them apart.
func (r *Reader) Next() bool {
	if r.closed {
		if r.err == nil {
			r.err = ErrDisposed
		}
		return false
	}
	if r.err != nil {
		return false
	}
	if r.ctx != nil {
		if err := r.ctx.Err(); err != nil {
			r.err = cancellation(err)
			return false
		}
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		return false
	}
	if err := r.rows.Scan(r.ptrs...); err != nil {
		r.err = err
		return false
	}
	r.rowCount++
	return true
}

// Err returns the error that stopped iteration, if any.
func (r *Reader) Err() error {
	return r.err
}

// fail records err as the reason iteration stopped, unless one is recorded.
func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// RowCount returns the number of rows read so far.
func (r *Reader) RowCount() int { return r.rowCount }

// Row returns a copy of the current row.
func (r *Reader) Row() Row {
	return Row{schema: r.schema, values: append([]any(nil), r.values...)}
}

// current returns the current row without copying; it is only valid until the
// next call to Next.
func (r *Reader) current() Row {
	return Row{schema: r.schema, values: r.values}
}

// ReadTable drains the reader into a Table.
func (r *Reader) ReadTable() (*Table, error) {
	t := &Table{schema: r.schema}
	for r.Next() {
		t.rows = append(t.rows, r.Row())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Close releases the underlying rows. It is safe to call more than once;
// only the first call has effect.
func (r *Reader) Close() error {
	if r.closed {
		return r.closeErr
	}
	r.closed = true
	r.closeErr = r.rows.Close()
	if r.onClose != nil {
		r.closeErr = r.onClose(r.closeErr)
	}
	return r.closeErr
}

// Closed reports whether Close has been called.
func (r *Reader) Closed() bool { return r.closed }
