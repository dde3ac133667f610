package chain

import (
	"context"
)

// CommandBuilder produces execution tokens shaped by a materializer's desired
// columns.
type CommandBuilder interface {
	DataSource() DataSource
	Prepare(cs ColumnSource) (*ExecutionToken, error)
}

// operationNamer is implemented by column sources that carry a diagnostic
// operation name.
type operationNamer interface {
	Operation() string
}

func operationOf(cs ColumnSource) string {
	if n, ok := cs.(operationNamer); ok {
		return n.Operation()
	}
	return "Execute"
}

// Materializer runs a command and shapes its result as R. Materializers are
// built by the To* functions and may be executed more than once; each
// execution prepares a fresh token.
type Materializer[R any] struct {
	cmd       CommandBuilder
	operation string
	columns   func() (DesiredColumns, error)
	read      func(r *Reader) (R, error)
	affected  func(rowsAffected *int64) (R, error)
}

// Operation returns the diagnostic name used in events and logs.
func (m *Materializer[R]) Operation() string { return m.operation }

// DesiredColumns reports the projection the materializer needs. Contradictory
// options fail here, before any SQL is generated.
func (m *Materializer[R]) DesiredColumns() (DesiredColumns, error) {
	return m.columns()
}

// Execute runs the command synchronously.
func (m *Materializer[R]) Execute() (R, error) {
	return m.run(nil)
}

// ExecuteContext runs the command, stopping between rows when ctx is done.
// A failure that coincides with cancellation is reported as ErrCanceled.
func (m *Materializer[R]) ExecuteContext(ctx context.Context) (R, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return m.run(ctx)
}

func (m *Materializer[R]) run(ctx context.Context) (R, error) {
	var result R
	token, err := m.cmd.Prepare(m)
	if err != nil {
		return result, err
	}
	var fn ReaderFunc
	if m.read != nil {
		fn = func(r *Reader) error {
			var err error
			result, err = m.read(r)
			return err
		}
	}
	ds := m.cmd.DataSource()
	var rowsAffected *int64
	if ctx == nil {
		rowsAffected, err = ds.Execute(token, fn)
	} else {
		rowsAffected, err = ds.ExecuteContext(ctx, token, fn)
	}
	if err != nil {
		var zero R
		return zero, err
	}
	if m.read == nil {
		return m.affected(rowsAffected)
	}
	return result, nil
}

// scalarColumns is the projection for a materializer reading one named
// column, or the first column when name is empty.
func scalarColumns(name string) DesiredColumns {
	if name == "" {
		return allColumns()
	}
	return specificColumns(name)
}

// columnOrdinal resolves name against the reader schema; an empty name means
// the first column.
func columnOrdinal(s *Schema, name string) (int, error) {
	if name == "" {
		if s.Len() == 0 {
			return 0, mappingErrorf("result has no columns")
		}
		return 0, nil
	}
	i, ok := s.Ordinal(name)
	if !ok {
		return 0, mappingErrorf("result has no column %q", name)
	}
	return i, nil
}

// single applies the single-row rules to at most two candidates read from a
// result: more than one is an error unless DiscardExtraRows, none is an error
// when required or PreventEmptyResults is set.
func single[T any](items []T, more bool, required bool, ro RowOptions, what string) (T, bool, error) {
	var zero T
	if more && ro&DiscardExtraRows == 0 {
		return zero, false, ErrMultiRows
	}
	if len(items) == 0 {
		if required || ro&PreventEmptyResults != 0 {
			return zero, false, missingDataf("no rows returned for %s", what)
		}
		return zero, false, nil
	}
	return items[0], true, nil
}
