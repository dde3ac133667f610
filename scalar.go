package chain

import (
	"fmt"
	"reflect"
)

// ToScalar reads column of the first row as V. An empty result or a NULL is
// ErrMissingData. An empty column name reads the first column.
func ToScalar[V any](cmd CommandBuilder, column string) *Materializer[V] {
	return &Materializer[V]{
		cmd:       cmd,
		operation: scalarOperation[V]("ToScalar", column),
		columns:   func() (DesiredColumns, error) { return scalarColumns(column), nil },
		read: func(r *Reader) (V, error) {
			var v V
			p, err := readScalar[V](r, column)
			if err != nil {
				return v, err
			}
			if p == nil {
				return v, missingDataf("no value returned for %s", describeColumn(column))
			}
			return *p, nil
		},
	}
}

// ToScalarOrNil is ToScalar returning nil for an empty result or a NULL.
func ToScalarOrNil[V any](cmd CommandBuilder, column string) *Materializer[*V] {
	return &Materializer[*V]{
		cmd:       cmd,
		operation: scalarOperation[V]("ToScalarOrNil", column),
		columns:   func() (DesiredColumns, error) { return scalarColumns(column), nil },
		read: func(r *Reader) (*V, error) {
			return readScalar[V](r, column)
		},
	}
}

// readScalar reads at most one row; nil means no row or NULL.
func readScalar[V any](r *Reader, column string) (*V, error) {
	ord, err := columnOrdinal(r.Schema(), column)
	if err != nil {
		return nil, err
	}
	if !r.Next() {
		return nil, r.Err()
	}
	raw := r.current().Value(ord)
	if raw == nil {
		return nil, nil
	}
	v, err := convert[V](raw)
	if err != nil {
		return nil, annotate(err, "", r.Schema().Column(ord).Name)
	}
	return &v, nil
}

// ToScalarList reads column of every row. NULLs are skipped with
// DiscardNulls, are ErrMissingData with FailOnNull, and otherwise must be
// representable by V (sql.Null[E] for example).
func ToScalarList[V any](cmd CommandBuilder, column string, opts ...Option) *Materializer[[]V] {
	o := newOptions(opts)
	return &Materializer[[]V]{
		cmd:       cmd,
		operation: scalarOperation[V]("ToScalarList", column),
		columns: func() (DesiredColumns, error) {
			if o.list&DiscardNulls != 0 && o.list&FailOnNull != 0 {
				return DesiredColumns{}, configErrorf("DiscardNulls and FailOnNull cannot be combined")
			}
			return scalarColumns(column), nil
		},
		read: func(r *Reader) ([]V, error) {
			ord, err := columnOrdinal(r.Schema(), column)
			if err != nil {
				return nil, err
			}
			name := r.Schema().Column(ord).Name
			out := []V{}
			for r.Next() {
				raw := r.current().Value(ord)
				if raw == nil {
					switch {
					case o.list&DiscardNulls != 0:
						continue
					case o.list&FailOnNull != 0:
						return nil, missingDataf("NULL in column %s at row %d", name, r.RowCount())
					}
				}
				var v V
				if err := assign(&v, raw); err != nil {
					return nil, annotate(err, "", name)
				}
				out = append(out, v)
			}
			return out, r.Err()
		},
	}
}

// ToScalarDictionary reads keyColumn and valueColumn of every row into a map
// without constructing objects. NULL keys or values are skipped with
// DiscardNulls and are ErrMissingData otherwise.
func ToScalarDictionary[K comparable, V any](cmd CommandBuilder, keyColumn, valueColumn string, opts ...Option) *Materializer[map[K]V] {
	o := newOptions(opts)
	return &Materializer[map[K]V]{
		cmd:       cmd,
		operation: fmt.Sprintf("ToScalarDictionary[%s,%s]", reflect.TypeFor[K](), reflect.TypeFor[V]()),
		columns: func() (DesiredColumns, error) {
			if o.hasConstructor() {
				return DesiredColumns{}, configErrorf("a scalar dictionary has no object to construct")
			}
			if o.includeSet || o.excludeSet {
				return DesiredColumns{}, configErrorf("a scalar dictionary reads exactly its key and value columns")
			}
			return specificColumns(keyColumn, valueColumn), nil
		},
		read: func(r *Reader) (map[K]V, error) {
			ko, err := columnOrdinal(r.Schema(), keyColumn)
			if err != nil {
				return nil, err
			}
			vo, err := columnOrdinal(r.Schema(), valueColumn)
			if err != nil {
				return nil, err
			}
			out := make(map[K]V)
			for r.Next() {
				row := r.current()
				if row.IsNull(ko) || row.IsNull(vo) {
					if o.list&DiscardNulls != 0 {
						continue
					}
					return nil, missingDataf("NULL key or value at row %d", r.RowCount())
				}
				k, err := convert[K](row.Value(ko))
				if err != nil {
					return nil, annotate(err, "", keyColumn)
				}
				v, err := convert[V](row.Value(vo))
				if err != nil {
					return nil, annotate(err, "", valueColumn)
				}
				if _, dup := out[k]; dup && o.dict&DiscardDuplicates == 0 {
					return nil, mappingErrorf("duplicate key %v", k)
				}
				out[k] = v
			}
			return out, r.Err()
		},
	}
}

func scalarOperation[V any](name, column string) string {
	return fmt.Sprintf("%s[%s](%s)", name, reflect.TypeFor[V](), describeColumn(column))
}

func describeColumn(column string) string {
	if column == "" {
		return "first column"
	}
	return column
}
