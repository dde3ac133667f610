package chain

import (
	"fmt"
	"iter"
)

// KeySelector derives a dictionary key, either from the finished object or
// from a column read before the object is built.
type KeySelector[K comparable, T any] struct {
	fn     func(*T) K
	column string
}

// KeyFunc keys each object by fn(obj).
func KeyFunc[K comparable, T any](fn func(*T) K) KeySelector[K, T] {
	return KeySelector[K, T]{fn: fn}
}

// KeyColumn keys each object by the value of column. The column is added to
// the projection.
func KeyColumn[K comparable, T any](column string) KeySelector[K, T] {
	return KeySelector[K, T]{column: column}
}

// ImmutableDictionary is a read-only map that remembers insertion order.
type ImmutableDictionary[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

// Len returns the number of entries.
func (d ImmutableDictionary[K, V]) Len() int { return len(d.keys) }

// Get returns the value stored under k.
func (d ImmutableDictionary[K, V]) Get(k K) (V, bool) {
	v, ok := d.values[k]
	return v, ok
}

// Keys returns the keys in first-seen order.
func (d ImmutableDictionary[K, V]) Keys() []K {
	return append([]K(nil), d.keys...)
}

// All iterates the entries in first-seen key order.
func (d ImmutableDictionary[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range d.keys {
			if !yield(k, d.values[k]) {
				return
			}
		}
	}
}

// ToDictionary builds one T per row keyed by key. A duplicate key is a
// mapping error unless DiscardDuplicates, in which case the last row wins.
func ToDictionary[K comparable, T any](cmd CommandBuilder, m *Mapping[T], key KeySelector[K, T], opts ...Option) *Materializer[map[K]*T] {
	d := ToImmutableDictionary(cmd, m, key, opts...)
	return &Materializer[map[K]*T]{
		cmd:       cmd,
		operation: fmt.Sprintf("ToDictionary[%s]", m.name),
		columns:   d.columns,
		read: func(r *Reader) (map[K]*T, error) {
			dict, err := d.read(r)
			return dict.values, err
		},
	}
}

// ToImmutableDictionary is ToDictionary returning an ImmutableDictionary.
func ToImmutableDictionary[K comparable, T any](cmd CommandBuilder, m *Mapping[T], key KeySelector[K, T], opts ...Option) *Materializer[ImmutableDictionary[K, *T]] {
	o := newOptions(opts)
	return &Materializer[ImmutableDictionary[K, *T]]{
		cmd:       cmd,
		operation: fmt.Sprintf("ToImmutableDictionary[%s]", m.name),
		columns: func() (DesiredColumns, error) {
			if key.fn == nil && key.column == "" {
				return DesiredColumns{}, configErrorf("dictionary requires a key function or key column")
			}
			dc, err := objectColumns(m, o)
			if err != nil || key.column == "" {
				return dc, err
			}
			return withColumn(dc, key.column), nil
		},
		read: func(r *Reader) (ImmutableDictionary[K, *T], error) {
			out := ImmutableDictionary[K, *T]{values: make(map[K]*T)}
			p, err := m.bind(r.Schema(), o)
			if err != nil {
				return out, err
			}
			keyOrd := -1
			if key.column != "" {
				if keyOrd, err = columnOrdinal(r.Schema(), key.column); err != nil {
					return out, err
				}
			}
			for r.Next() {
				row := r.current()
				var k K
				if keyOrd >= 0 {
					raw := row.Value(keyOrd)
					if raw == nil {
						return out, missingDataf("NULL key in column %s at row %d", key.column, r.RowCount())
					}
					if k, err = convert[K](raw); err != nil {
						return out, annotate(err, m.name, key.column)
					}
				}
				obj, err := p.build(row)
				if err != nil {
					return out, err
				}
				if keyOrd < 0 {
					k = key.fn(obj)
				}
				if _, dup := out.values[k]; dup {
					if o.dict&DiscardDuplicates == 0 {
						return out, mappingErrorf("duplicate key %v for %s", k, m.name)
					}
				} else {
					out.keys = append(out.keys, k)
				}
				out.values[k] = obj
			}
			return out, r.Err()
		},
	}
}
