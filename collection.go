package chain

import (
	"fmt"
	"iter"
)

// Collection is a caller supplied target for ToCollection.
type Collection[E any] interface {
	Add(E)
}

// ImmutableList is a read-only list of materialized values.
type ImmutableList[E any] struct {
	items []E
}

// NewImmutableList copies items into an ImmutableList.
func NewImmutableList[E any](items ...E) ImmutableList[E] {
	return ImmutableList[E]{items: append([]E(nil), items...)}
}

// Len returns the number of items.
func (l ImmutableList[E]) Len() int { return len(l.items) }

// At returns the item at index i.
func (l ImmutableList[E]) At(i int) E { return l.items[i] }

// All iterates the items with their index.
func (l ImmutableList[E]) All() iter.Seq2[int, E] {
	return func(yield func(int, E) bool) {
		for i, v := range l.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Slice returns a copy of the items.
func (l ImmutableList[E]) Slice() []E {
	return append([]E(nil), l.items...)
}

// ToList builds one T per row, in row order.
func ToList[T any](cmd CommandBuilder, m *Mapping[T], opts ...Option) *Materializer[[]*T] {
	o := newOptions(opts)
	return &Materializer[[]*T]{
		cmd:       cmd,
		operation: fmt.Sprintf("ToList[%s]", m.name),
		columns:   func() (DesiredColumns, error) { return objectColumns(m, o) },
		read: func(r *Reader) ([]*T, error) {
			out := []*T{}
			err := eachObject(r, m, o, func(obj *T) error {
				out = append(out, obj)
				return nil
			})
			return out, err
		},
	}
}

// ToImmutableList is ToList returning an ImmutableList.
func ToImmutableList[T any](cmd CommandBuilder, m *Mapping[T], opts ...Option) *Materializer[ImmutableList[*T]] {
	list := ToList(cmd, m, opts...)
	return &Materializer[ImmutableList[*T]]{
		cmd:       cmd,
		operation: fmt.Sprintf("ToImmutableList[%s]", m.name),
		columns:   list.columns,
		read: func(r *Reader) (ImmutableList[*T], error) {
			items, err := list.read(r)
			return ImmutableList[*T]{items: items}, err
		},
	}
}

// ToCollection adds one T per row to a collection created by newCollection
// once per execution, before any row is read.
func ToCollection[T any, C Collection[*T]](cmd CommandBuilder, m *Mapping[T], newCollection func() C, opts ...Option) *Materializer[C] {
	o := newOptions(opts)
	return &Materializer[C]{
		cmd:       cmd,
		operation: fmt.Sprintf("ToCollection[%s]", m.name),
		columns:   func() (DesiredColumns, error) { return objectColumns(m, o) },
		read: func(r *Reader) (C, error) {
			c := newCollection()
			err := eachObject(r, m, o, func(obj *T) error {
				c.Add(obj)
				return nil
			})
			return c, err
		},
	}
}

// eachObject binds m to the reader's schema and calls fn with an object for
// every row.
func eachObject[T any](r *Reader, m *Mapping[T], o *options, fn func(*T) error) error {
	p, err := m.bind(r.Schema(), o)
	if err != nil {
		return err
	}
	for r.Next() {
		obj, err := p.build(r.current())
		if err != nil {
			return err
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
	return r.Err()
}
