package chain

import (
	"fmt"
)

// ToObject builds a T from the single row of the result. No rows is
// ErrMissingData; more than one is ErrMultiRows unless DiscardExtraRows.
func ToObject[T any](cmd CommandBuilder, m *Mapping[T], opts ...Option) *Materializer[*T] {
	return objectMaterializer(cmd, m, "ToObject", true, opts)
}

// ToObjectOrNil is ToObject returning nil for an empty result, unless
// PreventEmptyResults is set.
func ToObjectOrNil[T any](cmd CommandBuilder, m *Mapping[T], opts ...Option) *Materializer[*T] {
	return objectMaterializer(cmd, m, "ToObjectOrNil", false, opts)
}

func objectMaterializer[T any](cmd CommandBuilder, m *Mapping[T], name string, required bool, opts []Option) *Materializer[*T] {
	o := newOptions(opts)
	op := fmt.Sprintf("%s[%s]", name, m.name)
	return &Materializer[*T]{
		cmd:       cmd,
		operation: op,
		columns:   func() (DesiredColumns, error) { return objectColumns(m, o) },
		read: func(r *Reader) (*T, error) {
			p, err := m.bind(r.Schema(), o)
			if err != nil {
				return nil, err
			}
			var items []*T
			if r.Next() {
				obj, err := p.build(r.current())
				if err != nil {
					return nil, err
				}
				items = append(items, obj)
			}
			if err := r.Err(); err != nil {
				return nil, err
			}
			more := len(items) > 0 && r.Next()
			if err := r.Err(); err != nil {
				return nil, err
			}
			obj, _, err := single(items, more, required, o.row, op)
			return obj, err
		},
	}
}
