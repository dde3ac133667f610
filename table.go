package chain

// ToTable buffers the whole result.
func ToTable(cmd CommandBuilder) *Materializer[*Table] {
	return &Materializer[*Table]{
		cmd:       cmd,
		operation: "ToTable",
		columns:   func() (DesiredColumns, error) { return allColumns(), nil },
		read:      func(r *Reader) (*Table, error) { return r.ReadTable() },
	}
}

// ToRows buffers the whole result as a slice of rows.
func ToRows(cmd CommandBuilder) *Materializer[[]Row] {
	return &Materializer[[]Row]{
		cmd:       cmd,
		operation: "ToRows",
		columns:   func() (DesiredColumns, error) { return allColumns(), nil },
		read: func(r *Reader) ([]Row, error) {
			out := []Row{}
			for r.Next() {
				out = append(out, r.Row())
			}
			return out, r.Err()
		},
	}
}

// ToRow reads the first row, or nil for an empty result. More than one row is
// ErrMultiRows unless DiscardExtraRows.
func ToRow(cmd CommandBuilder, opts ...Option) *Materializer[*Row] {
	o := newOptions(opts)
	return &Materializer[*Row]{
		cmd:       cmd,
		operation: "ToRow",
		columns:   func() (DesiredColumns, error) { return allColumns(), nil },
		read: func(r *Reader) (*Row, error) {
			var rows []Row
			if r.Next() {
				rows = append(rows, r.Row())
			}
			more := len(rows) > 0 && r.Next()
			if err := r.Err(); err != nil {
				return nil, err
			}
			row, ok, err := single(rows, more, false, o.row, "ToRow")
			if !ok || err != nil {
				return nil, err
			}
			return &row, nil
		},
	}
}
