package chain

// ToNonQuery executes the command without reading rows and returns the rows
// affected, or nil when the database does not report a count.
func ToNonQuery(cmd CommandBuilder) *Materializer[*int64] {
	return &Materializer[*int64]{
		cmd:       cmd,
		operation: "NonQuery",
		columns:   func() (DesiredColumns, error) { return DesiredColumns{Kind: NoColumns}, nil },
		affected:  func(n *int64) (*int64, error) { return n, nil },
	}
}

// ToRowsAffected is ToNonQuery for callers that require a count.
func ToRowsAffected(cmd CommandBuilder) *Materializer[int64] {
	return &Materializer[int64]{
		cmd:       cmd,
		operation: "RowsAffected",
		columns:   func() (DesiredColumns, error) { return DesiredColumns{Kind: NoColumns}, nil },
		affected: func(n *int64) (int64, error) {
			if n == nil {
				return 0, ErrRowsAffectedUnavailable
			}
			return *n, nil
		},
	}
}
