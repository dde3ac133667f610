package chain

// ExpectRows returns a guard requiring exactly n affected rows. Fewer is
// ErrMissingData, more is ErrUnexpectedData and an unreported count is
// ErrRowsAffectedUnavailable.
func ExpectRows(n int64) ExecutedFunc {
	return func(rowsAffected *int64) error {
		if rowsAffected == nil {
			return ErrRowsAffectedUnavailable
		}
		switch got := *rowsAffected; {
		case got < n:
			return missingDataf("expected %d rows affected, got %d", n, got)
		case got > n:
			return unexpectedDataf("expected %d rows affected, got %d", n, got)
		}
		return nil
	}
}

// ExpectOneRow is ExpectRows(1).
func ExpectOneRow() ExecutedFunc {
	return ExpectRows(1)
}

// guards holds the row-count checks a command builder attaches to its tokens.
type guards struct {
	checks []ExecutedFunc
}

func (g *guards) add(fn ExecutedFunc) {
	g.checks = append(g.checks, fn)
}

func (g *guards) attach(t *ExecutionToken) {
	for _, fn := range g.checks {
		t.OnCommandExecuted(fn)
	}
}
