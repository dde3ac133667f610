package chain

import (
	"fmt"
	"sync"
)

// CommandKind tells the data source how to send the command text.
type CommandKind int

const (
	CommandText CommandKind = iota
	StoredProcedure
)

func (k CommandKind) String() string {
	if k == StoredProcedure {
		return "procedure"
	}
	return "text"
}

// State is the lifecycle state of an ExecutionToken.
type State int

const (
	StateCreated State = iota
	StatePreparing
	StatePrepared
	StateExecuting
	StateFinished
	StateErrored
	StateCanceled
)

var stateNames = [...]string{"created", "preparing", "prepared", "executing", "finished", "errored", "canceled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Done reports whether s is a terminal state.
func (s State) Done() bool {
	return s >= StateFinished
}

// ExecutedFunc is notified with the rows affected reported by the database,
// nil when the driver did not report a count. A returned error fails the
// operation after the command has run.
type ExecutedFunc func(rowsAffected *int64) error

// ExecutionToken describes one database call. It is prepared once by a
// command builder and executed once by a data source.
type ExecutionToken struct {
	operation   string
	commandText string
	args        []any
	kind        CommandKind

	mu       sync.Mutex
	state    State
	executed []ExecutedFunc
}

// NewExecutionToken creates a token in the Created state.
func NewExecutionToken(operation, commandText string, kind CommandKind, args ...any) *ExecutionToken {
	return &ExecutionToken{
		operation:   operation,
		commandText: commandText,
		kind:        kind,
		args:        args,
	}
}

// Operation is a short diagnostic name such as "ToList[Person]".
func (t *ExecutionToken) Operation() string { return t.operation }

// CommandText returns the SQL or procedure name.
func (t *ExecutionToken) CommandText() string { return t.commandText }

// Args returns a copy of the command parameters.
func (t *ExecutionToken) Args() []any { return append([]any(nil), t.args...) }

// Kind returns the command kind.
func (t *ExecutionToken) Kind() CommandKind { return t.kind }

// State returns the current lifecycle state.
func (t *ExecutionToken) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnCommandExecuted subscribes fn to the command-executed notification.
func (t *ExecutionToken) OnCommandExecuted(fn ExecutedFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executed = append(t.executed, fn)
}

func (t *ExecutionToken) String() string {
	return fmt.Sprintf("%s [%s] %s", t.operation, t.kind, t.commandText)
}

// advance moves the token from one of from to to.
func (t *ExecutionToken) advance(to State, from ...State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range from {
		if t.state == f {
			t.state = to
			return nil
		}
	}
	if t.state >= StateExecuting {
		return fmt.Errorf("%w: %s is %s", ErrTokenConsumed, t.operation, t.state)
	}
	return configErrorf("%s: cannot move token from %s to %s", t.operation, t.state, to)
}

// begin moves a prepared (or never prepared) token to Executing.
func (t *ExecutionToken) begin() error {
	return t.advance(StateExecuting, StatePrepared, StateCreated)
}

func (t *ExecutionToken) finish(to State) {
	t.mu.Lock()
	t.state = to
	t.mu.Unlock()
}

// commandExecuted runs the executed subscribers and returns the first error.
func (t *ExecutionToken) commandExecuted(rowsAffected *int64) error {
	t.mu.Lock()
	subs := append([]ExecutedFunc(nil), t.executed...)
	t.mu.Unlock()
	for _, fn := range subs {
		if err := fn(rowsAffected); err != nil {
			return err
		}
	}
	return nil
}
