package chain

import (
	"context"
	"fmt"
	"iter"
)

// StreamMaterializer opens a Cursor over the result instead of buffering it.
type StreamMaterializer[T any] struct {
	cmd       CommandBuilder
	mapping   *Mapping[T]
	opts      *options
	operation string
}

// ToStream returns a materializer whose Execute opens a Cursor. The cursor
// owns the reader and its connection until it is closed.
func ToStream[T any](cmd CommandBuilder, m *Mapping[T], opts ...Option) *StreamMaterializer[T] {
	return &StreamMaterializer[T]{
		cmd:       cmd,
		mapping:   m,
		opts:      newOptions(opts),
		operation: fmt.Sprintf("ToStream[%s]", m.name),
	}
}

// Operation returns the diagnostic name used in events and logs.
func (s *StreamMaterializer[T]) Operation() string { return s.operation }

// DesiredColumns reports the projection the cursor needs.
func (s *StreamMaterializer[T]) DesiredColumns() (DesiredColumns, error) {
	return objectColumns(s.mapping, s.opts)
}

// Execute opens the cursor. Cancellation is not observed.
func (s *StreamMaterializer[T]) Execute() (*Cursor[T], error) {
	return s.open(context.Background())
}

// ExecuteContext opens the cursor; ctx is observed for the cursor's lifetime.
func (s *StreamMaterializer[T]) ExecuteContext(ctx context.Context) (*Cursor[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.open(ctx)
}

func (s *StreamMaterializer[T]) open(ctx context.Context) (*Cursor[T], error) {
	token, err := s.cmd.Prepare(s)
	if err != nil {
		return nil, err
	}
	r, err := s.cmd.DataSource().ExecuteStream(ctx, token)
	if err != nil {
		return nil, err
	}
	p, err := s.mapping.bind(r.Schema(), s.opts)
	if err != nil {
		r.fail(err)
		_ = r.Close()
		return nil, err
	}
	return &Cursor[T]{r: r, plan: p}, nil
}

// Cursor is a single-pass, forward-only sequence of objects bound to an open
// reader. It must be used by one goroutine and closed when no longer needed.
//
//	cur, err := chain.ToStream(chain.SQL(ds, q), people).Execute()
//	if err != nil {
//		return err
//	}
//	defer cur.Close()
//	for cur.Next() {
//		p := cur.Current()
//	}
//	return cur.Err()
type Cursor[T any] struct {
	r       *Reader
	plan    *plan[T]
	current *T
	err     error
	closed  bool
}

// Next advances to the next object. It returns false when the result is
// exhausted, on error and after Close.
func (c *Cursor[T]) Next() bool {
	c.current = nil
	if c.closed {
		c.err = ErrDisposed
		return false
	}
	if c.err != nil || c.r.Closed() {
		return false
	}
	if !c.r.Next() {
		c.err = c.r.Err()
		c.release()
		return false
	}
	obj, err := c.plan.build(c.r.current())
	if err != nil {
		c.err = err
		c.r.fail(err)
		c.release()
		return false
	}
	c.current = obj
	return true
}

// Current returns the object read by the last successful Next.
func (c *Cursor[T]) Current() *T { return c.current }

// Err returns the error that stopped the cursor. Exhaustion is not an error.
func (c *Cursor[T]) Err() error { return c.err }

// Schema returns the result schema.
func (c *Cursor[T]) Schema() *Schema { return c.r.Schema() }

// Close releases the reader and its connection. Calling Close more than once
// is allowed; using the cursor afterwards yields ErrDisposed.
func (c *Cursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.current = nil
	return c.release()
}

// release closes the reader once; the cursor stays usable for Err.
func (c *Cursor[T]) release() error {
	err := c.r.Close()
	if err != nil && c.err == nil {
		c.err = err
	}
	return err
}

// All ranges over the remaining objects and closes the cursor when the loop
// ends. A failure is yielded once as the final pair.
func (c *Cursor[T]) All() iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		if c.closed {
			yield(nil, ErrDisposed)
			return
		}
		defer c.Close()
		for c.Next() {
			if !yield(c.current, nil) {
				return
			}
		}
		if c.err != nil {
			yield(nil, c.err)
		}
	}
}
