package chain

import (
	"context"
	"sync"
	"time"
)

// EventKind identifies a lifecycle transition of an ExecutionToken.
type EventKind int

const (
	EventPreparing EventKind = iota
	EventPrepared
	EventStarted
	EventFinished
	EventError
	EventCanceled
)

func (k EventKind) String() string {
	switch k {
	case EventPreparing:
		return "preparing"
	case EventPrepared:
		return "prepared"
	case EventStarted:
		return "started"
	case EventFinished:
		return "finished"
	case EventError:
		return "error"
	case EventCanceled:
		return "canceled"
	}
	return "unknown"
}

// ExecutionEvent is delivered to listeners on every token transition.
type ExecutionEvent struct {
	Kind         EventKind
	Token        *ExecutionToken
	StartTime    time.Time
	EndTime      time.Time // zero until the command completes
	RowsAffected *int64    // set on EventFinished when the database reported it
	Err          error     // set on EventError and EventCanceled
}

// Duration returns EndTime - StartTime, or zero while the command runs.
func (e ExecutionEvent) Duration() time.Duration {
	if e.EndTime.IsZero() {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// Listener receives execution events. Implementations must not block.
type Listener interface {
	HandleExecutionEvent(ctx context.Context, ev ExecutionEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev ExecutionEvent)

// HandleExecutionEvent calls f.
func (f ListenerFunc) HandleExecutionEvent(ctx context.Context, ev ExecutionEvent) {
	f(ctx, ev)
}

// EventBus fans events out to subscribers shared by many data sources.
// Construct one and hand it to the data sources that should publish to it.
type EventBus struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
	order     []int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[int]Listener)}
}

// Subscribe adds l and returns a function that removes it.
func (b *EventBus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.listeners[id] = l
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of subscribers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Publish delivers ev to every subscriber in subscription order.
func (b *EventBus) Publish(ctx context.Context, ev ExecutionEvent) {
	b.mu.RLock()
	ls := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		ls = append(ls, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range ls {
		l.HandleExecutionEvent(ctx, ev)
	}
}

// emitter is implemented by data sources that publish execution events.
type emitter interface {
	emit(ctx context.Context, ev ExecutionEvent)
}

// prepareToken builds a token for ds, firing the prepare transitions.
func prepareToken(ds DataSource, operation, commandText string, kind CommandKind, args ...any) *ExecutionToken {
	t := NewExecutionToken(operation, commandText, kind, args...)
	em, _ := ds.(emitter)
	_ = t.advance(StatePreparing, StateCreated)
	if em != nil {
		em.emit(context.Background(), ExecutionEvent{Kind: EventPreparing, Token: t})
	}
	_ = t.advance(StatePrepared, StatePreparing)
	if em != nil {
		em.emit(context.Background(), ExecutionEvent{Kind: EventPrepared, Token: t})
	}
	return t
}
