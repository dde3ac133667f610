package chain

import (
	"context"
	"database/sql/driver"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinovest/chain/internal/testdb"
)

type Address struct {
	Street string
	City   *string
}

type Person struct {
	ID       int64
	Name     string
	Age      int
	Nickname *string
	Home     *Address

	accepted int
}

func (p *Person) AcceptChanges() { p.accepted++ }

var addresses = NewMapping("Address", func() *Address { return new(Address) })

var people = NewMapping("Person", func() *Person { return new(Person) })

func init() {
	Field(addresses, "street", func(a *Address) *string { return &a.Street })
	NullableField(addresses, "city", func(a *Address) **string { return &a.City })

	Field(people, "id", func(p *Person) *int64 { return &p.ID })
	Field(people, "name", func(p *Person) *string { return &p.Name })
	Field(people, "age", func(p *Person) *int { return &p.Age })
	NullableField(people, "nickname", func(p *Person) **string { return &p.Nickname })
	Decompose(people, "home_", addresses, func(p *Person) **Address { return &p.Home })
	Constructor2(people, "id", "name", func(id int64, name string) *Person {
		return &Person{ID: id, Name: "ctor:" + name}
	})
}

func ptr[T any](v T) *T { return &v }

var personColumns = []testdb.Column{
	testdb.NotNull("id", "INTEGER"),
	testdb.NotNull("name", "TEXT"),
	testdb.Nullable("age", "INTEGER"),
	testdb.Nullable("nickname", "TEXT"),
}

func personRows(rows ...[]driver.Value) *testdb.Result {
	return testdb.Rows(personColumns, rows...)
}

// newFake returns a scripted database and a data source over it that uses
// `?` bindvars.
func newFake(t *testing.T, opts ...DataSourceOption) (*testdb.DB, *SQLDataSource) {
	t.Helper()
	fake := testdb.New()
	ds := NewDataSource(fake.Open(), "sqlite3", opts...)
	t.Cleanup(func() { _ = ds.Close() })
	return fake, ds
}

// recorder collects execution events.
type recorder struct {
	mu     sync.Mutex
	events []ExecutionEvent
}

func (r *recorder) HandleExecutionEvent(_ context.Context, ev ExecutionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (r *recorder) last() ExecutionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func requireNoStatements(t *testing.T, fake *testdb.DB) {
	t.Helper()
	require.Empty(t, fake.Statements(), "no statement should reach the database")
}
