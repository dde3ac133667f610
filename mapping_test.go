package chain

import (
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinovest/chain/internal/testdb"
)

const selectPeople = "SELECT * FROM people"

var personWithHome = append(append([]testdb.Column(nil), personColumns...),
	testdb.Nullable("home_street", "TEXT"),
	testdb.Nullable("home_city", "TEXT"),
)

func TestMappingColumns(t *testing.T) {
	assert.Equal(t, "Person", people.Name())
	assert.Equal(t, []string{"id", "name", "age", "nickname", "home_street", "home_city"}, people.Columns())
	assert.True(t, people.HasColumn("HOME_STREET"))
	assert.False(t, people.HasColumn("street"))

	anon := NewMapping[Address]("", nil)
	assert.Equal(t, "chain.Address", anon.Name())
}

func TestToObjectPopulatesProperties(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectPeople, testdb.Rows(personWithHome,
		[]driver.Value{int64(1), "ann", int64(30), nil, "1 Main St", "Springfield"},
	))

	p, err := ToObject(SQL(ds, selectPeople), people).Execute()
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "ann", p.Name)
	assert.Equal(t, 30, p.Age)
	assert.Nil(t, p.Nickname)
	require.NotNil(t, p.Home)
	assert.Equal(t, "1 Main St", p.Home.Street)
	assert.Equal(t, "Springfield", *p.Home.City)
	assert.Equal(t, 1, p.accepted)
}

func TestMappingValuesRoundTrip(t *testing.T) {
	fake, ds := newFake(t)
	source := []driver.Value{int64(7), "bob", int64(41), "bobby", "2 Side St", nil}
	fake.On(selectPeople, testdb.Rows(personWithHome, source))

	p, err := ToObject(SQL(ds, selectPeople), people).Execute()
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":          int64(7),
		"name":        "bob",
		"age":         41,
		"nickname":    "bobby",
		"home_street": "2 Side St",
		"home_city":   nil,
	}, people.Values(p))
}

func TestDecompositionSkippedWithoutColumns(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectPeople, personRows([]driver.Value{int64(1), "ann", int64(30), nil}))

	p, err := ToObject(SQL(ds, selectPeople), people).Execute()
	require.NoError(t, err)
	assert.Nil(t, p.Home)
	assert.NotContains(t, people.Values(p), "home_street")
}

func TestNullIntoValueProperty(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectPeople, personRows([]driver.Value{int64(1), nil, int64(30), nil}))

	_, err := ToObject(SQL(ds, selectPeople), people).Execute()
	require.ErrorIs(t, err, ErrMapping)
	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "Person", me.Type)
	assert.Equal(t, "name", me.Column)
	assert.Equal(t, reflect.TypeFor[string](), me.To)
}

func TestConstructorSelection(t *testing.T) {
	row := []driver.Value{int64(1), "ann", int64(30), "annie"}
	byIDName := WithConstructor(reflect.TypeFor[int64](), reflect.TypeFor[string]())

	t.Run("explicit", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(row))
		p, err := ToObject(SQL(ds, selectPeople), people, byIDName).Execute()
		require.NoError(t, err)
		assert.Equal(t, "ctor:ann", p.Name)
		assert.Zero(t, p.Age)
		assert.Nil(t, p.Nickname)
		assert.Equal(t, 1, p.accepted)
	})

	t.Run("inferred", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(row))
		p, err := ToObject(SQL(ds, selectPeople), people, InferConstructor()).Execute()
		require.NoError(t, err)
		assert.Equal(t, "ctor:ann", p.Name)
	})

	t.Run("constructor then properties", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(row))
		p, err := ToObject(SQL(ds, selectPeople), people, byIDName, PopulateProperties()).Execute()
		require.NoError(t, err)
		// the property setter runs after the constructor
		assert.Equal(t, "ann", p.Name)
		assert.Equal(t, 30, p.Age)
		assert.Equal(t, "annie", *p.Nickname)
	})

	t.Run("no matching signature", func(t *testing.T) {
		fake, ds := newFake(t)
		_, err := ToObject(SQL(ds, selectPeople), people, WithConstructor(reflect.TypeFor[string]())).Execute()
		assert.ErrorIs(t, err, ErrMapping)
		assert.Contains(t, err.Error(), "(string)")
		requireNoStatements(t, fake)
	})

	t.Run("parameter without column", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, testdb.Rows([]testdb.Column{testdb.Col("id", "INTEGER")}, []driver.Value{int64(1)}))
		_, err := ToObject(SQL(ds, selectPeople), people, byIDName).Execute()
		assert.ErrorIs(t, err, ErrMapping)
		assert.Contains(t, err.Error(), `parameter "name"`)
	})

	t.Run("argument conversion", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows([]driver.Value{"x", "ann", int64(1), nil}))
		_, err := ToObject(SQL(ds, selectPeople), people, byIDName).Execute()
		var me *MappingError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, "id", me.Column)
	})
}

func TestConstructorInferenceNeedsExactlyOne(t *testing.T) {
	type Pair struct{ A, B int64 }
	pairs := NewMapping[Pair]("Pair", nil)
	Constructor1(pairs, "a", func(a int64) *Pair { return &Pair{A: a} })
	Constructor2(pairs, "a", "b", func(a, b int64) *Pair { return &Pair{A: a, B: b} })

	fake, ds := newFake(t)
	_, err := ToList(SQL(ds, "SELECT a, b FROM pairs"), pairs, InferConstructor()).Execute()
	assert.ErrorIs(t, err, ErrMapping)

	// no zero-argument constructor either
	_, err = ToList(SQL(ds, "SELECT a, b FROM pairs"), pairs).Execute()
	assert.ErrorIs(t, err, ErrMapping)
	requireNoStatements(t, fake)

	fake.On("SELECT a, b FROM pairs", testdb.Rows(
		[]testdb.Column{testdb.Col("a", "INTEGER"), testdb.Col("b", "INTEGER")},
		[]driver.Value{int64(1), int64(2)},
	))
	got, err := ToList(SQL(ds, "SELECT a, b FROM pairs"), pairs,
		WithConstructor(reflect.TypeFor[int64](), reflect.TypeFor[int64]())).Execute()
	require.NoError(t, err)
	assert.Equal(t, []*Pair{{A: 1, B: 2}}, got)
}

func TestConstructorReturningNil(t *testing.T) {
	type Thing struct{ ID int64 }
	things := NewMapping[Thing]("Thing", nil)
	Constructor1(things, "id", func(int64) *Thing { return nil })

	fake, ds := newFake(t)
	fake.On("SELECT id FROM things", testdb.Rows([]testdb.Column{testdb.Col("id", "INTEGER")}, []driver.Value{int64(1)}))
	_, err := ToList(SQL(ds, "SELECT id FROM things"), things, InferConstructor()).Execute()
	assert.ErrorIs(t, err, ErrMapping)
}

func TestDecomposeRequiresZeroArgConstructor(t *testing.T) {
	type Inner struct{ V string }
	type Outer struct {
		ID    int64
		Inner *Inner
	}
	inner := NewMapping[Inner]("Inner", nil)
	Field(inner, "v", func(i *Inner) *string { return &i.V })
	outer := NewMapping("Outer", func() *Outer { return new(Outer) })
	Field(outer, "id", func(o *Outer) *int64 { return &o.ID })
	Decompose(outer, "in_", inner, func(o *Outer) **Inner { return &o.Inner })

	fake, ds := newFake(t)
	fake.On("SELECT", testdb.Rows(
		[]testdb.Column{testdb.Col("id", "INTEGER"), testdb.Col("in_v", "TEXT")},
		[]driver.Value{int64(1), "x"},
	))
	_, err := ToObject(SQL(ds, "SELECT"), outer).Execute()
	assert.ErrorIs(t, err, ErrMapping)
}

func TestPlanCache(t *testing.T) {
	schema := NewSchema(ColumnDescriptor{Name: "id"}, ColumnDescriptor{Name: "name"})
	same := NewSchema(ColumnDescriptor{Name: "ID"}, ColumnDescriptor{Name: "NAME"})
	other := NewSchema(ColumnDescriptor{Name: "id"})

	m := NewMapping("Person", func() *Person { return new(Person) })
	Field(m, "id", func(p *Person) *int64 { return &p.ID })
	Field(m, "name", func(p *Person) *string { return &p.Name })

	p1, err := m.bind(schema, newOptions(nil))
	require.NoError(t, err)
	p2, err := m.bind(same, newOptions(nil))
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	p3, err := m.bind(other, newOptions(nil))
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)

	// registering a field invalidates compiled plans
	Field(m, "age", func(p *Person) *int { return &p.Age })
	p4, err := m.bind(schema, newOptions(nil))
	require.NoError(t, err)
	assert.NotSame(t, p1, p4)

	m.SetPlanCacheSize(1)
	_, err = m.bind(other, newOptions(nil))
	require.NoError(t, err)
	p5, err := m.bind(schema, newOptions(nil))
	require.NoError(t, err)
	assert.NotSame(t, p4, p5)
}

func TestResizePlanCaches(t *testing.T) {
	before := DefaultPlanCacheSize()
	t.Cleanup(func() { ResizePlanCaches(before) })

	existing := NewMapping("Person", func() *Person { return new(Person) })
	assert.Equal(t, before, existing.PlanCacheSize())

	ResizePlanCaches(3)
	assert.Equal(t, 3, existing.PlanCacheSize())
	assert.Equal(t, 3, people.PlanCacheSize())
	assert.Equal(t, 3, NewMapping[Person]("Person", nil).PlanCacheSize())

	ResizePlanCaches(0)
	assert.Equal(t, 1, existing.PlanCacheSize())
}
