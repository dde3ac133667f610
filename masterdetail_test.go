package chain

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinovest/chain/internal/testdb"
)

type Order struct {
	ID       int64
	Customer string
	Lines    []*Line
}

type Line struct {
	SKU string
	Qty int
}

var orders = NewMapping("Order", func() *Order { return new(Order) })

var lines = NewMapping("Line", func() *Line { return new(Line) })

func init() {
	Field(orders, "order_id", func(o *Order) *int64 { return &o.ID })
	Field(orders, "customer", func(o *Order) *string { return &o.Customer })
	Field(lines, "sku", func(l *Line) *string { return &l.SKU })
	Field(lines, "qty", func(l *Line) *int { return &l.Qty })
}

func orderLines(o *Order) *[]*Line { return &o.Lines }

const selectOrders = "SELECT o.order_id, o.customer, l.sku, l.qty FROM orders o JOIN lines l USING (order_id)"

var orderColumns = []testdb.Column{
	testdb.Nullable("order_id", "INTEGER"),
	testdb.NotNull("customer", "TEXT"),
	testdb.NotNull("sku", "TEXT"),
	testdb.NotNull("qty", "INTEGER"),
}

func skus(o *Order) []string {
	out := make([]string, len(o.Lines))
	for i, l := range o.Lines {
		out[i] = l.SKU
	}
	return out
}

func TestToMasterDetail(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectOrders, testdb.Rows(orderColumns,
		[]driver.Value{int64(2), "bo", "b1", int64(1)},
		[]driver.Value{int64(1), "al", "a1", int64(2)},
		[]driver.Value{int64(2), "bo", "b2", int64(3)},
		[]driver.Value{int64(3), "cy", "c1", int64(4)},
	))

	got, err := ToMasterDetail(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).Execute()
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, []string{"b1", "b2"}, skus(got[0]))
	assert.Equal(t, int64(1), got[1].ID)
	assert.Equal(t, []string{"a1"}, skus(got[1]))
	assert.Equal(t, "cy", got[2].Customer)
	assert.Equal(t, 4, got[2].Lines[0].Qty)
}

func TestToMasterDetailNullKey(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectOrders, testdb.Rows(orderColumns,
		[]driver.Value{int64(1), "al", "a1", int64(2)},
		[]driver.Value{nil, "??", "x1", int64(1)},
	))

	_, err := ToMasterDetail(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).Execute()
	assert.ErrorIs(t, err, ErrMissingData)
	_, err = ToMasterDetail(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).ExecuteContext(context.Background())
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestToMasterDetailUnsupportedKey(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectOrders, testdb.Rows(
		[]testdb.Column{testdb.Col("order_id", "REAL"), testdb.Col("customer", "TEXT"), testdb.Col("sku", "TEXT"), testdb.Col("qty", "INTEGER")},
		[]driver.Value{1.5, "al", "a1", int64(2)},
	))

	_, err := ToMasterDetail(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).Execute()
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestToMasterDetailObject(t *testing.T) {
	one := testdb.Rows(orderColumns,
		[]driver.Value{int64(1), "al", "a1", int64(2)},
		[]driver.Value{int64(1), "al", "a2", int64(5)},
	)
	two := testdb.Rows(orderColumns,
		[]driver.Value{int64(1), "al", "a1", int64(2)},
		[]driver.Value{int64(2), "bo", "b1", int64(5)},
	)

	t.Run("one master", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectOrders, one)
		o, err := ToMasterDetailObject(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).Execute()
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "a2"}, skus(o))
	})

	t.Run("two masters", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectOrders, two)
		_, err := ToMasterDetailObject(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).Execute()
		assert.ErrorIs(t, err, ErrMultiRows)

		o, err := ToMasterDetailObject(SQL(ds, selectOrders), "order_id", orders, lines, orderLines,
			WithRowOptions(DiscardExtraRows)).Execute()
		require.NoError(t, err)
		assert.Equal(t, int64(1), o.ID)
	})

	t.Run("empty", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectOrders, testdb.Rows(orderColumns))
		_, err := ToMasterDetailObject(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).Execute()
		assert.ErrorIs(t, err, ErrMissingData)

		o, err := ToMasterDetailObjectOrNil(SQL(ds, selectOrders), "order_id", orders, lines, orderLines).Execute()
		require.NoError(t, err)
		assert.Nil(t, o)

		_, err = ToMasterDetailObjectOrNil(SQL(ds, selectOrders), "order_id", orders, lines, orderLines,
			WithRowOptions(PreventEmptyResults)).Execute()
		assert.ErrorIs(t, err, ErrMissingData)
	})
}

func TestMasterDetailProjection(t *testing.T) {
	dc, err := ToMasterDetail(nil, "order_id", orders, lines, orderLines,
		IncludeColumns("customer"),
		WithDetailOptions(ExcludeColumns("qty")),
	).DesiredColumns()
	require.NoError(t, err)
	assert.Equal(t, specificColumns("customer", "sku", "order_id"), dc)

	_, err = ToMasterDetail(nil, "", orders, lines, orderLines).DesiredColumns()
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = ToMasterDetail(nil, "order_id", orders, lines, orderLines,
		WithDetailOptions(IncludeColumns("sku"), ExcludeColumns("qty"))).DesiredColumns()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func groupSizes(t *testing.T, col ColumnDescriptor, keys ...any) []int {
	t.Helper()
	schema := NewSchema(col)
	rows := make([]Row, len(keys))
	for i, k := range keys {
		rows[i] = NewRow(schema, []any{k})
	}
	groups, err := groupRows(schema, rows, 0)
	require.NoError(t, err)
	sizes := make([]int, len(groups))
	for i, g := range groups {
		sizes[i] = len(g)
	}
	return sizes
}

func TestGroupRowsByKeyKind(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	utc := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sameInstant := utc.In(paris)
	sameWall := time.Date(2024, 5, 1, 10, 0, 0, 0, paris)

	tests := []struct {
		name string
		col  ColumnDescriptor
		keys []any
		want []int
	}{
		{"int64", ColumnDescriptor{Name: "k"}, []any{int64(1), int64(2), int64(1)}, []int{2, 1}},
		{"int32", ColumnDescriptor{Name: "k"}, []any{int32(7), int32(7)}, []int{2}},
		{"uint64", ColumnDescriptor{Name: "k"}, []any{uint64(1), uint64(1 << 63), uint64(1)}, []int{2, 1}},
		{"string folds case", ColumnDescriptor{Name: "k"}, []any{"Straße", "STRASSE", "other"}, []int{2, 1}},
		{"binary keeps case", ColumnDescriptor{Name: "k", DatabaseType: "VARBINARY"}, []any{[]byte("ab"), []byte("AB"), []byte("ab")}, []int{2, 1}},
		{"binary of unknown type", ColumnDescriptor{Name: "k"}, []any{[]byte("A"), []byte("a")}, []int{1, 1}},
		{"text bytes fold case", ColumnDescriptor{Name: "k", DatabaseType: "VARCHAR"}, []any{[]byte("ab"), []byte("AB")}, []int{2}},
		{"guid text", ColumnDescriptor{Name: "k", DatabaseType: "UUID"}, []any{id.String(), id.String(), uuid.NewString()}, []int{2, 1}},
		{"guid binary", ColumnDescriptor{Name: "k", DatabaseType: "BINARY(16)"}, []any{id[:], append([]byte(nil), id[:]...)}, []int{2}},
		{"instant", ColumnDescriptor{Name: "k", DatabaseType: "TIMESTAMPTZ"}, []any{utc, sameInstant, sameWall}, []int{2, 1}},
		{"wall clock", ColumnDescriptor{Name: "k", DatabaseType: "DATETIME"}, []any{utc, sameWall, sameInstant}, []int{2, 1}},
		{"date", ColumnDescriptor{Name: "k", DatabaseType: "DATE"}, []any{utc, utc.Add(time.Hour), utc.AddDate(0, 0, 1)}, []int{2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, groupSizes(t, tt.col, tt.keys...))
		})
	}
}

func TestKeyKindOf(t *testing.T) {
	kind, err := keyKindOf(ColumnDescriptor{DatabaseType: "UNIQUEIDENTIFIER"}, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.Equal(t, keyGUID, kind)

	kind, err = keyKindOf(ColumnDescriptor{DatabaseType: "TEXT"}, []byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, keyString, kind)

	kind, err = keyKindOf(ColumnDescriptor{DatabaseType: "BLOB"}, []byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, keyBinary, kind)

	assert.Equal(t, keyInstant, timeKeyKind(""))
	assert.Equal(t, keyInstant, timeKeyKind("DATETIMEOFFSET"))
	assert.Equal(t, keyInstant, timeKeyKind("TIMESTAMP WITH TIME ZONE"))
	assert.Equal(t, keyWallClock, timeKeyKind("TIMESTAMP"))
	assert.Equal(t, keyWallClock, timeKeyKind("TIMESTAMP WITHOUT TIME ZONE"))
	assert.Equal(t, keyWallClock, timeKeyKind("SMALLDATETIME"))
	assert.Equal(t, keyDate, timeKeyKind("DATE"))

	_, err = keyKindOf(ColumnDescriptor{Name: "k"}, true)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestGroupRowsMixedKeyTypes(t *testing.T) {
	schema := NewSchema(ColumnDescriptor{Name: "k"})
	rows := []Row{NewRow(schema, []any{int64(1)}), NewRow(schema, []any{"1"})}
	_, err := groupRows(schema, rows, 0)
	assert.ErrorIs(t, err, ErrNotSupported)
}
