package chain

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ann = []driver.Value{int64(1), "ann", int64(30), nil}
	bob = []driver.Value{int64(2), "bob", int64(41), "bobby"}
	cat = []driver.Value{int64(3), "cat", int64(25), nil}
)

func TestToObject(t *testing.T) {
	t.Run("one row", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(ann))
		p, err := ToObject(SQL(ds, selectPeople), people).Execute()
		require.NoError(t, err)
		assert.Equal(t, "ann", p.Name)
	})

	t.Run("no rows", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows())
		_, err := ToObject(SQL(ds, selectPeople), people).Execute()
		assert.ErrorIs(t, err, ErrMissingData)
	})

	t.Run("extra rows", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(ann, bob))
		_, err := ToObject(SQL(ds, selectPeople), people).Execute()
		assert.ErrorIs(t, err, ErrMultiRows)
		assert.ErrorIs(t, err, ErrUnexpectedData)
		assert.Equal(t, 0, fake.OpenRows())

		p, err := ToObject(SQL(ds, selectPeople), people, WithRowOptions(DiscardExtraRows)).ExecuteContext(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ann", p.Name)
	})
}

func TestToObjectOrNil(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectPeople, personRows())

	p, err := ToObjectOrNil(SQL(ds, selectPeople), people).Execute()
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = ToObjectOrNil(SQL(ds, selectPeople), people, WithRowOptions(PreventEmptyResults)).Execute()
	assert.ErrorIs(t, err, ErrMissingData)

	fake.On(selectPeople, personRows(bob))
	p, err = ToObjectOrNil(SQL(ds, selectPeople), people).Execute()
	require.NoError(t, err)
	assert.Equal(t, "bobby", *p.Nickname)
}

func TestToRow(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectPeople, personRows())
	row, err := ToRow(SQL(ds, selectPeople)).Execute()
	require.NoError(t, err)
	assert.Nil(t, row)

	fake.On(selectPeople, personRows(ann, bob))
	_, err = ToRow(SQL(ds, selectPeople)).Execute()
	assert.ErrorIs(t, err, ErrMultiRows)

	row, err = ToRow(SQL(ds, selectPeople), WithRowOptions(DiscardExtraRows)).Execute()
	require.NoError(t, err)
	name, _ := row.Get("name")
	assert.Equal(t, "ann", name)
}

func TestToTable(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectPeople, personRows(ann, bob, cat))

	table, err := ToTable(SQL(ds, selectPeople)).Execute()
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"id", "name", "age", "nickname"}, table.Schema().Names())
	assert.Equal(t, "cat", table.Row(2).Value(1))

	rows, err := ToRows(SQL(ds, selectPeople)).Execute()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(2), rows[1].Value(0))
}
