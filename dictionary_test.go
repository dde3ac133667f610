package chain

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDictionary(t *testing.T) {
	t.Run("key function", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(ann, bob))
		got, err := ToDictionary(SQL(ds, selectPeople), people, KeyFunc(func(p *Person) string { return p.Name })).Execute()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got["bob"].ID)
	})

	t.Run("key column", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(ann, bob))
		got, err := ToDictionary(SQL(ds, selectPeople), people, KeyColumn[int, Person]("id")).Execute()
		require.NoError(t, err)
		assert.Equal(t, "ann", got[1].Name)
	})

	t.Run("duplicate key", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(ann, bob, []driver.Value{int64(1), "again", int64(1), nil}))
		_, err := ToDictionary(SQL(ds, selectPeople), people, KeyColumn[int64, Person]("id")).Execute()
		assert.ErrorIs(t, err, ErrMapping)

		dict, err := ToImmutableDictionary(SQL(ds, selectPeople), people, KeyColumn[int64, Person]("id"),
			WithDictionaryOptions(DiscardDuplicates)).Execute()
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, dict.Keys())
		p, ok := dict.Get(1)
		require.True(t, ok)
		assert.Equal(t, "again", p.Name)
	})

	t.Run("null key", func(t *testing.T) {
		fake, ds := newFake(t)
		fake.On(selectPeople, personRows(ann, []driver.Value{int64(2), "bob", int64(41), nil}))
		_, err := ToDictionary(SQL(ds, selectPeople), people, KeyColumn[string, Person]("nickname")).Execute()
		assert.ErrorIs(t, err, ErrMissingData)
	})

	t.Run("no key", func(t *testing.T) {
		fake, ds := newFake(t)
		_, err := ToDictionary(SQL(ds, selectPeople), people, KeySelector[int, Person]{}).Execute()
		assert.ErrorIs(t, err, ErrConfiguration)
		requireNoStatements(t, fake)
	})
}

func TestImmutableDictionaryOrder(t *testing.T) {
	fake, ds := newFake(t)
	fake.On(selectPeople, personRows(cat, ann, bob))

	dict, err := ToImmutableDictionary(SQL(ds, selectPeople), people, KeyFunc(func(p *Person) int64 { return p.ID })).Execute()
	require.NoError(t, err)
	assert.Equal(t, 3, dict.Len())

	var names []string
	for _, p := range dict.All() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"cat", "ann", "bob"}, names)
}

func TestDictionaryKeyColumnProjection(t *testing.T) {
	dc, err := ToDictionary(nil, people, KeyColumn[int, Person]("person_id"), IncludeColumns("name")).DesiredColumns()
	require.NoError(t, err)
	assert.Equal(t, specificColumns("name", "person_id"), dc)
}
