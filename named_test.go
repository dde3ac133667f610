package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileNamed(t *testing.T) {
	tests := []struct {
		bindType int
		query    string
		want     string
		names    []string
	}{
		{QUESTION, `INSERT INTO foo (a, b) VALUES (:a, :b)`, `INSERT INTO foo (a, b) VALUES (?, ?)`, []string{"a", "b"}},
		{DOLLAR, `SELECT * FROM a WHERE first_name=:name1 AND last_name=:name2`, `SELECT * FROM a WHERE first_name=$1 AND last_name=$2`, []string{"name1", "name2"}},
		{AT, `SELECT * FROM a WHERE x = :x AND y = ':notaname'`, `SELECT * FROM a WHERE x = @p1 AND y = ':notaname'`, []string{"x"}},
		{NAMED, `SELECT :a FROM dual`, `SELECT :a FROM dual`, []string{"a"}},
		{DOLLAR, `SELECT :ä, :b`, `SELECT $1, $2`, []string{"ä", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := compileNamed(tt.query, tt.bindType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.text)
			assert.Equal(t, tt.names, got.names)
		})
	}
}

func TestBindNamed(t *testing.T) {
	q, args, err := Named(`SELECT * FROM people WHERE name = :Name AND age > :age`, map[string]any{"name": "ann", "age": 3})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM people WHERE name = ? AND age > ?`, q)
	assert.Equal(t, []any{"ann", 3}, args)

	_, _, err = Named(`SELECT :missing`, map[string]any{"a": 1, "b": 2})
	assert.EqualError(t, err, "could not find name missing in [a b]")

	_, _, err = BindNamed(DOLLAR, `SELECT :a`, 42)
	assert.Error(t, err)

	q, args, err = BindNamed(DOLLAR, `INSERT INTO t (a, b) VALUES (:a, :b)`, []map[string]any{
		{"a": 1, "b": 2},
		{"a": 3, "b": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO t (a, b) VALUES ($1, $2),($3, $4)`, q)
	assert.Equal(t, []any{1, 2, 3, 4}, args)

	_, _, err = BindNamed(QUESTION, `INSERT INTO t (a) VALUES (:a`, map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestNamedCommand(t *testing.T) {
	fake, ds := capture(t, "postgres")
	p := &Person{ID: 9, Name: "dee", Age: 50}

	n, err := ToRowsAffected(NamedSQL(ds,
		`INSERT INTO people (id, name, age, nickname) VALUES (:id, :name, :age, :nickname)`,
		NamedParams(people, p)).ExpectOneRow()).Execute()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	last := fake.LastStatement()
	assert.Equal(t, `INSERT INTO people (id, name, age, nickname) VALUES ($1, $2, $3, $4)`, last.Query)
	assert.Equal(t, []any{int64(9), "dee", int64(50), nil}, last.Args)

	_, err = ToList(NamedSQL(ds, `SELECT * FROM people WHERE id = :id`, map[string]any{}), people).Execute()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNamedCommandSpreadsInLists(t *testing.T) {
	fake, ds := capture(t, "postgres")

	_, err := ToList(NamedSQL(ds, `SELECT * FROM people WHERE id IN (:ids) AND name <> :name`,
		map[string]any{"ids": []int64{1, 2, 3}, "name": "dee"}), people).Execute()
	require.NoError(t, err)
	last := fake.LastStatement()
	assert.Equal(t, `SELECT * FROM people WHERE id IN ($1, $2, $3) AND name <> $4`, last.Query)
	assert.Equal(t, []any{int64(1), int64(2), int64(3), "dee"}, last.Args)

	_, err = ToList(NamedSQL(ds, `SELECT * FROM people WHERE id IN (:ids)`,
		map[string]any{"ids": []int64{}}), people).Execute()
	assert.ErrorIs(t, err, ErrConfiguration)
}
