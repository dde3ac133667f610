package chain

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// testSchema is a set of statements run before and after a test.
type testSchema struct {
	create string
	drop   string
}

// RunWithSchema runs test against a fresh sqlite database holding schema.
func RunWithSchema(schema testSchema, t *testing.T, test func(ds *SQLDataSource, t *testing.T)) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chain.db") + "?_foreign_keys=on"
	ds, err := Connect(context.Background(), "sqlite3", dsn)
	require.NoError(t, err)
	defer func() {
		if schema.drop != "" {
			_, _ = ds.DB().Exec(schema.drop)
		}
		_ = ds.Close()
	}()

	_, err = ds.DB().Exec(schema.create)
	require.NoError(t, err)
	test(ds, t)
}
