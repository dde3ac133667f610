// Package drivers registers the database/sql drivers chain is tested with and
// teaches chain to recognise their statement-canceled errors.
//
//	import _ "github.com/vinovest/chain/drivers"
package drivers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/vinovest/chain"
)

// Driver names as registered with database/sql.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

// mysqlQueryInterrupted is ER_QUERY_INTERRUPTED.
const mysqlQueryInterrupted = 1317

// pqQueryCanceled is SQLSTATE query_canceled.
const pqQueryCanceled = pq.ErrorCode("57014")

func init() {
	chain.RegisterCancellationClassifier(IsCanceled)
}

// IsCanceled reports whether err is a driver error meaning the server
// interrupted the statement.
func IsCanceled(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlQueryInterrupted
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqQueryCanceled
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrInterrupt
	}
	return false
}

// Supported reports whether name is one of the drivers registered here.
func Supported(name string) bool {
	switch name {
	case MySQL, Postgres, SQLite:
		return true
	}
	return false
}

// ValidateDSN checks that dsn is well formed for driver without connecting.
func ValidateDSN(driver, dsn string) error {
	if dsn == "" {
		return errors.New("empty data source name")
	}
	switch driver {
	case MySQL:
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return fmt.Errorf("mysql dsn: %w", err)
		}
	case Postgres:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if _, err := pq.ParseURL(dsn); err != nil {
				return fmt.Errorf("postgres dsn: %w", err)
			}
		}
	case SQLite:
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	return nil
}
