package chain

import (
	"context"
	"database/sql"
	"errors"
)

type transactionKey struct{}

type txScope struct {
	owner *SQLDataSource
	tx    *sql.Tx
	depth uint8
}

func scopeFrom(ctx context.Context) *txScope {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(transactionKey{}).(*txScope)
	return v
}

// transactionFor returns the transaction Transact bound to ctx for ds.
func transactionFor(ctx context.Context, ds *SQLDataSource) *sql.Tx {
	if s := scopeFrom(ctx); s != nil && s.owner == ds {
		return s.tx
	}
	return nil
}

// TransactionDepth returns how many Transact calls enclose ctx; zero outside a
// transaction.
func TransactionDepth(ctx context.Context) int {
	if s := scopeFrom(ctx); s != nil {
		return int(s.depth)
	}
	return 0
}

// Transact runs fn inside a transaction on ds. Commands executed against ds
// with the context handed to fn join the transaction. A nested Transact on the
// same data source reuses the outer transaction; only the outermost call
// commits, and it rolls back when fn returns an error, panics or ctx is
// canceled.
func Transact(ctx context.Context, ds *SQLDataSource, fn func(ctx context.Context) error) (err error) {
	if s := scopeFrom(ctx); s != nil && s.owner == ds {
		// already in a transaction, push down the stack
		inner := *s
		inner.depth++
		return fn(context.WithValue(ctx, transactionKey{}, &inner))
	}

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, transactionKey{}, &txScope{owner: ds, tx: tx, depth: 1})

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				err = errors.Join(err, rerr)
			}
			return
		}
		if cerr := ctx.Err(); cerr != nil {
			// context was cancelled
			_ = tx.Rollback()
			err = cancellation(cerr)
			return
		}
		err = tx.Commit()
	}()
	return fn(ctx)
}
