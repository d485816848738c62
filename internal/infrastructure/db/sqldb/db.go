package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const maxRetries = 5

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

type txKey struct{}

// DB wraps a sqlite or postgres connection shared by the channel, swap and
// ledger repositories.
type DB struct {
	db         *sql.DB
	dialect    Dialect
	isConflict func(error) bool
}

func New(db *sql.DB, dialect Dialect, isConflict func(error) bool) *DB {
	if isConflict == nil {
		isConflict = func(error) bool { return false }
	}
	return &DB{db, dialect, isConflict}
}

// RunInTx runs fn in a transaction, retrying on conflicts. Repositories
// called with the context passed to fn join the transaction. A transaction
// already carried by ctx is reused.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	var lastErr error
	for range maxRetries {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
			//nolint:all
			tx.Rollback()

			if d.isConflict(err) {
				lastErr = err
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if d.isConflict(err) {
				lastErr = err
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	return lastErr
}

func (d *DB) Close() {
	//nolint:all
	d.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.db
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn(ctx).ExecContext(ctx, d.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn(ctx).QueryContext(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn(ctx).QueryRowContext(ctx, d.rebind(query), args...)
}

// rebind turns ? placeholders into the $n ones postgres expects.
func (d *DB) rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func configDB(config ...interface{}) (*DB, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("cannot open db: invalid config")
	}
	return db, nil
}
