// Package postgres is the storage adapter (C11, spec.md §4.11): a thin
// sqlx wrapper providing transaction scoping and row-level locking for
// every money-touching operation, plus one repository file per aggregate
// implementing that aggregate's domain.Repository port.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DB wraps *sqlx.DB with the nested-transaction helper every repository's
// money-touching write path uses, so a service method can open its own
// transaction while still composing with a caller who already holds one.
type DB struct {
	*sqlx.DB
}

// Open connects to Postgres via lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to connect to postgres").
			Mark(ierr.ErrDatabase).Err()
	}
	return &DB{DB: db}, nil
}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx, letting repository
// methods run against either a bare connection or a transaction the
// caller opened with WithTx.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type txKey struct{}

// WithTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise. A transaction already present on ctx is reused
// as a savepoint (nested calls commit/rollback to that savepoint only),
// the same composability the teacher's service layer relies on so that
// finalize/cancel/process_payment can each open "their" transaction
// without caring whether a caller already started one (spec.md §4.11,
// §7: "the first error rolls the transaction back; partial state is
// never visible").
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok && tx != nil {
		return db.withSavepoint(ctx, tx, fn)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to begin transaction").Mark(ierr.ErrDatabase).Err()
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return ierr.WithError(err).WithHintf("rollback also failed: %v", rbErr).Mark(ierr.ErrDatabase).Err()
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return ierr.WithError(err).WithHint("failed to commit transaction").Mark(ierr.ErrDatabase).Err()
	}
	return nil
}

var savepointSeq int

func (db *DB) withSavepoint(ctx context.Context, tx *sqlx.Tx, fn func(ctx context.Context) error) error {
	savepointSeq++
	name := fmt.Sprintf("sp_%d", savepointSeq)
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return ierr.WithError(err).WithHint("failed to create savepoint").Mark(ierr.ErrDatabase).Err()
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return ierr.WithError(err).WithHintf("savepoint rollback also failed: %v", rbErr).Mark(ierr.ErrDatabase).Err()
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// q returns the querier to use for this ctx: the transaction stashed by
// WithTx if present, otherwise the bare connection (read-only list/get
// calls outside any transaction).
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok && tx != nil {
		return tx
	}
	return db.DB
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

func notFound(entity, id string) error {
	return ierr.NewError(entity + " not found").
		WithHintf("no %s with id %s", entity, id).
		Mark(ierr.ErrNotFound).Err()
}
