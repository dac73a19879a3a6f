package postgres

import (
	"context"
	"database/sql"
	"fmt"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/store"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/jmoiron/sqlx"
)

var _ store.Transactor = (*DB)(nil)

type txKey struct{}

// Tx wraps sqlx.Tx; nested WithTx calls become savepoints on the same Tx
type Tx struct {
	*sqlx.Tx
	depth int
	ID    string
}

// GetTx retrieves a transaction from the context if it exists
func GetTx(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

func (db *DB) begin(ctx context.Context) (context.Context, *Tx, error) {
	if tx, ok := GetTx(ctx); ok {
		tx.depth++
		if _, err := tx.ExecContext(ctx, savepoint("SAVEPOINT", tx.depth)); err != nil {
			tx.depth--
			return ctx, nil, err
		}
		db.logger.Debugw("created savepoint", "tx_id", tx.ID, "depth", tx.depth)
		return ctx, tx, nil
	}

	// Serializable is not needed: the per-tenant lock and the version
	// column already order writers of one tenant.
	sqlxTx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ctx, nil, err
	}
	tx := &Tx{Tx: sqlxTx, ID: types.GenerateUUID()}
	db.logger.Debugw("started transaction", "tx_id", tx.ID)
	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

func (db *DB) commit(ctx context.Context, tx *Tx) error {
	if tx.depth > 0 {
		_, err := tx.ExecContext(ctx, savepoint("RELEASE SAVEPOINT", tx.depth))
		tx.depth--
		return err
	}
	db.logger.Debugw("committing transaction", "tx_id", tx.ID)
	return tx.Commit()
}

func (db *DB) rollback(ctx context.Context, tx *Tx) error {
	if tx.depth > 0 {
		_, err := tx.ExecContext(ctx, savepoint("ROLLBACK TO SAVEPOINT", tx.depth))
		tx.depth--
		return err
	}
	db.logger.Debugw("rolling back transaction", "tx_id", tx.ID)
	return tx.Rollback()
}

// WithTx executes fn within a transaction, or a savepoint when ctx already carries one
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	txCtx, tx, err := db.begin(ctx)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to begin transaction").
			Mark(ierr.ErrDatabase)
	}

	defer func() {
		if r := recover(); r != nil {
			db.logger.Errorw("panic in transaction", "tx_id", tx.ID, "panic", r)
			_ = db.rollback(txCtx, tx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := db.rollback(txCtx, tx); rbErr != nil {
			db.logger.Errorw("rollback failed", "tx_id", tx.ID, "error", rbErr, "cause", err)
		}
		return err
	}

	if err := db.commit(txCtx, tx); err != nil {
		return ierr.WithError(err).
			WithHint("failed to commit transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func savepoint(stmt string, depth int) string {
	return fmt.Sprintf("%s sp_%d", stmt, depth)
}
