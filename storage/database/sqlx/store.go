package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
)

// Store runs the repositories on a postgres database.
type Store struct {
	db *sqlx.DB
}

var (
	_ core.Transactor = (*Store)(nil)
	_ core.Pinger     = (*Store)(nil)
)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type txKey struct{}

// ext returns the transaction carried by ctx, or the database.
func (s *Store) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// maxTxAttempts bounds the runs of a transaction aborted by a serialization failure.
const maxTxAttempts = 3

// InTx runs fn in a serializable transaction, committed when fn returns nil.
// Transactions aborted by a concurrent one are run again, up to maxTxAttempts times.
// Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	return retrySerializable(ctx, maxTxAttempts, func() error {
		return s.runTx(ctx, fn)
	})
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return core.NewStorageError("beginning transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return core.NewStorageError("committing transaction", tx.Commit())
}

// retrySerializable calls run until it does not fail with a serialization failure.
// The last failure is returned as a core.StorageError.
func retrySerializable(ctx context.Context, attempts int, run func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = run(); !isSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return core.NewStorageError("transaction aborted by concurrent updates", err)
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "serialization_failure"
}

func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// get scans one row into dest. Queries use ? placeholders.
func (s *Store) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ext := s.ext(ctx)
	return sqlx.GetContext(ctx, ext, dest, ext.Rebind(query), args...)
}

// selectIn scans the rows into dest, expanding the slice arguments of IN (?) clauses.
func (s *Store) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	ext := s.ext(ctx)
	return sqlx.SelectContext(ctx, ext, dest, ext.Rebind(query), args...)
}

// exec runs the statement and returns the number of affected rows.
func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ext := s.ext(ctx)
	res, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) execIn(ctx context.Context, query string, args ...interface{}) (int64, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, query, args...)
}

func (s *Store) insert(ctx context.Context, query string, row interface{}) error {
	_, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, row)
	return err
}

// trapNoRowsErr maps the "no rows" error to notFound.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return core.NewStorageError(msg, err)
}

// uniqueViolation returns the name of the unique constraint err violates, if any.
func uniqueViolation(err error) (constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return pqErr.Constraint, true
	}
	return "", false
}

// where joins its conditions with AND.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
