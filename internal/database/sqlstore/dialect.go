package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

// Dialect hides the differences between the supported drivers.
type Dialect struct {
	Name      string
	builder   sq.StatementBuilderType
	txOptions *sql.TxOptions
	timeArg   func(t time.Time) interface{}
}

var (
	Postgres = Dialect{
		Name:    "postgres",
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		// both window queries must see the same rows
		txOptions: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		timeArg:   func(t time.Time) interface{} { return t.UTC() },
	}

	SQLite = Dialect{
		Name:      "sqlite",
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		txOptions: nil, // sqlite read transactions are snapshots already
		timeArg:   func(t time.Time) interface{} { return t.UTC().Format(entity.DBTimeLayout) },
	}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

func (d Dialect) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, entity.ErrStorageUnavailable, err)
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
