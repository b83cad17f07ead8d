/*
Package sqlite provides the SQLite backend for calculation storage.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Single writer at a time
  - Better crash recovery

CONNECTIONS:
  The pool is capped at one connection. An in-memory database exists per
  connection, so ":memory:" must never open a second one.

USAGE:
  store, err := sqlite.New("./data/epr.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := engine.NewCalculationLedger(store)

SEE ALSO:
  - store/sqlstore: Shared implementation and migrations
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/warp/epr-engine/store/sqlstore"
)

var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	Goose:             goose.DialectSQLite3,
	IsUniqueViolation: isUniqueConstraintError,
}

type Store struct {
	*sqlstore.Store
}

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := sqlstore.Open(context.Background(), db, Dialect)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{Store: store}, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
