/*
Package sqlite provides the SQLite-backed stage ledger store.

PURPOSE:
  Supplies the SQLite schema and error classification to sqlstore. The
  queries themselves are shared with store/mysql.

TIMESTAMPS:
  Stored as TEXT in traceability.TimestampLayout. The layout is fixed-width,
  so lexical ORDER BY equals chronological order.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

IN-MEMORY DATABASES:
  Every pooled connection to ":memory:" gets its own empty database, so the
  pool is capped at one connection.

USAGE:
  store, err := sqlite.New("./data/supplychain.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := traceability.NewLedger(store)

SEE ALSO:
  - store/sqlstore: Shared queries
  - traceability/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/supplychain/store/sqlstore"
	"github.com/warp/supplychain/traceability"
)

const schema = `
-- Actors
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT,
	role TEXT NOT NULL,
	created_at TEXT NOT NULL
);

-- Product directory
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	batch_code TEXT NOT NULL UNIQUE,
	description TEXT,
	created_by INTEGER NOT NULL REFERENCES users(id),
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_creator ON products(created_by);

-- Stages (append-only ledger)
CREATE TABLE IF NOT EXISTS supply_chain_stages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id),
	stage_name TEXT NOT NULL,
	location TEXT NOT NULL,
	updated_by INTEGER NOT NULL REFERENCES users(id),
	description TEXT,
	notes TEXT,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stages_product_time ON supply_chain_stages(product_id, timestamp, id);
`

// Dialect is the SQLite flavour of sqlstore.Dialect.
var Dialect = sqlstore.Dialect{
	Name:      "sqlite",
	Schema:    []string{schema},
	Serialize: true,
	TimeArg: func(t time.Time) any {
		return traceability.FormatTimestamp(t)
	},
	Classify: classify,
	ResetStatements: []string{
		`DELETE FROM supply_chain_stages`,
		`DELETE FROM products`,
		`DELETE FROM users`,
		`DELETE FROM sqlite_sequence`,
	},
}

// New opens the database at path and migrates it.
// Use ":memory:" for an in-memory database.
func New(path string) (*sqlstore.Store, error) {
	dsn := path + "?_foreign_keys=on"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store, err := sqlstore.New(db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func classify(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", traceability.ErrForeignKey, err)
	case sqlite3.ErrConstraintUnique:
		if strings.Contains(sqliteErr.Error(), "products.batch_code") {
			return fmt.Errorf("%w: %v", traceability.ErrDuplicateBatchCode, err)
		}
	}
	return err
}
