/*
Package sqlstore implements traceability.AdminStore on database/sql.

PURPOSE:
  One set of queries serves both SQLite (store/sqlite) and MySQL
  (store/mysql). Both drivers use '?' placeholders and support
  LastInsertId, so only the schema, the time encoding and the error
  classification differ. Those live in a Dialect.

KEY TABLES:
  users:               Actors recorded as updated_by
  products:            Product directory (batch_code UNIQUE)
  supply_chain_stages: Append-only stage ledger

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement touches supply_chain_stages, except Reset
  which wipes the whole database for demo scenarios.

REFERENTIAL INTEGRITY:
  supply_chain_stages.product_id and .updated_by are foreign keys. A stage
  for an unknown product or actor is rejected by the database and surfaces
  as traceability.ErrForeignKey inside a PersistenceError.

INDEXES:
  idx_stages_product_time: journey reads (hot path)
  idx_products_creator:    producer feeds and aggregation

CONCURRENCY:
  Dialect.Serialize guards every call with a sync.RWMutex. SQLite needs it
  (single writer); MySQL leaves concurrency to the database.

SEE ALSO:
  - traceability/store.go: Interface definitions
  - scan.go: Row decoding
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warp/supplychain/traceability"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string

	// Schema statements, executed one by one on New.
	Schema []string

	// Serialize guards every call with a mutex.
	Serialize bool

	// TimeArg converts a timestamp into a query argument.
	TimeArg func(t time.Time) any

	// Classify maps driver errors to traceability.ErrForeignKey /
	// traceability.ErrDuplicateBatchCode, or returns err unchanged.
	Classify func(err error) error

	// ResetStatements wipe all rows, children first.
	ResetStatements []string
}

// Store implements traceability.AdminStore.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
}

// New wraps db and migrates the schema.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate %s database: %w", dialect.Name, err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() string { return s.dialect.Name }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) lock() func() {
	if !s.dialect.Serialize {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if !s.dialect.Serialize {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) fail(op string, err error) error {
	if s.dialect.Classify != nil {
		err = s.dialect.Classify(err)
	}
	return &traceability.PersistenceError{Op: op, Err: err}
}

// =============================================================================
// STAGES (traceability.StageStore)
// =============================================================================

const stageColumns = `
	s.id, s.product_id, s.stage_name, s.location, s.updated_by,
	COALESCE(u.name, ''), COALESCE(s.description, ''), COALESCE(s.notes, ''), s.timestamp`

// AppendStage inserts the stage and reads it back with the actor's name.
func (s *Store) AppendStage(ctx context.Context, d traceability.StageDraft) (traceability.Stage, error) {
	unlock := s.lock()
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO supply_chain_stages
		(product_id, stage_name, location, updated_by, description, notes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ProductID, d.StageName, d.Location, d.UpdatedBy,
		nullString(d.Description), nullString(d.Notes), s.dialect.TimeArg(d.Timestamp),
	)
	if err != nil {
		return traceability.Stage{}, s.fail("insert stage", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return traceability.Stage{}, s.fail("insert stage", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT`+stageColumns+`
		FROM supply_chain_stages s
		LEFT JOIN users u ON u.id = s.updated_by
		WHERE s.id = ?`, id)
	stage, err := scanStage(row)
	if err != nil {
		return traceability.Stage{}, s.fail("read stage", err)
	}
	return stage, nil
}

// StagesByProduct returns a product's stages, oldest first.
func (s *Store) StagesByProduct(ctx context.Context, productID traceability.ProductID) ([]traceability.Stage, error) {
	unlock := s.rlock()
	defer unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+stageColumns+`
		FROM supply_chain_stages s
		LEFT JOIN users u ON u.id = s.updated_by
		WHERE s.product_id = ?
		ORDER BY s.timestamp ASC, s.id ASC`, productID)
	if err != nil {
		return nil, s.fail("query stages", err)
	}
	defer rows.Close()

	stages := []traceability.Stage{}
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, s.fail("scan stage", err)
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("query stages", err)
	}
	return stages, nil
}

// StagesByProducer returns the producer's stages, newest first.
func (s *Store) StagesByProducer(ctx context.Context, producerID traceability.UserID) ([]traceability.ProductStage, error) {
	unlock := s.rlock()
	defer unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+stageColumns+`, p.name, p.batch_code
		FROM supply_chain_stages s
		JOIN products p ON p.id = s.product_id
		LEFT JOIN users u ON u.id = s.updated_by
		WHERE p.created_by = ?
		ORDER BY s.timestamp DESC, s.id DESC`, producerID)
	if err != nil {
		return nil, s.fail("query producer stages", err)
	}
	defer rows.Close()

	stages := []traceability.ProductStage{}
	for rows.Next() {
		ps, err := scanProductStage(rows)
		if err != nil {
			return nil, s.fail("scan stage", err)
		}
		stages = append(stages, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("query producer stages", err)
	}
	return stages, nil
}

// =============================================================================
// PRODUCTS (traceability.ProductDirectory)
// =============================================================================

const productColumns = `id, name, batch_code, COALESCE(description, ''), created_by, created_at`

func (s *Store) Product(ctx context.Context, id traceability.ProductID) (*traceability.Product, error) {
	return s.queryProduct(ctx, "find product", `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (s *Store) ProductByBatchCode(ctx context.Context, batchCode string) (*traceability.Product, error) {
	return s.queryProduct(ctx, "find product by batch code", `SELECT `+productColumns+` FROM products WHERE batch_code = ?`, batchCode)
}

func (s *Store) queryProduct(ctx context.Context, op, query string, arg any) (*traceability.Product, error) {
	unlock := s.rlock()
	defer unlock()

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(op, err)
	}
	return &p, nil
}

func (s *Store) ProductsByProducer(ctx context.Context, producerID traceability.UserID) ([]traceability.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE created_by = ? ORDER BY id`, producerID)
}

func (s *Store) Products(ctx context.Context) ([]traceability.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]traceability.Product, error) {
	unlock := s.rlock()
	defer unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail("query products", err)
	}
	defer rows.Close()

	products := []traceability.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, s.fail("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("query products", err)
	}
	return products, nil
}

// SaveProduct inserts a product. batch_code must be unique.
func (s *Store) SaveProduct(ctx context.Context, p traceability.Product) (traceability.Product, error) {
	unlock := s.lock()
	defer unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (name, batch_code, description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.BatchCode, nullString(p.Description), p.CreatedBy, s.dialect.TimeArg(p.CreatedAt),
	)
	if err != nil {
		return traceability.Product{}, s.fail("insert product", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return traceability.Product{}, s.fail("insert product", err)
	}
	p.ID = traceability.ProductID(id)
	return p, nil
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u traceability.User) (traceability.User, error) {
	unlock := s.lock()
	defer unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email, role, created_at) VALUES (?, ?, ?, ?)`,
		u.Name, nullString(u.Email), string(u.Role), s.dialect.TimeArg(u.CreatedAt),
	)
	if err != nil {
		return traceability.User{}, s.fail("insert user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return traceability.User{}, s.fail("insert user", err)
	}
	u.ID = traceability.UserID(id)
	return u, nil
}

func (s *Store) User(ctx context.Context, id traceability.UserID) (*traceability.User, error) {
	unlock := s.rlock()
	defer unlock()

	var (
		u         traceability.User
		email     sql.NullString
		role      string
		createdAt dbTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &email, &role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail("find user", err)
	}
	u.Email = email.String
	u.Role = traceability.Role(role)
	u.CreatedAt = createdAt.Time
	return &u, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data. Used by demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	unlock := s.lock()
	defer unlock()

	for _, stmt := range s.dialect.ResetStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.fail("reset", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
