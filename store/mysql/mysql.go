// Package mysql provides the MySQL-backed stage ledger store.
//
// Timestamps are DATETIME(3) columns read with parseTime=true and Loc=UTC,
// which keeps the millisecond precision of the wire format.
package mysql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/warp/supplychain/store/sqlstore"
	"github.com/warp/supplychain/traceability"
)

// Server error numbers, see
// https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255),
		role VARCHAR(32) NOT NULL,
		created_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		batch_code VARCHAR(128) NOT NULL,
		description TEXT,
		created_by BIGINT NOT NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_products_batch_code (batch_code),
		KEY idx_products_creator (created_by),
		CONSTRAINT fk_products_creator FOREIGN KEY (created_by) REFERENCES users(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS supply_chain_stages (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		stage_name VARCHAR(255) NOT NULL,
		location VARCHAR(255) NOT NULL,
		updated_by BIGINT NOT NULL,
		description TEXT,
		notes TEXT,
		timestamp DATETIME(3) NOT NULL,
		KEY idx_stages_product_time (product_id, timestamp, id),
		CONSTRAINT fk_stages_product FOREIGN KEY (product_id) REFERENCES products(id),
		CONSTRAINT fk_stages_user FOREIGN KEY (updated_by) REFERENCES users(id)
	) ENGINE=InnoDB`,
}

// Dialect is the MySQL flavour of sqlstore.Dialect.
var Dialect = sqlstore.Dialect{
	Name:   "mysql",
	Schema: schema,
	TimeArg: func(t time.Time) any {
		return t.UTC().Truncate(time.Millisecond)
	},
	Classify: classify,
	ResetStatements: []string{
		`DELETE FROM supply_chain_stages`,
		`DELETE FROM products`,
		`DELETE FROM users`,
		`ALTER TABLE supply_chain_stages AUTO_INCREMENT = 1`,
		`ALTER TABLE products AUTO_INCREMENT = 1`,
		`ALTER TABLE users AUTO_INCREMENT = 1`,
	},
}

// Config holds connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN renders the go-sql-driver data source name.
func (c Config) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// New connects, pings and migrates.
func New(c Config) (*sqlstore.Store, error) {
	db, err := sql.Open("mysql", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mysql at %s: %w", c.Host, err)
	}

	store, err := sqlstore.New(db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func classify(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case errNoReferencedRow:
		return fmt.Errorf("%w: %v", traceability.ErrForeignKey, err)
	case errDupEntry:
		if strings.Contains(myErr.Message, "batch_code") {
			return fmt.Errorf("%w: %v", traceability.ErrDuplicateBatchCode, err)
		}
	}
	return err
}
