package csql

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // load database driver for postgres

	"github.com/relabs-tech/kadmin/core/logger"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// New wraps an already opened database. No connection is made.
func New(db *sql.DB, schema string) *DB {
	if len(schema) == 0 {
		schema = "public"
	}
	return &DB{DB: db, Schema: schema}
}

// OpenWithSchema opens a postgres database with a schema.
// The schema gets created if it does not exist yet.
// The password is passed separately so the data source name can be logged.
func OpenWithSchema(dataSourceName, password, schema string) (*DB, error) {
	logger.Default().Infoln("connecting to postgres database:", dataSourceName)
	if password != "" {
		dataSourceName += " password=" + password
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if len(schema) == 0 || schema == "public" {
		return New(db, "public"), nil
	}
	logger.Default().Infoln("selected database schema:", schema)
	if _, err = db.Exec(`CREATE schema IF NOT EXISTS ` + Quote(schema) + `;`); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, schema), nil
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() error {
	if db.Schema == "public" {
		return fmt.Errorf("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA IF EXISTS ` + Quote(db.Schema) + ` CASCADE;
	CREATE schema IF NOT EXISTS ` + Quote(db.Schema) + `;`)
	return err
}

// Table returns the schema qualified and quoted name of table
func (db *DB) Table(table string) string {
	return Quote(db.Schema) + "." + Quote(table)
}

// Quote quotes an identifier
func Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
