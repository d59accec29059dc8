// Package csqltest opens the postgres database used by package tests.
//
// Use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker". Tests which need the database are skipped when
// POSTGRES is not set.
package csqltest

import (
	"testing"

	"github.com/joeshaw/envdecode"

	"github.com/relabs-tech/kadmin/core/csql"
)

// TestService is the environment of database tests
type TestService struct {
	Postgres         string `env:"POSTGRES,optional" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
}

// Open opens the test database with a cleared schema, or skips the test when no
// database is configured. The schema is dropped when the test finishes.
func Open(t testing.TB, schema string) *csql.DB {
	t.Helper()
	var service TestService
	if err := envdecode.Decode(&service); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		t.Fatal(err)
	}
	if service.Postgres == "" {
		t.Skip("POSTGRES is not set")
	}
	db, err := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, schema)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.ClearSchema(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Exec(`DROP SCHEMA IF EXISTS ` + csql.Quote(schema) + ` CASCADE;`)
		db.Close()
	})
	return db
}
