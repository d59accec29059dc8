package csql

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, `"movie"`, Quote("movie"))
	assert.Equal(t, `"a""b"`, Quote(`a"b`))
}

func TestNew(t *testing.T) {
	// sql.Open does not connect, the wrapper must not either
	raw, err := sql.Open("postgres", "host=127.0.0.1 port=1 sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	db := New(raw, "")
	assert.Equal(t, "public", db.Schema)
	assert.Equal(t, `"public"."movie"`, db.Table("movie"))
	assert.Error(t, db.ClearSchema(), "public schema must never be dropped")

	db = New(raw, "admin")
	assert.Equal(t, `"admin"."movie"`, db.Table("movie"))
}
