package client

import (
	"io"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kadmin/core/access"
)

func TestTablePaths(t *testing.T) {
	client := NewWithRouter(nil)

	table := client.Table("movie")
	assert.Equal(t, "/api/tables/movie/", table.Path())
	assert.Equal(t, "/api/tables/movie/42/", table.RowPath(42))
	assert.Equal(t, "", table.query())

	filtered := table.WithFilter("name", "Star Wars").WithParameter("__order", "-id")
	assert.Equal(t, "?__order=-id&name=Star+Wars", filtered.query())
	assert.Equal(t, "", table.query(), "parameters do not leak into the original table")
}

func TestClient(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/tables/movie/", func(w http.ResponseWriter, r *http.Request) {
		auth := access.AuthorizationFromContext(r.Context())
		if !auth.HasRole(access.RoleAdmin) {
			http.Error(w, "no", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"rows": [{"id": 1, "name": "` + r.URL.Query().Get("name") + `"}]}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/tables/movie/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/tables/movie/{id}/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	movies := NewWithRouter(router).WithAdminAuthorization().WithHeader("X-Test", "yes").Table("movie")

	var rows []map[string]interface{}
	status, err := movies.WithFilter("name", "Alien").List(&rows)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alien", rows[0]["name"])
	assert.Equal(t, int64(1), ID(rows[0], "id"))

	var created map[string]interface{}
	status, err = movies.Create(map[string]interface{}{"name": "Heat"}, &created)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Heat", created["name"])

	status, err = movies.Delete(1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	status, err = NewWithRouter(router).Table("movie").List(nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "no", serr.Body)
}
