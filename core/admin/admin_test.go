package admin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/client"
	"github.com/relabs-tech/kadmin/core/csql"
	"github.com/relabs-tech/kadmin/core/media"
	"github.com/relabs-tech/kadmin/core/model"
	"github.com/relabs-tech/kadmin/core/ratelimit"
)

var testSecret = []byte("a secret of exactly thirty two b")

// offlineDB returns a database handle which never connects. It serves all routes
// which do not touch the database.
func offlineDB(t *testing.T) *csql.DB {
	t.Helper()
	db, err := sql.Open("postgres", "host=localhost port=1 sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return csql.New(db, "")
}

func newTestAdmin(t *testing.T, bb *Builder) (*Admin, client.Client) {
	t.Helper()
	if bb.DB == nil {
		bb.DB = offlineDB(t)
	}
	if bb.Router == nil {
		bb.Router = mux.NewRouter()
	}
	if bb.AuthMiddleware == nil && bb.SessionSecret == nil {
		bb.SessionSecret = testSecret
	}
	a, err := New(bb)
	require.NoError(t, err)
	return a, client.NewWithRouter(bb.Router).WithAdminAuthorization()
}

// do sends a request and returns the status and the body
func do(t *testing.T, c client.Client, method, path, body string) (int, []byte) {
	t.Helper()
	var header map[string]string
	if body != "" {
		header = map[string]string{"Content-Type": "application/json"}
	}
	res, resBody, err := c.Do(method, path, header, strings.NewReader(body))
	require.NoError(t, err)
	return res.StatusCode, resBody
}

func detail(t *testing.T, body []byte) string {
	t.Helper()
	var response struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(body, &response), string(body))
	return response.Detail
}

func tableConfigNames(tables []*TableConfig) []string {
	names := make([]string, len(tables))
	for i, tc := range tables {
		names[i] = tc.Table().Name()
	}
	return names
}

func TestNew_Validation(t *testing.T) {
	movie := movieTable(t)

	_, err := New(&Builder{Router: mux.NewRouter(), SessionSecret: testSecret, PlainTables: []*model.Table{movie}})
	assert.True(t, isConfigError(err), "missing database")

	_, err = New(&Builder{DB: offlineDB(t), SessionSecret: testSecret})
	assert.True(t, isConfigError(err), "missing router")

	_, err = New(&Builder{DB: offlineDB(t), Router: mux.NewRouter()})
	assert.True(t, isConfigError(err), "missing session secret")

	_, err = New(&Builder{
		DB:            offlineDB(t),
		Router:        mux.NewRouter(),
		SessionSecret: testSecret,
		PlainTables:   []*model.Table{movie},
		Tables:        []*TableConfig{MustNewTableConfig(movie)},
	})
	assert.True(t, isConfigError(err), "duplicate table")

	broken, err := model.ParseSchema([]byte(`{"tables": [{"table": "movie", "columns": [{"name": "director", "references": "director"}]}]}`))
	require.NoError(t, err)
	_, err = New(&Builder{DB: offlineDB(t), Router: mux.NewRouter(), SessionSecret: testSecret, PlainTables: broken.Tables()})
	assert.True(t, errors.Is(err, model.ErrUnknownTable))
}

func TestNew_DuplicateMediaLocation(t *testing.T) {
	s := movieSchema(t)
	movie, _ := s.Table("movie")
	director, _ := s.Table("director")
	poster, _ := movie.Column("poster")
	country, _ := director.Column("country")

	folder := t.TempDir()
	posters, err := media.NewLocal(poster, folder, media.Options{})
	require.NoError(t, err)
	flags, err := media.NewLocal(country, folder, media.Options{})
	require.NoError(t, err)

	_, err = New(&Builder{
		DB:            offlineDB(t),
		Router:        mux.NewRouter(),
		SessionSecret: testSecret,
		Tables: []*TableConfig{
			MustNewTableConfig(movie, WithMediaStorage(posters)),
			MustNewTableConfig(director, WithMediaStorage(flags)),
		},
	})
	assert.True(t, isConfigError(err))
}

func TestNew_AutoIncludeRelated(t *testing.T) {
	s := movieSchema(t)
	movie, _ := s.Table("movie")
	director, _ := s.Table("director")

	a, _ := newTestAdmin(t, &Builder{
		Tables:      []*TableConfig{MustNewTableConfig(director, WithMenuGroup("People"))},
		PlainTables: []*model.Table{movie},
	})
	assert.Equal(t, []string{"director", "movie", "studio"}, tableConfigNames(a.Tables()))
	tc, ok := a.Table("director")
	require.True(t, ok)
	assert.Equal(t, "People", tc.MenuGroup(), "explicit configurations are kept")

	a, _ = newTestAdmin(t, &Builder{PlainTables: []*model.Table{movie}, NoAutoIncludeRelated: true})
	assert.Equal(t, []string{"movie"}, tableConfigNames(a.Tables()))

	a, _ = newTestAdmin(t, &Builder{PlainTables: []*model.Table{movie}, IncludeAuthTables: true})
	assert.Equal(t, []string{"admin_session", "admin_user", "director", "movie", "studio"}, tableConfigNames(a.Tables()))
}

func TestTableRoutes(t *testing.T) {
	s := movieSchema(t)
	movie, _ := s.Table("movie")
	director, _ := s.Table("director")
	_, c := newTestAdmin(t, &Builder{
		Tables:       []*TableConfig{MustNewTableConfig(director, WithMenuGroup("People"))},
		PlainTables:  []*model.Table{movie},
		SidebarLinks: []SidebarLink{{Name: "Docs", URL: "https://example.com/docs"}},
	})

	var names []string
	_, err := c.RawGet("/api/tables/", &names)
	require.NoError(t, err)
	assert.Equal(t, []string{"director", "movie", "studio"}, names)

	var grouped groupedNames
	_, err = c.RawGet("/api/tables/grouped/", &grouped)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"People": {"director"}}, grouped.Grouped)
	assert.Equal(t, []string{"movie", "studio"}, grouped.Ungrouped)

	var links []SidebarLink
	_, err = c.RawGet("/api/links/", &links)
	require.NoError(t, err)
	assert.Equal(t, []SidebarLink{{Name: "Docs", URL: "https://example.com/docs"}}, links)

	var user map[string]string
	_, err = c.WithAuthorization(&access.Authorization{Identity: "bob", UserID: 7, Roles: []string{access.RoleAdmin}}).
		RawGet("/api/user/", &user)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"username": "bob", "user_id": "7"}, user)

	var version map[string]string
	_, err = c.RawGet("/api/version/", &version)
	require.NoError(t, err)
	assert.Equal(t, Version, version["version"])

	// without authorization
	anonymous := c.WithAuthorization(nil)
	status, body := do(t, anonymous, http.MethodGet, "/api/tables/", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"Auth failed"}`, string(body))

	// authorized, but not an admin
	status, _ = do(t, c.WithAuthorization(&access.Authorization{Identity: "guest"}), http.MethodGet, "/api/tables/", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPublicRoutes(t *testing.T) {
	_, c := newTestAdmin(t, &Builder{PlainTables: []*model.Table{movieTable(t)}, SiteName: "Movie Admin"})
	anonymous := c.WithAuthorization(nil)

	var meta map[string]string
	_, err := anonymous.RawGet("/public/meta/", &meta)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"kadmin_version": Version, "site_name": "Movie Admin"}, meta)

	var list translationListResponse
	_, err = anonymous.RawGet("/public/translations/", &list)
	require.NoError(t, err)
	assert.Equal(t, "auto", list.DefaultLanguageCode)
	assert.Equal(t, []translationListItem{
		{LanguageCode: "de", LanguageName: "Deutsch"},
		{LanguageCode: "en", LanguageName: "English"},
	}, list.Translations)

	var translation Translation
	_, err = anonymous.RawGet("/public/translations/DE/", &translation)
	require.NoError(t, err)
	assert.Equal(t, "de", translation.LanguageCode)
	assert.Equal(t, "Speichern", translation.Translations["Save"])

	status, body := do(t, anonymous, http.MethodGet, "/public/translations/xx/", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Translation not found", detail(t, body))

	res, page, err := anonymous.Do(http.MethodGet, "/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(page), "<title>Movie Admin</title>")

	// safe requests receive the csrf cookie
	found := false
	for _, cookie := range res.Cookies() {
		found = found || cookie.Name == "csrftoken"
	}
	assert.False(t, found, "the index is not csrf protected")
	res, _, err = anonymous.Do(http.MethodGet, "/public/meta/", nil, nil)
	require.NoError(t, err)
	for _, cookie := range res.Cookies() {
		found = found || cookie.Name == "csrftoken"
	}
	assert.True(t, found)
}

func TestCustomTranslations(t *testing.T) {
	_, c := newTestAdmin(t, &Builder{
		PlainTables:         []*model.Table{movieTable(t)},
		DefaultLanguageCode: "fr",
		Translations:        []Translation{{LanguageCode: "fr", LanguageName: "Français", Translations: map[string]string{"Save": "Enregistrer"}}},
	})
	var list translationListResponse
	_, err := c.RawGet("/public/translations/", &list)
	require.NoError(t, err)
	assert.Equal(t, "fr", list.DefaultLanguageCode)
	assert.Equal(t, []translationListItem{{LanguageCode: "fr", LanguageName: "Français"}}, list.Translations)

	status, _ := do(t, c, http.MethodGet, "/public/translations/en/", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReadOnly(t *testing.T) {
	_, c := newTestAdmin(t, &Builder{PlainTables: []*model.Table{movieTable(t)}, ReadOnly: true})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		path := "/api/tables/movie/1/"
		if method == http.MethodPost {
			path = "/api/tables/movie/"
		}
		status, body := do(t, c, method, path, `{"name": "Star Wars"}`)
		assert.Equal(t, http.StatusMethodNotAllowed, status, method)
		assert.Equal(t, "Running in read-only mode.", detail(t, body))
	}

	status, _ := do(t, c, http.MethodPost, "/api/change-password/", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, _ = c.PostMultipart("/api/media/", map[string]string{"table_name": "movie", "column_name": "poster"}, "poster.png", []byte("png"), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, body := do(t, c, http.MethodPost, "/api/media/generate-file-url/",
		`{"table_name": "movie", "column_name": "poster", "file_key": "a-b.png"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "Running in read-only mode.", detail(t, body))
}

func TestReadOnly_BeforeValidators(t *testing.T) {
	teapot := func(r *http.Request) error {
		return &HTTPError{Status: http.StatusTeapot, Msg: "validated"}
	}
	_, c := newTestAdmin(t, &Builder{
		Tables: []*TableConfig{MustNewTableConfig(movieTable(t), WithValidators(Validators{
			PostSingle:   []Validator{teapot},
			PutSingle:    []Validator{teapot},
			PatchSingle:  []Validator{teapot},
			DeleteSingle: []Validator{teapot},
		}))},
		ReadOnly: true,
	})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		path := "/api/tables/movie/1/"
		if method == http.MethodPost {
			path = "/api/tables/movie/"
		}
		status, body := do(t, c, method, path, `{"name": "Star Wars"}`)
		assert.Equal(t, http.StatusMethodNotAllowed, status, method)
		assert.Equal(t, "Running in read-only mode.", detail(t, body))
	}
}

func TestSuperuserValidator(t *testing.T) {
	_, c := newTestAdmin(t, &Builder{PlainTables: []*model.Table{movieTable(t)}, IncludeAuthTables: true})

	for _, table := range []string{"admin_user", "admin_session"} {
		status, body := do(t, c, http.MethodPost, "/api/tables/"+table+"/", `{"username": "eve"}`)
		assert.Equal(t, http.StatusMethodNotAllowed, status)
		assert.Equal(t, "Only superusers can perform these actions.", detail(t, body))

		status, _ = do(t, c, http.MethodDelete, "/api/tables/"+table+"/1/", "")
		assert.Equal(t, http.StatusMethodNotAllowed, status)

		// reading the schema is fine for admins
		_, err := c.RawGet("/api/tables/"+table+"/schema/", nil)
		assert.NoError(t, err)
	}

	get := func(method string, auth *access.Authorization) error {
		r, _ := http.NewRequest(method, "/", nil)
		if auth != nil {
			r = r.WithContext(auth.ContextWithAuthorization(r.Context()))
		}
		return superuserValidator(r)
	}
	admin := &access.Authorization{Roles: []string{access.RoleAdmin}}
	superuser := &access.Authorization{Roles: []string{access.RoleAdmin, access.RoleSuperuser}}
	assert.NoError(t, get(http.MethodGet, admin))
	assert.NoError(t, get(http.MethodGet, nil))
	assert.NoError(t, get(http.MethodPatch, superuser))
	var httpErr *HTTPError
	require.True(t, errors.As(get(http.MethodPatch, admin), &httpErr))
	assert.Equal(t, http.StatusMethodNotAllowed, httpErr.Status)
	assert.Error(t, get(http.MethodPost, nil))
}

func TestHashPasswordHook(t *testing.T) {
	row, err := hashPasswordOnSave(context.Background(), Row{"username": "bob", "password": "secret123"})
	require.NoError(t, err)
	hash := row["password"].(string)
	assert.True(t, access.IsHashedPassword(hash))

	row, err = hashPasswordOnPatch(context.Background(), "1", Row{"password": hash})
	require.NoError(t, err)
	assert.Equal(t, hash, row["password"], "hashes are not hashed again")

	row, err = hashPasswordOnPatch(context.Background(), "1", Row{"password": "", "active": true})
	require.NoError(t, err)
	assert.Equal(t, Row{"active": true}, row, "an empty password keeps the stored one")

	_, err = hashPasswordOnSave(context.Background(), Row{"password": "short"})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestLoginRateLimit(t *testing.T) {
	_, c := newTestAdmin(t, &Builder{
		PlainTables: []*model.Table{movieTable(t)},
		RateLimiter: ratelimit.NewInMemory(2, time.Minute, 0),
	})
	anonymous := c.WithAuthorization(nil)

	for i := 0; i < 2; i++ {
		status, _ := do(t, anonymous, http.MethodPost, "/public/login/", `{}`)
		assert.Equal(t, http.StatusBadRequest, status)
	}
	status, _ := do(t, anonymous, http.MethodPost, "/public/login/", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestJwtAuthentication(t *testing.T) {
	jwtSecret := []byte("jwt secret")
	a, _ := newTestAdmin(t, &Builder{
		PlainTables:    []*model.Table{movieTable(t)},
		AuthMiddleware: access.NewJwtMiddelware(&access.JwtMiddlewareBuilder{Secret: jwtSecret, Issuer: "kadmin"}),
	})
	anonymous := client.NewWithRouter(a.router)

	token, err := access.NewJwtToken(jwtSecret, "kadmin", &access.Authorization{Identity: "carol", Roles: []string{access.RoleAdmin}}, time.Hour)
	require.NoError(t, err)
	var user map[string]string
	_, err = anonymous.WithHeader("Authorization", "Bearer "+token).RawGet("/api/user/", &user)
	require.NoError(t, err)
	assert.Equal(t, "carol", user["username"])

	status, _ := do(t, anonymous, http.MethodGet, "/api/user/", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	// without session authentication there is no login
	status, _ = do(t, anonymous, http.MethodPost, "/public/login/", `{}`)
	assert.Equal(t, http.StatusNotFound, status)
}
