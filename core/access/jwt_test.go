package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwtRouter(secret []byte, issuer string) (*mux.Router, **Authorization) {
	var seen *Authorization
	router := mux.NewRouter()
	router.Use(NewJwtMiddelware(&JwtMiddlewareBuilder{Secret: secret, Issuer: issuer}))
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		seen = AuthorizationFromContext(r.Context())
	})
	return router, &seen
}

func TestJwtMiddelware(t *testing.T) {
	secret := []byte("top secret")
	router, seen := jwtRouter(secret, "kadmin")

	token, err := NewJwtToken(secret, "kadmin", &Authorization{Identity: "alice", UserID: 5, Roles: []string{RoleAdmin}}, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, *seen)
	assert.Equal(t, "alice", (*seen).Identity)
	assert.Equal(t, int64(5), (*seen).UserID)
	assert.True(t, (*seen).HasRole(RoleAdmin))

	// the token is also accepted as cookie, this time from the cache
	*seen = nil
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: JwtCookieName, Value: token})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	require.NotNil(t, *seen)
	assert.Equal(t, "alice", (*seen).Identity)

	// no token passes without authorization
	*seen = nil
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, *seen)
}

func TestJwtMiddelware_Invalid(t *testing.T) {
	secret := []byte("top secret")
	router, _ := jwtRouter(secret, "kadmin")

	tests := map[string]func() string{
		"wrong secret": func() string {
			token, _ := NewJwtToken([]byte("other"), "kadmin", &Authorization{Identity: "eve"}, time.Hour)
			return token
		},
		"wrong issuer": func() string {
			token, _ := NewJwtToken(secret, "someone", &Authorization{Identity: "eve"}, time.Hour)
			return token
		},
		"expired": func() string {
			token, _ := NewJwtToken(secret, "kadmin", &Authorization{Identity: "eve"}, -time.Minute)
			return token
		},
		"garbage": func() string { return "not-a-token" },
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+token())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, r)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"Auth failed"}`, rec.Body.String())
		})
	}
}

func TestRequireRole(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RequireRole(RoleAdmin))
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := &Authorization{Roles: []string{RoleAdmin}}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(auth.ContextWithAuthorization(r.Context()))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}
