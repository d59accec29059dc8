package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestInMemory(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewInMemory(2, time.Minute, 0)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Increment("a"))
	assert.True(t, limiter.Increment("a"))
	assert.False(t, limiter.Increment("a"))
	assert.True(t, limiter.Increment("b"), "clients are counted separately")

	now = now.Add(time.Minute)
	assert.True(t, limiter.Increment("a"), "a new window starts")
	assert.Len(t, limiter.windows, 1, "windows which have ended are dropped")
}

func TestInMemory_Block(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewInMemory(1, time.Minute, 10*time.Minute)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Increment("a"))
	assert.False(t, limiter.Increment("a"))

	now = now.Add(5 * time.Minute)
	assert.False(t, limiter.Increment("a"), "still blocked")

	now = now.Add(5 * time.Minute)
	assert.True(t, limiter.Increment("a"))
}

func TestMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Middleware(NewInMemory(1, time.Minute, 0)))
	router.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {})

	request := func(remote string) int {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = remote
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, request("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1:5678"))
	assert.Equal(t, http.StatusOK, request("10.0.0.2:1234"))
}
