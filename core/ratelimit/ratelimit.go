// Package ratelimit limits the number of requests a client can make in a time span
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/logger"
)

// Provider decides whether a client identified by key may make another request
type Provider interface {
	Increment(key string) bool
}

type window struct {
	start time.Time
	count int
}

// InMemory is a fixed window rate limiter which keeps its counters in memory.
// It only works in a single instance configuration.
type InMemory struct {
	mutex    sync.Mutex
	limit    int
	timespan time.Duration
	block    time.Duration
	windows  map[string]*window
	blocked  map[string]time.Time
	now      func() time.Time
}

// NewInMemory returns a rate limiter which allows limit requests per timespan.
// A client which exceeds the limit is blocked for block, or until the end of the
// current window if block is zero.
func NewInMemory(limit int, timespan, block time.Duration) *InMemory {
	return &InMemory{
		limit:    limit,
		timespan: timespan,
		block:    block,
		windows:  make(map[string]*window),
		blocked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Increment counts a request of key and returns false if the key is over its limit.
// This function is go-route safe
func (m *InMemory) Increment(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()

	if until, ok := m.blocked[key]; ok {
		if now.Before(until) {
			return false
		}
		delete(m.blocked, key)
	}

	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= m.timespan {
		m.expire(now)
		w = &window{start: now}
		m.windows[key] = w
	}
	w.count++
	if w.count <= m.limit {
		return true
	}
	if m.block > 0 {
		m.blocked[key] = now.Add(m.block)
	}
	return false
}

// expire drops windows which have ended
func (m *InMemory) expire(now time.Time) {
	for key, w := range m.windows {
		if now.Sub(w.start) >= m.timespan {
			delete(m.windows, key)
		}
	}
}

// ClientIP returns the IP address of the client of r. The remote address is
// expected to be rewritten by handlers.ProxyHeaders when running behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// Middleware returns a middleware handler which answers requests of clients
// over their limit with 429
func Middleware(provider Provider) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !provider.Increment(ip) {
				logger.FromContext(r.Context()).Warnln("rate limit exceeded for", ip)
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
