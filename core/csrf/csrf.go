// Package csrf protects cookie authenticated routes against cross site request forgery
//
// It implements the double submit cookie pattern: safe requests receive a random
// token in the csrftoken cookie, unsafe requests must echo that token in the
// X-CSRFToken header or the csrftoken form field.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/logger"
)

const (
	// CookieName is the name of the cookie which carries the token
	CookieName = "csrftoken"
	// HeaderName is the name of the header which echoes the token
	HeaderName = "X-CSRFToken"
	// FormField is the name of the form field which may echo the token instead of the header
	FormField = "csrftoken"
)

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func forbidden(w http.ResponseWriter, r *http.Request, reason string) {
	logger.FromContext(r.Context()).Warnln("CSRF check failed:", reason)
	http.Error(w, "CSRF token verification failed", http.StatusForbidden)
}

// hostAllowed checks the Origin or Referer of an https request against allowedHosts.
// A "*" allows every host.
func hostAllowed(r *http.Request, allowedHosts []string) bool {
	source := r.Header.Get("Origin")
	if source == "" {
		source = r.Header.Get("Referer")
	}
	if source == "" {
		return false
	}
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range allowedHosts {
		if allowed == "*" || strings.EqualFold(allowed, host) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// Middleware returns a middleware handler which verifies the CSRF token of unsafe
// requests and sets the token cookie on safe requests. Under https the Origin or
// Referer of unsafe requests must be the host itself or one of allowedHosts.
// Requests which carry no cookies at all cannot be forged and pass.
func Middleware(allowedHosts []string) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, _ := r.Cookie(CookieName)

			if safeMethods[r.Method] {
				if cookie == nil || cookie.Value == "" {
					token, err := newToken()
					if err != nil {
						logger.FromContext(r.Context()).WithError(err).Errorln("Error 4101: cannot create csrf token")
						http.Error(w, "Error 4101", http.StatusInternalServerError)
						return
					}
					http.SetCookie(w, &http.Cookie{
						Name:     CookieName,
						Value:    token,
						Path:     "/",
						Secure:   r.TLS != nil,
						SameSite: http.SameSiteStrictMode,
					})
				}
				h.ServeHTTP(w, r)
				return
			}

			if len(r.Cookies()) == 0 {
				h.ServeHTTP(w, r)
				return
			}

			if r.TLS != nil || r.URL.Scheme == "https" {
				if !hostAllowed(r, allowedHosts) {
					forbidden(w, r, "untrusted origin")
					return
				}
			}
			if cookie == nil || cookie.Value == "" {
				forbidden(w, r, "missing cookie")
				return
			}
			echoed := r.Header.Get(HeaderName)
			if echoed == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
				echoed = r.PostFormValue(FormField)
			}
			if subtle.ConstantTimeCompare([]byte(echoed), []byte(cookie.Value)) != 1 {
				forbidden(w, r, "token mismatch")
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
