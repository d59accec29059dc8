package access

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	gsessions "github.com/gorilla/sessions"

	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/sessions"
)

// SessionCookieName is the name of the cookie which carries the session token
const SessionCookieName = "kadmin_session"

const sessionTokenKey = "token"

// SessionAuthBuilder is a helper builder for NewSessionAuth
type SessionAuthBuilder struct {
	// Sessions is the session store
	Sessions *sessions.Store
	// Users is the user table
	Users *Users
	// Secret is the key to sign the session cookie
	Secret []byte
	// Secure marks the session cookie as https only
	Secure bool
	// Expiry is the initial lifetime of a session
	Expiry time.Duration
	// MaxExpiry is the maximum lifetime of a session
	MaxExpiry time.Duration
	// IncreaseExpiry extends a session which is used within that time before it expires
	IncreaseExpiry time.Duration
}

// SessionAuth authenticates requests with a session cookie
type SessionAuth struct {
	sessions       *sessions.Store
	users          *Users
	cookies        *gsessions.CookieStore
	expiry         time.Duration
	maxExpiry      time.Duration
	increaseExpiry time.Duration
}

// NewSessionAuth creates a session authentication
func NewSessionAuth(b *SessionAuthBuilder) *SessionAuth {
	cookies := gsessions.NewCookieStore(b.Secret)
	cookies.Options = &gsessions.Options{
		Path:     "/",
		MaxAge:   int(b.MaxExpiry.Seconds()),
		Secure:   b.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	return &SessionAuth{
		sessions:       b.Sessions,
		users:          b.Users,
		cookies:        cookies,
		expiry:         b.Expiry,
		maxExpiry:      b.MaxExpiry,
		increaseExpiry: b.IncreaseExpiry,
	}
}

// AuthFailed answers a request with 401 and the body {"error": "Auth failed"}
func AuthFailed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Auth failed"}`))
}

// Middleware returns a middleware handler which authorizes requests with a valid
// session cookie of an active admin user. Requests which are already authorized
// pass unchanged, all others are answered with 401.
func (s *SessionAuth) Middleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}
			rlog := logger.FromContext(r.Context())
			cookie, _ := s.cookies.Get(r, SessionCookieName)
			token, _ := cookie.Values[sessionTokenKey].(string)
			if token == "" {
				AuthFailed(w)
				return
			}
			session, err := s.sessions.Read(r.Context(), token)
			if errors.Is(err, sessions.ErrNotFound) {
				AuthFailed(w)
				return
			}
			if err != nil {
				rlog.WithError(err).Errorln("Error 4001: cannot read session")
				http.Error(w, "Error 4001", http.StatusInternalServerError)
				return
			}
			user, err := s.users.Read(r.Context(), session.UserID)
			if err != nil || !user.Active || !user.Admin {
				AuthFailed(w)
				return
			}
			if err = s.sessions.IncreaseExpiry(r.Context(), session, s.increaseExpiry); err != nil {
				rlog.WithError(err).Warnln("cannot increase session expiry")
			}

			ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), user.Username)
			ctx = user.Authorization().ContextWithAuthorization(ctx)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Login checks the credentials of a user and starts a new session. Only active
// admin users can log in.
func (s *SessionAuth) Login(w http.ResponseWriter, r *http.Request, username, password string) (*User, error) {
	user, err := s.users.Login(r.Context(), username, password)
	if err != nil {
		return nil, err
	}
	if !user.Active || !user.Admin {
		return nil, ErrInvalidCredentials
	}
	session, err := s.sessions.Create(r.Context(), user.ID, s.expiry, s.maxExpiry)
	if err != nil {
		return nil, err
	}
	cookie, _ := s.cookies.Get(r, SessionCookieName)
	cookie.Values[sessionTokenKey] = session.Token
	if err = cookie.Save(r, w); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout ends the session of the request and clears the session cookie
func (s *SessionAuth) Logout(w http.ResponseWriter, r *http.Request) error {
	cookie, _ := s.cookies.Get(r, SessionCookieName)
	if token, _ := cookie.Values[sessionTokenKey].(string); token != "" {
		if err := s.sessions.Delete(r.Context(), token); err != nil {
			return err
		}
	}
	cookie.Options.MaxAge = -1
	delete(cookie.Values, sessionTokenKey)
	return cookie.Save(r, w)
}
