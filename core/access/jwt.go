package access

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/logger"
)

// JwtCookieName is the name of the cookie which may carry a JWT instead of the
// Authorization header
const JwtCookieName = "Kadmin-JWT"

// JwtMiddlewareBuilder is a helper builder for JwtMiddelware
type JwtMiddlewareBuilder struct {
	// Secret is the HMAC key the tokens are signed with
	Secret []byte
	// Issuer is the accepted issuer for the token. If empty, any issuer is accepted.
	Issuer string
}

// Claims are the claims of a kadmin JWT
type Claims struct {
	Username string   `json:"username"`
	UserID   int64    `json:"user_id,omitempty"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewJwtToken returns a HS256 signed token for the authorization, which expires after expiry
func NewJwtToken(secret []byte, issuer string, auth *Authorization, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: auth.Identity,
		UserID:   auth.UserID,
		Roles:    auth.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   auth.Identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// NewJwtMiddelware returns a middleware handler to validate
// JWT bearer token.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer"
// header or as "Kadmin-JWT"-cookie. The roles of the token become the roles
// of the authorization.
//
// This is a final handler with regards to the bearer token. It will return
// http.StatusUnauthorized when a token is available but invalid. Requests without
// token are passed on unchanged.
func NewJwtMiddelware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	keyLookup := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jmb.Secret, nil
	}
	authCache := NewAuthorizationCache()

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) > 0 && bearer != "null" {
				if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
					tokenString = bearer[7:]
				} else {
					tokenString = bearer
				}
			} else if cookie, _ := r.Cookie(JwtCookieName); cookie != nil {
				tokenString = cookie.Value
			}
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			auth := authCache.Read(tokenString)
			if auth == nil {
				claims := Claims{}
				token, err := jwt.ParseWithClaims(tokenString, &claims, keyLookup)
				if err != nil || !token.Valid || (jmb.Issuer != "" && claims.Issuer != jmb.Issuer) {
					logger.FromContext(r.Context()).Infoln("invalid token:", err)
					AuthFailed(w)
					return
				}
				auth = &Authorization{
					Roles:    claims.Roles,
					Identity: claims.Username,
					UserID:   claims.UserID,
				}
				if claims.ExpiresAt != nil {
					// the cache only holds tokens which have not expired yet
					expiresAt := claims.ExpiresAt.Time
					authCache.Write(tokenString, auth)
					time.AfterFunc(time.Until(expiresAt), func() { authCache.Delete(tokenString) })
				}
			}

			ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), auth.Identity)
			ctx = auth.ContextWithAuthorization(ctx)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns a middleware which answers requests without an authorization
// carrying role with 401.
func RequireRole(role string) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !AuthorizationFromContext(r.Context()).HasRole(role) {
				AuthFailed(w)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
