package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorization_Roles(t *testing.T) {
	auth := &Authorization{
		Roles: []string{RoleAdmin},
	}
	assert.True(t, auth.HasRole(RoleAdmin))
	assert.False(t, auth.IsSuperuser())

	auth.Roles = append(auth.Roles, RoleSuperuser)
	assert.True(t, auth.IsSuperuser())

	// now try without any authorization
	auth = nil
	assert.False(t, auth.HasRole(RoleAdmin))
	assert.False(t, auth.IsSuperuser())
}

func TestAuthorization_Property(t *testing.T) {
	auth := &Authorization{Properties: map[string]string{"language": "de"}}
	value, ok := auth.Property("language")
	assert.True(t, ok)
	assert.Equal(t, "de", value)

	_, ok = auth.Property("theme")
	assert.False(t, ok)

	auth = nil
	_, ok = auth.Property("language")
	assert.False(t, ok)
}

func TestAuthorization_Context(t *testing.T) {
	assert.Nil(t, AuthorizationFromContext(context.Background()))

	auth := &Authorization{Identity: "admin", UserID: 1}
	ctx := auth.ContextWithAuthorization(context.Background())
	assert.Equal(t, auth, AuthorizationFromContext(ctx))
}

func TestAuthorizationCache(t *testing.T) {
	cache := NewAuthorizationCache()
	assert.Nil(t, cache.Read("token"))

	auth := &Authorization{Identity: "admin"}
	cache.Write("token", auth)
	assert.Equal(t, auth, cache.Read("token"))

	cache.Delete("token")
	assert.Nil(t, cache.Read("token"))
}

func TestUser_Authorization(t *testing.T) {
	user := &User{ID: 3, Username: "bob", Admin: true}
	auth := user.Authorization()
	assert.Equal(t, []string{RoleAdmin}, auth.Roles)
	assert.Equal(t, "bob", auth.Identity)
	assert.Equal(t, int64(3), auth.UserID)

	user.Superuser = true
	assert.True(t, user.Authorization().IsSuperuser())
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.Equal(t, ErrPasswordTooShort, err)

	hash, err := HashPassword("secret123")
	assert.NoError(t, err)
	assert.True(t, IsHashedPassword(hash))
	assert.False(t, IsHashedPassword("secret123"))

	// hashing is idempotent
	again, err := HashPassword(hash)
	assert.NoError(t, err)
	assert.Equal(t, hash, again)
}
