package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/csql/csqltest"
)

func TestSaveUser(t *testing.T) {
	db := csqltest.Open(t, "_kadmin_user_test_")
	ctx := context.Background()

	user, err := saveUser(ctx, db, "staff", access.User{Username: "alice"}, "secret123")
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.True(t, user.Admin)
	assert.False(t, user.Superuser)

	// running the command again updates the user
	again, err := saveUser(ctx, db, "staff", access.User{Username: "alice", Superuser: true}, "secret456")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.True(t, again.Superuser)

	users := access.NewUsers(db, "staff")
	_, err = users.Login(ctx, "alice", "secret123")
	assert.ErrorIs(t, err, access.ErrInvalidCredentials)
	_, err = users.Login(ctx, "alice", "secret456")
	assert.NoError(t, err)
}
