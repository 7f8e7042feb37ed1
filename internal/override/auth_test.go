package override

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsAdminGrantsFullAccessAndMintsValidToken(t *testing.T) {
	mgr := NewManager(Config{})
	identity, err := mgr.Auth("session").AsAdmin(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"admin"}, identity.Users)
	assert.Equal(t, []string{"*"}, identity.Permissions)
	assert.NotEmpty(t, identity.Token)

	got, err := mgr.ValidateToken(identity.Token)
	require.NoError(t, err)
	assert.Equal(t, identity.Users, got.Users)
}

func TestAsUserPresentsNamedIdentity(t *testing.T) {
	mgr := NewManager(Config{})
	identity, err := mgr.Auth("session").AsUser(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, identity.Users)
	assert.Equal(t, []string{"user"}, identity.Roles)
}

func TestAsGuestHasNoRoles(t *testing.T) {
	mgr := NewManager(Config{})
	identity, err := mgr.Auth("session").AsGuest(context.Background())
	require.NoError(t, err)

	assert.Empty(t, identity.Roles)
	assert.Empty(t, identity.Permissions)
}

func TestValidateTokenRejectsUnknownToken(t *testing.T) {
	mgr := NewManager(Config{})
	_, err := mgr.ValidateToken("does-not-exist")
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	mgr := NewManager(Config{})
	identity, err := mgr.Auth("session").WithProfile(context.Background(), Identity{Users: []string{"bob"}}, -time.Second)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(identity.Token)
	assert.Error(t, err)
}

func TestRevokeTokenInvalidatesImmediately(t *testing.T) {
	mgr := NewManager(Config{})
	identity, err := mgr.Auth("session").AsUser(context.Background(), "carol")
	require.NoError(t, err)

	mgr.RevokeToken(identity.Token)

	_, err = mgr.ValidateToken(identity.Token)
	assert.Error(t, err)
}

func TestWithUsersRolesPermissionsRecordAsMapOverride(t *testing.T) {
	adapter := &fakeAdapter{}
	mgr := NewManager(Config{Adapter: adapter})
	auth := mgr.Auth("session")

	require.NoError(t, auth.WithUsers(context.Background(), "dave"))
	require.NoError(t, auth.WithRoles(context.Background(), "editor"))
	require.NoError(t, auth.WithPermissions(context.Background(), "posts:write"))

	require.Len(t, adapter.applied, 3)
	assert.Equal(t, []string{"dave"}, adapter.applied[0].Implementation.(map[string]any)["users"])
	assert.Equal(t, []string{"editor"}, adapter.applied[1].Implementation.(map[string]any)["roles"])
	assert.Equal(t, []string{"posts:write"}, adapter.applied[2].Implementation.(map[string]any)["permissions"])
}
