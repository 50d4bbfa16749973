//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datashare/pkg/testutil/containers"
)

func TestRedisStore_TokenRevocation(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedisStore(rc.Client)
	ctx := context.Background()

	revoked, err := store.IsTokenRevoked(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Minute))

	revoked, err = store.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRedisStore_TokenExpiryDropsEntry(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedisStore(rc.Client)
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-short", 100*time.Millisecond))

	require.Eventually(t, func() bool {
		revoked, err := store.IsTokenRevoked(ctx, "jti-short")
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisStore_UserRevocation(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedisStore(rc.Client)
	ctx := context.Background()

	require.NoError(t, store.RevokeUser(ctx, "user-1", time.Minute))

	revoked, err := store.IsUserRevoked(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsUserRevoked(ctx, "user-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisStore_ZeroTTLIsNoop(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedisStore(rc.Client)
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-expired", 0))

	revoked, err := store.IsTokenRevoked(ctx, "jti-expired")
	require.NoError(t, err)
	assert.False(t, revoked)
}
