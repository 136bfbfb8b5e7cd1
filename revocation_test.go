package identity_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDenylist(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	denylist := identity.NewMemoryDenylist().WithClock(clock.Now)

	expires := clock.Now().Add(time.Minute)
	require.NoError(t, denylist.Revoke(ctx, identity.TokenAccess, "jti-1", expires))
	require.NoError(t, denylist.Revoke(ctx, identity.TokenRefresh, "jti-2", clock.Now().Add(time.Hour)))
	require.NoError(t, denylist.Revoke(ctx, identity.TokenAccess, "", expires))

	revoked, err := denylist.IsRevoked(ctx, identity.TokenAccess, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = denylist.IsRevoked(ctx, identity.TokenRefresh, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entries are keyed by kind")

	require.NoError(t, denylist.Revoke(ctx, identity.TokenAccess, "jti-1", clock.Now().Add(-time.Hour)))
	assert.Equal(t, 2, denylist.Len())

	clock.Advance(2 * time.Minute)
	revoked, err = denylist.IsRevoked(ctx, identity.TokenAccess, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, 1, denylist.Len())

	assert.Equal(t, 1, denylist.Prune(clock.Now().Add(2*time.Hour)))
	assert.Equal(t, 0, denylist.Len())
}

func TestMemoryDenylist_RevokeIfAbsent(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	denylist := identity.NewMemoryDenylist().WithClock(clock.Now)
	expires := clock.Now().Add(time.Minute)

	added, err := denylist.RevokeIfAbsent(ctx, identity.TokenLogin, "jti-1", expires)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = denylist.RevokeIfAbsent(ctx, identity.TokenLogin, "jti-1", expires)
	require.NoError(t, err)
	assert.False(t, added, "second caller loses")

	added, err = denylist.RevokeIfAbsent(ctx, identity.TokenPasswordReset, "jti-1", expires)
	require.NoError(t, err)
	assert.True(t, added, "entries are keyed by kind")

	added, err = denylist.RevokeIfAbsent(ctx, identity.TokenLogin, "", expires)
	require.NoError(t, err)
	assert.False(t, added)

	clock.Advance(2 * time.Minute)
	added, err = denylist.RevokeIfAbsent(ctx, identity.TokenLogin, "jti-1", clock.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, added, "expired entries can be taken again")
}

func TestMemoryDenylist_RevokeIfAbsentConcurrent(t *testing.T) {
	ctx := context.Background()
	denylist := identity.NewMemoryDenylist()
	expires := time.Now().Add(time.Minute)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := denylist.RevokeIfAbsent(ctx, identity.TokenLogin, "jti-race", expires)
			if err == nil && added {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
