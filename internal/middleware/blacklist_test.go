package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTokenBlacklist(t *testing.T) {
	rdb := redisClient(t)
	bl := NewRedisTokenBlacklist(rdb)
	ctx := context.Background()

	token := "token-" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, revokedKey(token)) })

	revoked, err := bl.IsBlacklisted(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, token, time.Minute))
	revoked, err = bl.IsBlacklisted(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)

	// The raw token is never used as a key.
	n, err := rdb.Exists(ctx, revokedPrefix+token).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	ttl, err := rdb.TTL(ctx, revokedKey(token)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}

func TestRedisTokenBlacklist_ExpiredTokenNotStored(t *testing.T) {
	rdb := redisClient(t)
	bl := NewRedisTokenBlacklist(rdb)
	ctx := context.Background()

	token := "token-" + uuid.NewString()
	require.NoError(t, bl.Revoke(ctx, token, -time.Second))
	revoked, err := bl.IsBlacklisted(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked)
}
