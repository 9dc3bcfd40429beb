package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonPP123/verto-digital-app-sub002/internal/cache"
)

// setupRedis starts an in-process Redis and returns a connected RedisCache
// plus the server for clock manipulation.
func setupRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rc.Close()) })

	return rc, srv
}

// --- Ping ---

func TestPing(t *testing.T) {
	rc, _ := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Set / Get roundtrip ---

func TestSetGet_Roundtrip(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second)
	require.NoError(t, err)

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	rc, _ := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSet_TTLExpiry(t *testing.T) {
	rc, srv := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "expiry:key", []byte("temp"), 1*time.Second)
	require.NoError(t, err)

	// Immediately should exist
	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	// Advance the server clock past the TTL
	srv.FastForward(2 * time.Second)

	_, found, err = rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "del:key", []byte("bye"), 10*time.Second))

	err := rc.Delete(ctx, "del:key")
	require.NoError(t, err)

	_, found, err := rc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_NonExistent(t *testing.T) {
	rc, _ := setupRedis(t)

	err := rc.Delete(context.Background(), "does:not:exist")
	assert.NoError(t, err)
}

// --- Request Status ---

func TestSetGetRequestStatus(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()
	ownerID := uuid.New()
	requestID := uuid.New()

	err := rc.SetRequestStatus(ctx, ownerID, requestID, "processing", 10*time.Second)
	require.NoError(t, err)

	status, found, err := rc.GetRequestStatus(ctx, ownerID, requestID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "processing", status)
}

func TestGetRequestStatus_NotFound(t *testing.T) {
	rc, _ := setupRedis(t)

	status, found, err := rc.GetRequestStatus(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "", status)
}

func TestGetRequestStatus_ScopedToOwner(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()
	ownerID := uuid.New()
	requestID := uuid.New()

	require.NoError(t, rc.SetRequestStatus(ctx, ownerID, requestID, "processing", 10*time.Second))

	// Another caller asking about the same request misses the cache.
	_, found, err := rc.GetRequestStatus(ctx, uuid.New(), requestID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetRequestStatus_Overwrite(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()
	ownerID := uuid.New()
	requestID := uuid.New()

	require.NoError(t, rc.SetRequestStatus(ctx, ownerID, requestID, "processing", 10*time.Second))
	require.NoError(t, rc.SetRequestStatus(ctx, ownerID, requestID, "completed", 10*time.Second))

	status, found, err := rc.GetRequestStatus(ctx, ownerID, requestID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "completed", status)
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:test:" + uuid.NewString()[:8]

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), val)
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	rc, srv := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:expiry:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	srv.FastForward(2 * time.Second)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestRequestStatusKey(t *testing.T) {
	ownerID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	requestID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	key := cache.RequestStatusKey(ownerID, requestID)
	assert.Equal(t, "request:22222222-2222-2222-2222-222222222222:11111111-1111-1111-1111-111111111111", key)
}

func TestRateLimitKey(t *testing.T) {
	key := cache.RateLimitKey("vd_abcd1234")
	assert.Equal(t, "ratelimit:vd_abcd1234", key)
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	ownerID := uuid.New()
	requestID := uuid.New()

	keys := map[string]bool{
		cache.RequestStatusKey(ownerID, requestID):    true,
		cache.RequestStatusKey(uuid.New(), requestID): true,
		cache.RateLimitKey("vd_prefix"):               true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}
