package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiranshivaraju/imagetagger/internal/cache"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rc.Close()) })

	return rc
}

var sampleTagSet = models.TagSet{
	Title: "Harbour at dawn",
	Tags:  []string{"harbour", "dawn", "boats"},
}

func TestRedisTagSetRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Ping(ctx))

	_, found, err := rc.GetTagSet(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.SetTagSet(ctx, "deadbeef", sampleTagSet, time.Hour))

	got, found, err := rc.GetTagSet(ctx, "deadbeef")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleTagSet, got)
}

func TestRedisIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	key := cache.RateLimitKey("10.0.0.1")
	for want := int64(1); want <= 3; want++ {
		got, err := rc.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

// --- in-memory fallback ---

func TestMemoryTagSetRoundTrip(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	_, found, err := mc.GetTagSet(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, mc.SetTagSet(ctx, "abc", sampleTagSet, time.Hour))

	got, found, err := mc.GetTagSet(ctx, "abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleTagSet, got)
}

func TestMemoryExpiry(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.SetTagSet(ctx, "abc", sampleTagSet, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, found, err := mc.GetTagSet(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryIncrWithExpiry(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	n, err := mc.IncrWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = mc.IncrWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryIncrExpiryResets(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	_, err := mc.IncrWithExpiry(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	n, err := mc.IncrWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// --- helpers ---

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	hash, err := cache.HashFile(path)
	require.NoError(t, err)
	// SHA-256 of "hello".
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)

	same, err := cache.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash, same)
}

func TestHashFileMissing(t *testing.T) {
	_, err := cache.HashFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "tagset:abcd", cache.TagSetKey("abcd"))
	assert.Equal(t, "ratelimit:1.2.3.4", cache.RateLimitKey("1.2.3.4"))
}
