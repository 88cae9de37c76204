package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// exerciseStore checks the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "cart:lines", []byte(`[1]`), 0))
	got, err := s.Get(ctx, "cart:lines")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1]`), got)

	require.NoError(t, s.Set(ctx, "cart:lines", []byte(`[2]`), 0))
	got, err = s.Get(ctx, "cart:lines")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[2]`), got)

	require.NoError(t, s.Set(ctx, "cache:a", []byte("a"), time.Hour))
	require.NoError(t, s.Set(ctx, "cache:b*", []byte("b"), time.Hour))
	require.NoError(t, s.DeletePrefix(ctx, "cache:"))
	_, err = s.Get(ctx, "cache:a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "cache:b*")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "cart:lines")
	require.NoError(t, err, "prefix delete must not touch other namespaces")

	require.NoError(t, s.Delete(ctx, "cart:lines", "never-set"))
	_, err = s.Get(ctx, "cart:lines")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	now = now.Add(59 * time.Second)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_ExpiryKeepsNewerSet(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	var s *MemoryStore
	overwrite := false
	s = NewMemoryStore().WithClock(func() time.Time {
		if overwrite {
			// lands between the expiry check and the eviction
			overwrite = false
			require.NoError(t, s.Set(ctx, "k", []byte("v2"), 0))
		}
		return now
	})

	require.NoError(t, s.Set(ctx, "k", []byte("v1"), time.Minute))
	now = now.Add(2 * time.Minute)
	overwrite = true
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "storefront:")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := setupTestRedis(t)
	exerciseStore(t, s)
}

func TestRedisStore_NamespaceAndTTL(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "cache:x", []byte("v"), 10*time.Minute))
	assert.True(t, mr.Exists("storefront:cache:x"))
	assert.Equal(t, 10*time.Minute, mr.TTL("storefront:cache:x"))

	mr.FastForward(11 * time.Minute)
	_, err := s.Get(ctx, "cache:x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ClosedClient(t *testing.T) {
	s, _ := setupTestRedis(t)
	require.NoError(t, s.client.Close())

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "redis get failed")
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `cache:list:\*\?\[x\]`, escapeGlob("cache:list:*?[x]"))
}

func setupTestSQLite(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, setupTestSQLite(t))
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "cart:lines", []byte(`[]`), 0))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "cart:lines")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), got)
}

func TestSQLiteStore_Expiry(t *testing.T) {
	s := setupTestSQLite(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, s.Set(ctx, "c", []byte("3"), 0))

	now = now.Add(2 * time.Minute)
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	now = now.Add(2 * time.Hour)
	purged, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = s.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "storefront_test")
	require.NoError(t, err)

	s := NewMongoStore(db, "kv")
	require.NoError(t, s.CreateIndexes(ctx))
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s)

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "short", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}
