package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/workflow-graph/types"
)

// newTestRedis connects to a local Redis or skips the test.
func newTestRedis(t *testing.T) *RedisStorage {
	t.Helper()
	store, err := NewRedisStorage(RedisOptions{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		IdleTimeout:  5 * time.Minute,
	})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	return store
}

// testFile returns a file path unique to this test run.
func testFile(t *testing.T, name string) string {
	return fmt.Sprintf("test/%s/%d/%s", t.Name(), time.Now().UnixNano(), name)
}

func TestRedisStorage(t *testing.T) {
	t.Run("ConnectionFailure", func(t *testing.T) {
		_, err := NewRedisStorage(RedisOptions{Addr: "invalid:6379"})
		assert.Error(t, err)
	})

	store := newTestRedis(t)
	defer store.Close()
	base := uint64(time.Now().UnixNano())

	t.Run("SaveAndGetManifest", func(t *testing.T) {
		ctx := context.Background()
		file := testFile(t, "order.ts")
		defer store.DeleteFile(ctx, file)

		rec := newRecord(base+1, file)
		require.NoError(t, store.SaveManifest(ctx, rec))

		got, err := store.GetManifest(ctx, rec.ID)
		assert.NoError(t, err)
		assert.Equal(t, rec, got)

		_, err = store.GetManifest(ctx, 0)
		assert.ErrorIs(t, err, ErrManifestNotFound)
	})

	t.Run("LatestManifest", func(t *testing.T) {
		ctx := context.Background()
		file := testFile(t, "order.ts")
		defer store.DeleteFile(ctx, file)

		require.NoError(t, store.SaveManifest(ctx, newRecord(base+10, file)))
		require.NoError(t, store.SaveManifest(ctx, newRecord(base+11, file)))

		got, err := store.LatestManifest(ctx, file)
		assert.NoError(t, err)
		assert.Equal(t, base+11, got.ID)

		_, err = store.LatestManifest(ctx, testFile(t, "missing.ts"))
		assert.ErrorIs(t, err, ErrManifestNotFound)
	})

	t.Run("SaveManifestsAndDeleteFile", func(t *testing.T) {
		ctx := context.Background()
		fileA := testFile(t, "a.ts")
		fileB := testFile(t, "b.ts")
		defer store.DeleteFile(ctx, fileB)

		recs := []types.ManifestRecord{newRecord(base+20, fileA), newRecord(base+21, fileA), newRecord(base+22, fileB)}
		require.NoError(t, store.SaveManifests(ctx, recs))

		latest, err := store.LatestManifest(ctx, fileA)
		require.NoError(t, err)
		assert.Equal(t, base+21, latest.ID)

		require.NoError(t, store.DeleteFile(ctx, fileA))
		_, err = store.GetManifest(ctx, base+20)
		assert.ErrorIs(t, err, ErrManifestNotFound)
		_, err = store.LatestManifest(ctx, fileA)
		assert.ErrorIs(t, err, ErrManifestNotFound)

		_, err = store.GetManifest(ctx, base+22)
		assert.NoError(t, err)
	})

	t.Run("ContextCancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, store.SaveManifest(ctx, newRecord(base+30, "x.ts")), context.Canceled)
		_, err := store.GetManifest(ctx, base+30)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = store.LatestManifest(ctx, "x.ts")
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, store.DeleteFile(ctx, "x.ts"), context.Canceled)
	})
}

func TestRedisStorage_Close(t *testing.T) {
	store := newTestRedis(t)
	require.NoError(t, store.Close())

	err := store.SaveManifest(context.Background(), newRecord(1, "closed.ts"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
