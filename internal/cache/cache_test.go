package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory().(*memory)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "expired")
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "forever"))
	_, ok, _ = c.Get(ctx, "forever")
	assert.False(t, ok)
}

func TestNewDisabledIsMemory(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	_, isMemory := c.(*memory)
	assert.True(t, isMemory)
}

func TestRedisCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisWithClient(db)
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("k").SetVal("v")
		v, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", string(v))
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("missing").RedisNil()
		v, ok, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet("boom").SetErr(redis.TxFailedErr)
		_, _, err := c.Get(ctx, "boom")
		assert.Error(t, err)
	})

	t.Run("set and delete", func(t *testing.T) {
		mock.ExpectSet("k", []byte("v"), time.Minute).SetVal("OK")
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

		mock.ExpectDel("k").SetVal(1)
		require.NoError(t, c.Delete(ctx, "k"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotsOverRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	snaps := NewSnapshots(NewRedisWithClient(db), "sp:", time.Minute)
	ctx := context.Background()

	mock.ExpectSet("sp:baseline", []byte(`{"62":60}`), time.Minute).SetVal("OK")
	require.NoError(t, snaps.PutBaseline(ctx, scores.Snapshot{"62": 60}))

	mock.ExpectGet("sp:baseline").SetVal(`{"62":60}`)
	snap, ok, err := snaps.Baseline(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scores.Snapshot{"62": 60}, snap)

	mock.ExpectGet("sp:result:run-1").SetVal(`not json`)
	_, _, err = snaps.Result(ctx, "run-1")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotsInMemory(t *testing.T) {
	snaps := NewSnapshots(NewMemory(), "sp:", 0)
	ctx := context.Background()

	_, ok, err := snaps.Baseline(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, snaps.PutResult(ctx, "run-1", scores.Snapshot{"41": 30}))
	snap, ok, err := snaps.Result(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30.0, snap["41"])

	require.NoError(t, snaps.PutBaseline(ctx, scores.Snapshot{"41": 30}))
	require.NoError(t, snaps.InvalidateBaseline(ctx))
	_, ok, _ = snaps.Baseline(ctx)
	assert.False(t, ok)
}
