package counter

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields_Sorted(t *testing.T) {
	fields := Fields(map[string]int64{"received": 3, "bound": 1, "materialized": 2})
	assert.Equal(t, []string{"bound", "materialized", "received"}, fields)
	assert.Empty(t, Fields(nil))
}

func TestRecorder_NilClient(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(nil)
	r.Add(ctx, "received", 1)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.NoError(t, r.Reset(ctx))

	var nilRecorder *Recorder
	nilRecorder.Add(ctx, "received", 1)
	assert.NoError(t, nilRecorder.Reset(ctx))
}

func TestRecorder_Redis(t *testing.T) {
	addr := os.Getenv("OUTFLO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OUTFLO_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	r := &Recorder{client: client, key: "test:" + t.Name()}
	t.Cleanup(func() { _ = r.Reset(ctx) })

	r.Add(ctx, "received", 2)
	r.Add(ctx, "received", 1)
	r.Add(ctx, "unbound", 1)
	r.Add(ctx, "ignored", 0)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"received": 3, "unbound": 1}, snap)

	require.NoError(t, r.Reset(ctx))
	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}
