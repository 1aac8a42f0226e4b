package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*Gateway, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return New(mr.Addr()), mr
}

func TestRPushAndBLPop(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.RPush(ctx, "queue:acme", "job-1"))
	require.NoError(t, gw.RPush(ctx, "queue:acme", "job-2"))

	v, err := gw.BLPop(ctx, "queue:acme", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job-1", v)

	v, err = gw.BLPop(ctx, "queue:acme", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job-2", v)
}

func TestBLPopTimeout(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.BLPop(ctx, "queue:empty", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrNil)
}

func TestSetNXOnlySetsOnce(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	ok, err := gw.SetNX(ctx, "lock:acme", "worker-1", 300*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = gw.SetNX(ctx, "lock:acme", "worker-2", 300*time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCleanupScriptDeletesLockWhenQueueEmpty(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.SetNX(ctx, "lock:acme", "worker-1", 300*time.Second)
	require.NoError(t, err)

	deleted, err := gw.CleanupQueueAndLock(ctx, "queue:acme", "lock:acme")
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = gw.Get(ctx, "lock:acme")
	require.ErrorIs(t, err, ErrNil)
}

func TestCleanupScriptKeepsLockWhenQueueNonEmpty(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.SetNX(ctx, "lock:acme", "worker-1", 300*time.Second)
	require.NoError(t, err)
	require.NoError(t, gw.RPush(ctx, "queue:acme", "job-1"))

	deleted, err := gw.CleanupQueueAndLock(ctx, "queue:acme", "lock:acme")
	require.NoError(t, err)
	require.False(t, deleted)

	v, err := gw.Get(ctx, "lock:acme")
	require.NoError(t, err)
	require.Equal(t, "worker-1", v)
}

func TestSetEXAndGetAndDel(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.SetEX(ctx, "result:job-1", 300*time.Second, `{"success":true}`))
	v, err := gw.Get(ctx, "result:job-1")
	require.NoError(t, err)
	require.Equal(t, `{"success":true}`, v)

	require.NoError(t, gw.Del(ctx, "result:job-1"))
	_, err = gw.Get(ctx, "result:job-1")
	require.ErrorIs(t, err, ErrNil)
}
