package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestPresenceTracker(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	tracker := NewPresenceTracker(rdb, 30*time.Second, zap.NewNop())
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	project := uuid.New()
	ana, bob := uuid.New(), uuid.New()
	require.NoError(t, tracker.Heartbeat(ctx, project, Presence{UserID: ana, View: "board"}))

	now = now.Add(20 * time.Second)
	require.NoError(t, tracker.Heartbeat(ctx, project, Presence{UserID: bob, Cursor: "task-1"}))
	assert.Equal(t, time.Minute, mr.TTL(presenceKey(project)))

	list, err := tracker.List(ctx, project)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// ana 超过 30 秒没有心跳
	now = now.Add(15 * time.Second)
	list, err = tracker.List(ctx, project)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bob, list[0].UserID)
	assert.Equal(t, "task-1", list[0].Cursor)
	assert.Empty(t, mr.HGet(presenceKey(project), ana.String()), "stale entries are pruned")

	require.NoError(t, tracker.Leave(ctx, project, bob))
	list, err = tracker.List(ctx, project)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// failHDel 让 HDEL 失败，其它命令照常执行
type failHDel struct{}

func (failHDel) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failHDel) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "hdel" {
			err := errors.New("READONLY You can't write against a read only replica")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failHDel) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPresenceListLogsPruneFailure(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	tracker := NewPresenceTracker(rdb, 30*time.Second, zap.New(core))
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	project, ana := uuid.New(), uuid.New()
	require.NoError(t, tracker.Heartbeat(ctx, project, Presence{UserID: ana}))
	rdb.AddHook(failHDel{})

	now = now.Add(time.Minute)
	list, err := tracker.List(ctx, project)
	require.NoError(t, err)
	assert.Empty(t, list)

	entries := logs.FilterMessage("Failed to prune stale presence").All()
	require.Len(t, entries, 1)
	assert.Equal(t, project.String(), entries[0].ContextMap()["project_id"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["stale"])
}

func TestUnreadCache(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	cache := NewUnreadCache(rdb, time.Minute)
	user := uuid.New()

	_, ok := cache.Get(ctx, user)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, user, 7))
	n, ok := cache.Get(ctx, user)
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	mr.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, user)
	assert.False(t, ok, "entry expires with ttl")

	require.NoError(t, cache.Set(ctx, user, 3))
	require.NoError(t, cache.Invalidate(ctx, user))
	_, ok = cache.Get(ctx, user)
	assert.False(t, ok)
}

func TestAnalyticsCached(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	cache := NewAnalyticsCache(rdb, 5*time.Minute)

	calls := 0
	compute := func() (Dashboard, error) {
		calls++
		return Dashboard{MinutesThisWeek: 42}, nil
	}

	d, err := cached(ctx, cache, zap.NewNop(), "foco:test:dash", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, d.MinutesThisWeek)

	d, err = cached(ctx, cache, zap.NewNop(), "foco:test:dash", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, d.MinutesThisWeek)
	assert.Equal(t, 1, calls)

	// 计算失败不写缓存
	_, err = cached(ctx, cache, zap.NewNop(), "foco:test:fail", func() (Dashboard, error) {
		return Dashboard{}, errors.New("db down")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists("foco:test:fail"))

	// Redis 不可用时直接计算
	mr.SetError("LOADING redis is loading")
	d, err = cached(ctx, cache, zap.NewNop(), "foco:test:dash", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, d.MinutesThisWeek)
	assert.Equal(t, 2, calls)
}
