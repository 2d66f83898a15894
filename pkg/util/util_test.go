package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foco/pkg/circuitbreaker"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestDeduper_AcquireOnce(t *testing.T) {
	mr, rdb := newRedis(t)
	d := NewDeduper(rdb, time.Minute, nil)
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "mention", "c1"))
	assert.False(t, d.AcquireOnce(ctx, "mention", "c1"))
	assert.True(t, d.AcquireOnce(ctx, "assignment", "c1"))

	d.Release(ctx, "mention", "c1")
	assert.True(t, d.AcquireOnce(ctx, "mention", "c1"))

	mr.FastForward(2 * time.Minute)
	assert.True(t, d.AcquireOnce(ctx, "assignment", "c1"))
}

func TestDeduper_RedisDownAllows(t *testing.T) {
	mr, rdb := newRedis(t)
	d := NewDeduper(rdb, time.Minute, nil)
	mr.Close()

	assert.True(t, d.AcquireOnce(context.Background(), "mention", "c1"))
}

func TestRetryCounter(t *testing.T) {
	mr, rdb := newRedis(t)
	rc := NewRetryCounter(rdb, time.Hour)
	ctx := context.Background()
	key := FormatRetryKey("q", "abc")
	assert.Equal(t, "retry:q:abc", key)

	n, err := rc.IncrementAndGet(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = rc.IncrementAndGet(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.True(t, mr.TTL(key) > 0)

	got, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got)

	require.NoError(t, rc.Reset(ctx, key))
	got, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)
}

func TestIsRetryableError(t *testing.T) {
	var syntaxErr *json.SyntaxError
	err := json.Unmarshal([]byte("{bad"), &struct{}{})
	require.True(t, errors.As(err, &syntaxErr))

	cases := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"json", fmt.Errorf("decode: %w", err), false, "json_decode_error"},
		{"no rows", pgx.ErrNoRows, false, "not_found"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_transient_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"wrapped deadline", fmt.Errorf("send chat request: %w", context.DeadlineExceeded), true, "timeout"},
		{"net timeout", &net.DNSError{Err: "i/o timeout", IsTimeout: true}, true, "network_timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"breaker", fmt.Errorf("llm: %w", circuitbreaker.ErrCircuitBreakerOpen), true, "circuit_open"},
		{"permanent", Permanent(context.DeadlineExceeded), false, "permanent"},
		{"unknown", errors.New("weird"), true, "unknown_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
