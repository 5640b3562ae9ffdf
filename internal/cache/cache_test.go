package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
)

type payload struct {
	Text  string   `json:"text"`
	Items []string `json:"items"`
}

func TestGetOrCompute_Memoizes(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(100, time.Hour))

	var calls int
	compute := func(context.Context) (payload, error) {
		calls++
		return payload{Text: "hello", Items: []string{"a", "b"}}, nil
	}

	key := Key("chunk", map[string]any{"prompt": "p", "statics": "s"})
	first, err := GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)
	second, err := GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "b"}, second.Items)
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(100, time.Hour))
	boom := errors.New("boom")

	var calls int
	key := Key("expand", map[string]any{"text": "x"})

	_, err := GetOrCompute(ctx, c, key, func(context.Context) (string, error) {
		calls++
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	got, err := GetOrCompute(ctx, c, key, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_NilCache(t *testing.T) {
	var c *Cache
	var calls int
	for i := 0; i < 3; i++ {
		got, err := GetOrCompute(context.Background(), c, "k", func(context.Context) (int, error) {
			calls++
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}
	assert.Equal(t, 3, calls)
	assert.NoError(t, c.Clear(context.Background()))
	assert.NoError(t, c.Close())
}

func TestGetOrCompute_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(100, time.Hour))
	key := Key("format", map[string]any{"prompt": "same"})

	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrCompute(ctx, c, key, func(context.Context) (string, error) {
				calls.Add(1)
				return "format rules", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "format rules", r)
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestCache_UndecodableEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)
	tl := logging.NewTestLogger()
	c := New(store, WithLogger(tl.Logger))

	require.NoError(t, store.Set(ctx, "k", []byte("{not json"), 0))

	var dst payload
	assert.False(t, c.Get(ctx, "k", &dst))
	tl.AssertLogged(t, zapcore.WarnLevel, "undecodable cache entry")
}

func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(10, time.Hour))

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)

	var v int
	require.True(t, c.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)

	require.NoError(t, c.Clear(ctx))
	assert.False(t, c.Get(ctx, "a", &v))
	assert.False(t, c.Get(ctx, "b", &v))
}

func TestCache_Metrics(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics()
	c := New(NewMemoryStore(10, time.Hour), WithMetrics(m))

	hits := testutil.ToFloat64(m.HitsTotal)
	misses := testutil.ToFloat64(m.MissesTotal)

	var v string
	assert.False(t, c.Get(ctx, "metrics-key", &v))
	c.Set(ctx, "metrics-key", "value")
	assert.True(t, c.Get(ctx, "metrics-key", &v))

	assert.Equal(t, hits+1, testutil.ToFloat64(m.HitsTotal))
	assert.Equal(t, misses+1, testutil.ToFloat64(m.MissesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Size))
}

func TestKey(t *testing.T) {
	a := map[string]any{}
	a["prompt"] = "hello"
	a["statics"] = "- 0: x"

	b := map[string]any{}
	b["statics"] = "- 0: x"
	b["prompt"] = "hello"

	assert.Equal(t, Key("chunk", a), Key("chunk", b))
	assert.NotEqual(t, Key("chunk", a), Key("expand", a))
	assert.NotEqual(t, Key("chunk", a), Key("chunk", map[string]any{"prompt": "hello!", "statics": "- 0: x"}))
	assert.Contains(t, Key("chunk", a), "chunk:")
	assert.Len(t, Key("chunk", a), len("chunk:")+64)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, 20*time.Millisecond)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := s.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, time.Hour)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := s.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted")
	_, ok, _ = s.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func unreachableRedis(t *testing.T, failures uint32) *RedisStore {
	t.Helper()
	s := NewRedisStore(RedisConfig{
		Addr:            "127.0.0.1:1",
		DialTimeout:     100 * time.Millisecond,
		ReadTimeout:     100 * time.Millisecond,
		WriteTimeout:    100 * time.Millisecond,
		MaxRetries:      -1,
		KeyPrefix:       "promptzip-test:",
		BreakerFailures: failures,
		BreakerTimeout:  time.Minute,
	}, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCompute_UnreachableRedisFallsBack(t *testing.T) {
	ctx := context.Background()
	tl := logging.NewTestLogger()
	c := New(unreachableRedis(t, 100), WithLogger(tl.Logger))

	var calls int
	for i := 0; i < 2; i++ {
		got, err := GetOrCompute(ctx, c, "k", func(context.Context) (string, error) {
			calls++
			return "computed", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "computed", got)
	}

	assert.Equal(t, 2, calls)
	tl.AssertLogged(t, zapcore.WarnLevel, "cache read failed")
	tl.AssertLogged(t, zapcore.WarnLevel, "cache write failed")
}

func TestRedisStore_BreakerOpens(t *testing.T) {
	ctx := context.Background()
	s := unreachableRedis(t, 2)

	for i := 0; i < 2; i++ {
		_, _, err := s.Get(ctx, "k")
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, _, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
