package coordstore

import (
    "context"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/go-redis/redis/v8"
    "github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
    t.Helper()
    mr, err := miniredis.Run()
    require.NoError(t, err)
    t.Cleanup(mr.Close)

    client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { client.Close() })
    return NewFromClient(client, "test")
}

func TestSetIfAbsentSecondCallerLoses(t *testing.T) {
    s := newTestStore(t)
    ctx := context.Background()

    res1, err := s.SetIfAbsent(ctx, "reservation:12125550100", []byte("agent-a"), time.Minute)
    require.NoError(t, err)
    require.Equal(t, Created, res1)

    res2, err := s.SetIfAbsent(ctx, "reservation:12125550100", []byte("agent-b"), time.Minute)
    require.NoError(t, err)
    require.Equal(t, AlreadyExists, res2)

    val, ok, err := s.Get(ctx, "reservation:12125550100")
    require.NoError(t, err)
    require.True(t, ok)
    require.Equal(t, "agent-a", string(val))
}

func TestDeleteIsIdempotent(t *testing.T) {
    s := newTestStore(t)
    ctx := context.Background()

    res, err := s.Delete(ctx, "does-not-exist")
    require.NoError(t, err)
    require.Equal(t, Absent, res)

    _, err = s.SetIfAbsent(ctx, "k", []byte("v"), time.Minute)
    require.NoError(t, err)

    res, err = s.Delete(ctx, "k")
    require.NoError(t, err)
    require.Equal(t, Deleted, res)
}

func TestIncrementWithTTLSetsTTLOnlyOnce(t *testing.T) {
    s := newTestStore(t)
    ctx := context.Background()

    v1, err := s.IncrementWithTTL(ctx, "bucket:2026080114", time.Hour)
    require.NoError(t, err)
    require.EqualValues(t, 1, v1)

    v2, err := s.IncrementWithTTL(ctx, "bucket:2026080114", time.Minute)
    require.NoError(t, err)
    require.EqualValues(t, 2, v2)

    ttl, err := s.client.TTL(ctx, s.key("bucket:2026080114")).Result()
    require.NoError(t, err)
    require.Equal(t, time.Hour, ttl)
}

func TestIncrementWithTTLConcurrentCallersAllCounted(t *testing.T) {
    s := newTestStore(t)
    ctx := context.Background()

    const n = 20
    results := make(chan int64, n)
    for i := 0; i < n; i++ {
        go func() {
            v, err := s.IncrementWithTTL(ctx, "bucket:concurrent", time.Hour)
            require.NoError(t, err)
            results <- v
        }()
    }

    seen := make(map[int64]bool)
    for i := 0; i < n; i++ {
        v := <-results
        require.False(t, seen[v], "value %d observed twice: increments were not serialized", v)
        seen[v] = true
    }
}

func TestDecrementAfterCapViolationCompensates(t *testing.T) {
    s := newTestStore(t)
    ctx := context.Background()

    _, err := s.IncrementWithTTL(ctx, "bucket:cap", time.Hour)
    require.NoError(t, err)
    v, err := s.IncrementWithTTL(ctx, "bucket:cap", time.Hour)
    require.NoError(t, err)
    require.EqualValues(t, 2, v)

    require.NoError(t, s.Decrement(ctx, "bucket:cap"))

    v, err = s.IncrementWithTTL(ctx, "bucket:cap", time.Hour)
    require.NoError(t, err)
    require.EqualValues(t, 2, v)
}

func TestPing(t *testing.T) {
    s := newTestStore(t)
    require.NoError(t, s.Ping(context.Background()))
}
