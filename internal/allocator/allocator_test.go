package allocator

import (
    "context"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/go-redis/redis/v8"
    "github.com/stretchr/testify/require"

    "github.com/hamzaKhattat/callerid-pool/internal/coordstore"
)

func newTestCoordStore(t *testing.T) *coordstore.Store {
    t.Helper()
    mr, err := miniredis.Run()
    require.NoError(t, err)
    t.Cleanup(mr.Close)

    client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { client.Close() })
    return coordstore.NewFromClient(client, "test")
}

func testConfig() Config {
    return Config{
        ReservationTTL:          5 * time.Minute,
        AgentRateLimitPerMinute: 100,
        CandidateScanLimit:      50,
        RequestDeadline:         2 * time.Second,
        StrictAreaCode:          false,
        LocalRateLimiterBurst:   10,
    }
}

func TestAllocateSucceedsWithTier1Match(t *testing.T) {
    pool := newFakePoolStore(
        candidate("12125550100", "212", 20, 200),
        candidate("13105550100", "310", 20, 200),
    )
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    got, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.Nil(t, aerr)
    require.Equal(t, "12125550100", got.Number)
    require.Equal(t, "212", got.AreaCode)
}

func TestAllocateFallsBackToTier2WhenTier1Exhausted(t *testing.T) {
    pool := newFakePoolStore(
        candidate("13105550100", "310", 20, 200),
    )
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    got, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.Nil(t, aerr)
    require.Equal(t, "13105550100", got.Number)
}

func TestAllocateStrictAreaCodeSkipsTier2(t *testing.T) {
    pool := newFakePoolStore(
        candidate("13105550100", "310", 20, 200),
    )
    coord := newTestCoordStore(t)
    cfg := testConfig()
    cfg.StrictAreaCode = true
    a := New(pool, coord, noopMetrics{}, nil, cfg)

    _, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.NotNil(t, aerr)
    require.Equal(t, KindNoneAvailable, aerr.Kind)
}

func TestAllocateNoneAvailableWhenPoolEmpty(t *testing.T) {
    pool := newFakePoolStore()
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    _, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.NotNil(t, aerr)
    require.Equal(t, KindNoneAvailable, aerr.Kind)
}

func TestAllocateRejectsShortDestination(t *testing.T) {
    pool := newFakePoolStore(candidate("12125550100", "212", 20, 200))
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    _, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12345", Campaign: "camp1", Agent: "agent1",
    })
    require.NotNil(t, aerr)
    require.Equal(t, KindInvalidDestination, aerr.Kind)
}

func TestAllocateRejectsEmptyAgent(t *testing.T) {
    pool := newFakePoolStore(candidate("12125550100", "212", 20, 200))
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    _, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "  ",
    })
    require.NotNil(t, aerr)
    require.Equal(t, KindInvalidInput, aerr.Kind)
}

func TestAllocateRateLimitsAgent(t *testing.T) {
    pool := newFakePoolStore(
        candidate("12125550100", "212", 1000, 1000),
        candidate("12125550200", "212", 1000, 1000),
    )
    coord := newTestCoordStore(t)
    cfg := testConfig()
    cfg.AgentRateLimitPerMinute = 2
    a := New(pool, coord, noopMetrics{}, nil, cfg)

    for i := 0; i < 2; i++ {
        _, aerr := a.Allocate(context.Background(), AllocationRequest{
            Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
        })
        require.Nil(t, aerr)
    }

    _, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.NotNil(t, aerr)
    require.Equal(t, KindRateLimited, aerr.Kind)
    require.Greater(t, aerr.RetryAfter, time.Duration(0))
}

func TestAllocateEnforcesHourlyCap(t *testing.T) {
    pool := newFakePoolStore(
        candidate("12125550100", "212", 1, 200),
        candidate("12125550200", "212", 1, 200),
    )
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    first, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.Nil(t, aerr)
    require.Equal(t, "12125550100", first.Number)

    deleted, aerr := a.Release(context.Background(), first.Number)
    require.Nil(t, aerr)
    require.True(t, deleted)

    // .0100's reservation is free again but its hourly counter already sits
    // at 1 (cap 1); a second allocation must skip it once the increment
    // pushes it to 2 and fall onto .0200 instead.
    second, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551235", Campaign: "camp1", Agent: "agent2",
    })
    require.Nil(t, aerr)
    require.Equal(t, "12125550200", second.Number)
}

func TestAllocateMutualExclusionOnlyOneWinnerPerNumber(t *testing.T) {
    pool := newFakePoolStore(candidate("12125550100", "212", 1000, 1000))
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    const n = 10
    var wg sync.WaitGroup
    results := make(chan *AllocationError, n)
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            _, aerr := a.Allocate(context.Background(), AllocationRequest{
                Destination: "12125551234", Campaign: "camp1", Agent: fmt.Sprintf("agent%d", i),
            })
            results <- aerr
        }(i)
    }
    wg.Wait()
    close(results)

    var wins, losses int
    for aerr := range results {
        if aerr == nil {
            wins++
        } else {
            require.Equal(t, KindNoneAvailable, aerr.Kind)
            losses++
        }
    }
    require.Equal(t, 1, wins)
    require.Equal(t, n-1, losses)
}

func TestReleaseIsIdempotent(t *testing.T) {
    pool := newFakePoolStore(candidate("12125550100", "212", 20, 200))
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    alloc, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.Nil(t, aerr)

    deleted, aerr := a.Release(context.Background(), alloc.Number)
    require.Nil(t, aerr)
    require.True(t, deleted)

    deleted, aerr = a.Release(context.Background(), alloc.Number)
    require.Nil(t, aerr)
    require.False(t, deleted)
}

func TestLookupReservationRoundTrips(t *testing.T) {
    pool := newFakePoolStore(candidate("12125550100", "212", 20, 200))
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    alloc, aerr := a.Allocate(context.Background(), AllocationRequest{
        Destination: "12125551234", Campaign: "camp1", Agent: "agent1",
    })
    require.Nil(t, aerr)

    info, aerr := a.LookupReservation(context.Background(), alloc.Number)
    require.Nil(t, aerr)
    require.NotNil(t, info)
    require.Equal(t, "agent1", info.Agent)
    require.Equal(t, "camp1", info.Campaign)
}

func TestLookupReservationMissingReturnsNilNotError(t *testing.T) {
    pool := newFakePoolStore()
    coord := newTestCoordStore(t)
    a := New(pool, coord, noopMetrics{}, nil, testConfig())

    info, aerr := a.LookupReservation(context.Background(), "19995550100")
    require.Nil(t, aerr)
    require.Nil(t, info)
}
