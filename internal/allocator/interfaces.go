package allocator

import (
    "context"
    "time"

    "github.com/hamzaKhattat/callerid-pool/internal/coordstore"
    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
)

// PoolStore is the subset of internal/poolstore's Store the Allocator
// depends on (spec §4.2). Kept as an interface so the engine can be tested
// against a fake and so the concrete MySQL adapter stays swappable.
type PoolStore interface {
    QueryCandidates(ctx context.Context, areaCode string, limit int) ([]poolstore.CallerID, error)
    GetByNumber(ctx context.Context, number string) (*poolstore.CallerID, error)
    UpdateLastUsed(ctx context.Context, number string, at time.Time) error
}

// CoordStore is the subset of internal/coordstore's Store the Allocator
// depends on (spec §4.3).
type CoordStore interface {
    SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (coordstore.SetIfAbsentResult, error)
    Get(ctx context.Context, key string) ([]byte, bool, error)
    Delete(ctx context.Context, key string) (coordstore.DeleteResult, error)
    IncrementWithTTL(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error)
    Decrement(ctx context.Context, key string) error
}

// MetricsInterface lets the Allocator share one metrics backend with the
// rest of the service.
type MetricsInterface interface {
    IncrementCounter(name string, labels map[string]string)
    ObserveHistogram(name string, value float64, labels map[string]string)
    SetGauge(name string, value float64, labels map[string]string)
}

// HistorySink receives a fire-and-forget record of each allocation attempt
// (see internal/allocator.HistoryWriter).
type HistorySink interface {
    RecordAllocation(ctx context.Context, h poolstore.AllocationHistory) error
}
