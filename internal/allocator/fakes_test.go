package allocator

import (
    "context"
    "sync"
    "time"

    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
)

// fakePoolStore is an in-memory PoolStore double driven entirely by the
// fixed candidate list a test configures, the way a fake transport would
// stand in for a live MySQL connection.
type fakePoolStore struct {
    mu         sync.Mutex
    candidates []poolstore.CallerID
    lastUsed   map[string]time.Time
    queryErr   error
    updateErr  error
}

func newFakePoolStore(candidates ...poolstore.CallerID) *fakePoolStore {
    return &fakePoolStore{candidates: candidates, lastUsed: make(map[string]time.Time)}
}

func (f *fakePoolStore) QueryCandidates(ctx context.Context, areaCode string, limit int) ([]poolstore.CallerID, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.queryErr != nil {
        return nil, f.queryErr
    }
    var out []poolstore.CallerID
    for _, c := range f.candidates {
        if areaCode != "" && c.AreaCode != areaCode {
            continue
        }
        out = append(out, c)
        if len(out) == limit {
            break
        }
    }
    return out, nil
}

func (f *fakePoolStore) GetByNumber(ctx context.Context, number string) (*poolstore.CallerID, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, c := range f.candidates {
        if c.Number == number {
            cp := c
            return &cp, nil
        }
    }
    return nil, nil
}

func (f *fakePoolStore) UpdateLastUsed(ctx context.Context, number string, at time.Time) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.updateErr != nil {
        return f.updateErr
    }
    f.lastUsed[number] = at
    return nil
}

func (f *fakePoolStore) RecordAllocation(ctx context.Context, h poolstore.AllocationHistory) error {
    return nil
}

// noopMetrics discards every call, the way a test would stub out a
// Prometheus backend it doesn't care to assert against.
type noopMetrics struct{}

func (noopMetrics) IncrementCounter(name string, labels map[string]string)            {}
func (noopMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {}
func (noopMetrics) SetGauge(name string, value float64, labels map[string]string)     {}

func candidate(number, areaCode string, hourlyCap, dailyCap int) poolstore.CallerID {
    return poolstore.CallerID{
        Number: number, AreaCode: areaCode, Active: true,
        HourlyCap: hourlyCap, DailyCap: dailyCap,
    }
}
