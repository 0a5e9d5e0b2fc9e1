package allocator

import (
    "sync"

    "golang.org/x/time/rate"
)

// localLimiters is the Degraded Mode fallback (see SPEC_FULL.md
// "Supplemented features"): when the Coordination Store cannot service
// Phase 1's increment, each agent gets an in-process token bucket instead
// of either failing closed on every request or admitting them unbounded.
// It is intentionally approximate — it does not survive a restart and is
// not shared across instances — but it still sheds load.
type localLimiters struct {
    mu       sync.Mutex
    perAgent map[string]*rate.Limiter
    ratePerS float64
    burst    int
    maxAgents int
}

func newLocalLimiters(perMinute, burst int) *localLimiters {
    return &localLimiters{
        perAgent:  make(map[string]*rate.Limiter),
        ratePerS:  float64(perMinute) / 60.0,
        burst:     burst,
        maxAgents: 10000,
    }
}

func (l *localLimiters) Allow(agent string) bool {
    l.mu.Lock()
    defer l.mu.Unlock()

    lim, ok := l.perAgent[agent]
    if !ok {
        if len(l.perAgent) >= l.maxAgents {
            // Evict an arbitrary entry rather than grow unbounded; map
            // iteration order is random enough for this purpose.
            for k := range l.perAgent {
                delete(l.perAgent, k)
                break
            }
        }
        lim = rate.NewLimiter(rate.Limit(l.ratePerS), l.burst)
        l.perAgent[agent] = lim
    }
    return lim.Allow()
}
