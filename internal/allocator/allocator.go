// Package allocator is the core of this repository: it converts an
// AllocationRequest into either an Allocation or a typed AllocationError,
// consulting the Pool Store and Coordination Store and mutating both
// before it returns (spec §4.1).
package allocator

import (
    "context"
    "encoding/json"
    "time"

    "github.com/hamzaKhattat/callerid-pool/internal/coordstore"
    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
    apperrors "github.com/hamzaKhattat/callerid-pool/pkg/errors"
    "github.com/hamzaKhattat/callerid-pool/pkg/logger"
)

// Config holds the Allocator's run-time tunables. The default caps for new
// caller-IDs are not among them; the Allocator only reads the caps stored
// on each candidate.
type Config struct {
    ReservationTTL          time.Duration
    AgentRateLimitPerMinute int
    CandidateScanLimit      int
    RequestDeadline         time.Duration
    StrictAreaCode          bool
    LocalRateLimiterBurst   int
}

// Allocator is the pure decision engine described by spec §4.1.
type Allocator struct {
    pool    PoolStore
    coord   CoordStore
    metrics MetricsInterface
    history *HistoryWriter
    config  Config

    local *localLimiters
    now   func() time.Time
}

// New constructs an Allocator. history may be nil to disable the
// supplemented allocation-history feed.
func New(pool PoolStore, coord CoordStore, metrics MetricsInterface, history *HistoryWriter, cfg Config) *Allocator {
    return &Allocator{
        pool:    pool,
        coord:   coord,
        metrics: metrics,
        history: history,
        config:  cfg,
        local:   newLocalLimiters(cfg.AgentRateLimitPerMinute, cfg.LocalRateLimiterBurst),
        now:     time.Now,
    }
}

type reservationPayload struct {
    Agent       string    `json:"agent"`
    Campaign    string    `json:"campaign"`
    Destination string    `json:"destination"`
    CreatedAt   time.Time `json:"created_at"`
    ExpiresAt   time.Time `json:"expires_at"`
}

// Allocate implements spec §4.1: validate, rate-limit, query candidates,
// contend for a reservation, enforce caps, and return either a winning
// allocation or a typed failure.
func (a *Allocator) Allocate(ctx context.Context, req AllocationRequest) (*Allocation, *AllocationError) {
    start := a.now()
    ctx, cancel := context.WithTimeout(ctx, a.config.RequestDeadline)
    defer cancel()

    log := logger.WithContext(ctx).WithFields(map[string]interface{}{
        "agent":    req.Agent,
        "campaign": req.Campaign,
    })

    // Validation — no state mutation on failure (spec §7).
    agent, verr := normalizeTrim(req.Agent)
    if verr != nil {
        return nil, verr
    }
    campaign, verr := normalizeTrim(req.Campaign)
    if verr != nil {
        return nil, verr
    }
    destination, verr := normalizeDestination(req.Destination)
    if verr != nil {
        return nil, verr
    }

    // Phase 1 — rate limit.
    if aerr := a.checkRateLimit(ctx, agent); aerr != nil {
        a.recordHistory(ctx, poolstore.AllocationHistory{
            Destination: destination, Campaign: campaign, Agent: agent,
            Outcome: poolstore.OutcomeRateLimited, LatencyMS: a.elapsedMS(start),
        })
        a.metrics.IncrementCounter("allocator_requests_total", map[string]string{"outcome": "rate_limited"})
        return nil, aerr
    }

    // Phase 2 — candidate query (tier 1: area code match, tier 2: any).
    areaCode := destinationAreaCode(destination)

    candidates, aerr := a.queryTier(ctx, areaCode)
    if aerr != nil {
        return nil, aerr
    }

    allocation, aerr := a.contend(ctx, candidates, destination, campaign, agent)
    if aerr == nil {
        a.metrics.IncrementCounter("allocator_requests_total", map[string]string{"outcome": "success"})
        a.recordHistory(ctx, poolstore.AllocationHistory{
            Number: allocation.Number, Destination: destination, Campaign: campaign, Agent: agent,
            Outcome: poolstore.OutcomeSuccess, LatencyMS: a.elapsedMS(start),
        })
        return allocation, nil
    }
    if aerr.Kind != KindNoneAvailable || areaCode == "" || a.config.StrictAreaCode {
        if aerr.Kind == KindNoneAvailable {
            a.recordNoneAvailable(ctx, destination, campaign, agent, start)
        }
        return nil, aerr
    }

    // Tier 1 exhausted with no winner: fall back to tier 2 (any area code).
    candidates, aerr = a.queryTier(ctx, "")
    if aerr != nil {
        return nil, aerr
    }
    allocation, aerr = a.contend(ctx, candidates, destination, campaign, agent)
    if aerr != nil {
        if aerr.Kind == KindNoneAvailable {
            a.recordNoneAvailable(ctx, destination, campaign, agent, start)
        }
        return nil, aerr
    }

    a.metrics.IncrementCounter("allocator_requests_total", map[string]string{"outcome": "success"})
    a.recordHistory(ctx, poolstore.AllocationHistory{
        Number: allocation.Number, Destination: destination, Campaign: campaign, Agent: agent,
        Outcome: poolstore.OutcomeSuccess, LatencyMS: a.elapsedMS(start),
    })
    log.WithField("number", allocation.Number).Debug("allocation succeeded")
    return allocation, nil
}

func (a *Allocator) recordNoneAvailable(ctx context.Context, destination, campaign, agent string, start time.Time) {
    a.metrics.IncrementCounter("allocator_requests_total", map[string]string{"outcome": "none_available"})
    a.recordHistory(ctx, poolstore.AllocationHistory{
        Destination: destination, Campaign: campaign, Agent: agent,
        Outcome: poolstore.OutcomeNoneAvailable, LatencyMS: a.elapsedMS(start),
    })
}

func (a *Allocator) elapsedMS(start time.Time) int64 {
    return a.now().Sub(start).Milliseconds()
}

func (a *Allocator) recordHistory(ctx context.Context, h poolstore.AllocationHistory) {
    if a.history == nil {
        return
    }
    a.history.Record(h)
    _ = ctx
}

// checkRateLimit implements Phase 1 (spec §4.1): increment the
// current-minute counter before any candidate is considered, so scan cost
// cannot be used to amplify abuse. On a Coordination Store failure it
// engages Degraded Mode (see SPEC_FULL.md) rather than failing every
// request.
func (a *Allocator) checkRateLimit(ctx context.Context, agent string) *AllocationError {
    key := rateLimitKey(agent, a.now())
    v, err := a.coord.IncrementWithTTL(ctx, key, rateLimitTTL)
    if err != nil {
        logger.WithContext(ctx).WithError(err).WithField("agent", agent).
            Warn("coordination store unavailable for rate limit, falling back to local limiter")
        a.metrics.IncrementCounter("allocator_degraded_mode_total", map[string]string{"phase": "rate_limit"})
        if !a.local.Allow(agent) {
            return &AllocationError{Kind: KindRateLimited, Message: "agent rate limit exceeded (degraded mode)", Agent: agent, RetryAfter: time.Second}
        }
        return nil
    }
    if int(v) > a.config.AgentRateLimitPerMinute {
        retryAfter := secondsUntilNextMinute(a.now())
        return &AllocationError{
            Kind:       KindRateLimited,
            Message:    "agent rate limit exceeded",
            Agent:      agent,
            RetryAfter: retryAfter,
        }
    }
    return nil
}

func secondsUntilNextMinute(t time.Time) time.Duration {
    next := t.Truncate(time.Minute).Add(time.Minute)
    return next.Sub(t)
}

// queryTier runs Phase 2's candidate query for one tier.
func (a *Allocator) queryTier(ctx context.Context, areaCode string) ([]poolstore.CallerID, *AllocationError) {
    candidates, err := a.pool.QueryCandidates(ctx, areaCode, a.config.CandidateScanLimit)
    if err != nil {
        return nil, storeErrToAllocErr(err)
    }
    return candidates, nil
}

// contend implements Phase 3 (spec §4.1): iterate candidates in LRU order,
// attempting a conditional reservation create for each, and enforce caps
// on the first winner.
func (a *Allocator) contend(ctx context.Context, candidates []poolstore.CallerID, destination, campaign, agent string) (*Allocation, *AllocationError) {
    for _, c := range candidates {
        now := a.now()
        payload := reservationPayload{
            Agent: agent, Campaign: campaign, Destination: destination,
            CreatedAt: now, ExpiresAt: now.Add(a.config.ReservationTTL),
        }
        data, _ := json.Marshal(payload)

        res, err := a.coord.SetIfAbsent(ctx, reservationKey(c.Number), data, a.config.ReservationTTL)
        if err != nil {
            return nil, storeErrToAllocErr(err)
        }
        if res == coordstore.AlreadyExists {
            continue // Phase 3b: already reserved, try next candidate.
        }

        // Phase 3c: cap enforcement.
        won, aerr := a.enforceCaps(ctx, c, now)
        if aerr != nil {
            return nil, aerr
        }
        if !won {
            continue // cap exceeded: reservation already released, try next.
        }

        // Phase 3d: best-effort LRU persistence; failure is logged, not
        // propagated (spec §4.1).
        if err := a.pool.UpdateLastUsed(ctx, c.Number, now); err != nil {
            logger.WithContext(ctx).WithError(err).WithField("number", c.Number).
                Warn("failed to persist last_used_at, allocation still succeeds")
        }

        a.metrics.SetGauge("allocator_last_allocation_timestamp", float64(now.Unix()), map[string]string{"number": c.Number})

        return &Allocation{
            Number:      c.Number,
            AreaCode:    c.AreaCode,
            Carrier:     c.Carrier,
            TTLSeconds:  int(a.config.ReservationTTL.Seconds()),
            Destination: destination,
            Campaign:    campaign,
            Agent:       agent,
            AllocatedAt: now,
        }, nil
    }

    return nil, newErr(KindNoneAvailable, "no caller-ID available for this request")
}

// enforceCaps implements spec §4.1 Phase 3c: increment hourly and daily
// counters; if either exceeds its cap, compensate (best-effort decrement)
// and release the reservation so the candidate is skipped.
func (a *Allocator) enforceCaps(ctx context.Context, c poolstore.CallerID, now time.Time) (won bool, aerr *AllocationError) {
    hKey := hourlyUsageKey(c.Number, now)
    dKey := dailyUsageKey(c.Number, now)

    hourly, err := a.coord.IncrementWithTTL(ctx, hKey, hourlyBucketTTL)
    if err != nil {
        a.releaseReservation(ctx, c.Number)
        return false, storeErrToAllocErr(err)
    }

    daily, err := a.coord.IncrementWithTTL(ctx, dKey, dailyBucketTTL)
    if err != nil {
        _ = a.coord.Decrement(ctx, hKey)
        a.releaseReservation(ctx, c.Number)
        return false, storeErrToAllocErr(err)
    }

    if int(hourly) > c.HourlyCap || int(daily) > c.DailyCap {
        // Cap-violation compensation is best-effort; TTL heals any drift
        // left behind (spec §9).
        if int(hourly) > c.HourlyCap {
            _ = a.coord.Decrement(ctx, hKey)
        }
        if int(daily) > c.DailyCap {
            _ = a.coord.Decrement(ctx, dKey)
        }
        a.releaseReservation(ctx, c.Number)
        a.metrics.IncrementCounter("allocator_cap_rejections_total", map[string]string{"number": c.Number})
        return false, nil
    }

    return true, nil
}

func (a *Allocator) releaseReservation(ctx context.Context, number string) {
    if _, err := a.coord.Delete(ctx, reservationKey(number)); err != nil {
        logger.WithContext(ctx).WithError(err).WithField("number", number).
            Warn("failed to release reservation after cap rejection")
    }
}

// Release implements spec §4.1's Release operation: idempotent deletion of
// a reservation. It never touches usage counters (spec §7: counters
// reflect attempts, not eventual call success).
func (a *Allocator) Release(ctx context.Context, number string) (deleted bool, aerr *AllocationError) {
    res, err := a.coord.Delete(ctx, reservationKey(number))
    if err != nil {
        return false, storeErrToAllocErr(err)
    }
    return res == coordstore.Deleted, nil
}

// LookupReservation implements spec §4.1's read-only lookup operation.
func (a *Allocator) LookupReservation(ctx context.Context, number string) (*ReservationInfo, *AllocationError) {
    data, ok, err := a.coord.Get(ctx, reservationKey(number))
    if err != nil {
        return nil, storeErrToAllocErr(err)
    }
    if !ok {
        return nil, nil
    }
    var p reservationPayload
    if err := json.Unmarshal(data, &p); err != nil {
        return nil, newErr(KindUnavailable, "corrupt reservation payload")
    }
    return &ReservationInfo{
        Number: number, Agent: p.Agent, Campaign: p.Campaign,
        Destination: p.Destination, CreatedAt: p.CreatedAt, ExpiresAt: p.ExpiresAt,
    }, nil
}

// storeErrToAllocErr maps a Pool/Coordination Store transport failure to
// the Unavailable kind (spec §7): store internals never leak to callers.
func storeErrToAllocErr(err error) *AllocationError {
    msg := "upstream store unavailable"
    if ae, ok := err.(*apperrors.AppError); ok {
        msg = ae.Message
    }
    return &AllocationError{Kind: KindUnavailable, Message: msg, Cause: err}
}
