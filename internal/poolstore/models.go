// Package poolstore is the Pool Store adapter: the authoritative, durable
// catalog of caller-IDs and their static configuration. It is the only
// component permitted to hold admin CRUD semantics (spec §1 places admin
// CRUD for caller-IDs out of the allocator's scope, not out of the
// repository's).
package poolstore

import (
    "database/sql/driver"
    "encoding/json"
    "time"
)

// Metadata is an opaque key/value blob attached to a CallerID. The
// Allocator never reads it; it exists for external tooling.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
    if m == nil {
        return "{}", nil
    }
    return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
    if value == nil {
        *m = make(Metadata)
        return nil
    }
    bytes, ok := value.([]byte)
    if !ok {
        return nil
    }
    if len(bytes) == 0 {
        *m = make(Metadata)
        return nil
    }
    return json.Unmarshal(bytes, m)
}

// CallerID represents one dialable number in the rotation pool (spec §3).
type CallerID struct {
    Number      string     `json:"number" db:"number"`
    AreaCode    string     `json:"area_code,omitempty" db:"area_code"`
    Carrier     string     `json:"carrier,omitempty" db:"carrier"`
    HourlyCap   int        `json:"hourly_cap" db:"hourly_cap"`
    DailyCap    int        `json:"daily_cap" db:"daily_cap"`
    LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
    Active      bool       `json:"active" db:"active"`
    Metadata    Metadata   `json:"metadata,omitempty" db:"metadata"`
    CreatedAt   time.Time  `json:"created_at" db:"created_at"`
    UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// AllocationOutcome records what the Allocator ultimately decided, for the
// append-only history table consumed by dashboards.
type AllocationOutcome string

const (
    OutcomeSuccess       AllocationOutcome = "SUCCESS"
    OutcomeNoneAvailable AllocationOutcome = "NONE_AVAILABLE"
    OutcomeRateLimited   AllocationOutcome = "RATE_LIMITED"
)

// AllocationHistory is an append-only log row per granted or denied
// allocation attempt (spec §3, supplemented beyond spec's "optional"
// framing; see SPEC_FULL.md).
type AllocationHistory struct {
    ID          int64             `json:"id" db:"id"`
    Number      string            `json:"number,omitempty" db:"number"`
    Destination string            `json:"destination" db:"destination"`
    Campaign    string            `json:"campaign" db:"campaign"`
    Agent       string            `json:"agent" db:"agent"`
    Outcome     AllocationOutcome `json:"outcome" db:"outcome"`
    LatencyMS   int64             `json:"latency_ms" db:"latency_ms"`
    CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}
