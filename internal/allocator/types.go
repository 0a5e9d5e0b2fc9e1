package allocator

import "time"

// AllocationRequest is the caller's input to Allocate (spec §4.1).
type AllocationRequest struct {
    Destination string
    Campaign    string
    Agent       string
}

// Allocation is the successful result of Allocate (spec §6).
type Allocation struct {
    Number      string    `json:"number"`
    AreaCode    string    `json:"area_code,omitempty"`
    Carrier     string    `json:"carrier,omitempty"`
    TTLSeconds  int       `json:"ttl_seconds"`
    Destination string    `json:"destination"`
    Campaign    string    `json:"campaign"`
    Agent       string    `json:"agent"`
    AllocatedAt time.Time `json:"allocated_at"`
}

// ErrorKind is the machine-readable failure taxonomy of spec §7.
type ErrorKind string

const (
    KindInvalidInput       ErrorKind = "InvalidInput"
    KindInvalidDestination ErrorKind = "InvalidDestination"
    KindRateLimited        ErrorKind = "RateLimited"
    KindNoneAvailable      ErrorKind = "NoneAvailable"
    KindUnavailable        ErrorKind = "Unavailable"
    KindConflict           ErrorKind = "Conflict"
)

// AllocationError is the typed failure Allocate returns instead of a bare
// error, carrying enough structure for an HTTP layer to map it to a status
// code without string-matching (spec §7).
type AllocationError struct {
    Kind       ErrorKind
    Message    string
    Agent      string
    RetryAfter time.Duration
    Cause      error
}

func (e *AllocationError) Error() string {
    return string(e.Kind) + ": " + e.Message
}

func (e *AllocationError) Unwrap() error {
    return e.Cause
}

func newErr(kind ErrorKind, msg string) *AllocationError {
    return &AllocationError{Kind: kind, Message: msg}
}

// ReservationInfo is what LookupReservation returns.
type ReservationInfo struct {
    Number      string    `json:"number"`
    Agent       string    `json:"agent"`
    Campaign    string    `json:"campaign"`
    Destination string    `json:"destination"`
    CreatedAt   time.Time `json:"created_at"`
    ExpiresAt   time.Time `json:"expires_at"`
}
