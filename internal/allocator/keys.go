package allocator

import (
    "fmt"
    "time"
)

// Coordination Store key layout — part of the external contract (spec
// §4.3): operational tooling observes these names, so they must not
// change shape even when the internal representation does.

func reservationKey(number string) string {
    return fmt.Sprintf("reservation:%s", number)
}

func hourlyUsageKey(number string, at time.Time) string {
    return fmt.Sprintf("usage:hourly:%s:%s", number, at.UTC().Format("2006010215"))
}

func dailyUsageKey(number string, at time.Time) string {
    return fmt.Sprintf("usage:daily:%s:%s", number, at.UTC().Format("20060102"))
}

func rateLimitKey(agent string, at time.Time) string {
    return fmt.Sprintf("ratelimit:%s:%s", agent, at.UTC().Format("200601021504"))
}

const (
    hourlyBucketTTL = 3700 * time.Second
    dailyBucketTTL  = 90000 * time.Second
    rateLimitTTL    = 60 * time.Second
)
