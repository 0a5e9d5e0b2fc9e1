package allocator

import "strings"

// normalizeDigits strips every non-digit character from s.
func normalizeDigits(s string) string {
    var b strings.Builder
    b.Grow(len(s))
    for _, r := range s {
        if r >= '0' && r <= '9' {
            b.WriteRune(r)
        }
    }
    return b.String()
}

// normalizeDestination validates and normalizes a destination number per
// spec §4.1: 7-15 digits after stripping non-digits, shorter is rejected.
func normalizeDestination(raw string) (string, *AllocationError) {
    digits := normalizeDigits(raw)
    if len(digits) < 7 || len(digits) > 15 {
        return "", newErr(KindInvalidDestination, "destination must be 7-15 digits")
    }
    return digits, nil
}

// destinationAreaCode extracts the first 3 digits of a normalized
// destination per spec §4.1: an 11-digit destination starting with "1" has
// the leading "1" stripped first so it matches its 10-digit counterpart.
// A destination shorter than 10 digits (post-strip) has no area code.
func destinationAreaCode(digits string) string {
    d := digits
    if len(d) == 11 && d[0] == '1' {
        d = d[1:]
    }
    if len(d) < 10 {
        return ""
    }
    return d[:3]
}

// normalizeTrim validates campaign/agent: non-empty after trimming.
func normalizeTrim(raw string) (string, *AllocationError) {
    s := strings.TrimSpace(raw)
    if s == "" {
        return "", newErr(KindInvalidInput, "must not be empty")
    }
    return s, nil
}
