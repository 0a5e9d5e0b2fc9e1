package allocator

import "testing"

func TestLocalLimitersAllowsUpToBurst(t *testing.T) {
    l := newLocalLimiters(60, 3)

    allowed := 0
    for i := 0; i < 5; i++ {
        if l.Allow("agent1") {
            allowed++
        }
    }
    if allowed != 3 {
        t.Errorf("expected 3 allowed within burst, got %d", allowed)
    }
}

func TestLocalLimitersAreIndependentPerAgent(t *testing.T) {
    l := newLocalLimiters(60, 1)

    if !l.Allow("agent1") {
        t.Fatal("expected first agent1 call to be allowed")
    }
    if !l.Allow("agent2") {
        t.Fatal("agent2's limiter must not be exhausted by agent1's traffic")
    }
    if l.Allow("agent1") {
        t.Fatal("agent1's burst of 1 should now be exhausted")
    }
}
