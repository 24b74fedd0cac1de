package backoff

import "time"

// Next returns the delay to wait before reconnect attempt `attempt`.
// Attempt counting starts at 1 for the first retry after an initial failure:
//
//	delay = min(max, base * 2^(attempt-1))
//
// The doubling is overflow-safe; once the cap is reached all later attempts
// return max.
func Next(attempt int, base, max time.Duration) time.Duration {
    if base <= 0 {
        return 0
    }
    if attempt < 1 {
        attempt = 1
    }
    d := base
    for i := 1; i < attempt; i++ {
        d *= 2
        if d >= max || d <= 0 { // d <= 0 guards duration overflow
            return max
        }
    }
    if max > 0 && d > max {
        return max
    }
    return d
}

// Policy bounds the reconnect schedule of the lifecycle manager. A zero
// MaxAttempts means unbounded retries.
type Policy struct {
    Base        time.Duration
    Max         time.Duration
    MaxAttempts int
}

// Delay returns the wait duration before the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
    return Next(attempt, p.Base, p.Max)
}

// Exhausted reports whether the given attempt exceeds the configured ceiling.
// When it does, the caller stops scheduling, resets its counter and goes idle
// until an external event restarts the cycle from attempt 1.
func (p Policy) Exhausted(attempt int) bool {
    return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
