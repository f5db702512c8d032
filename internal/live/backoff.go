package live

import (
	"math"
	"time"
)

// maxDelay is where Delay saturates.
const maxDelay = time.Duration(math.MaxInt64)

// Delay returns the wait before reconnect attempt n (counted from 1):
// base * 2^(n-1), saturating at maxDelay.
func Delay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 || base <= 0 {
		return base
	}
	shift := attempt - 1
	if shift >= 63 || base > maxDelay>>shift {
		return maxDelay
	}
	return base << shift
}

// Backoff counts consecutive connection failures.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int

	attempt int
}

// Next records a failure. It returns the delay before the next attempt, or
// false once MaxAttempts reconnects have already been scheduled.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= b.MaxAttempts {
		return 0, false
	}
	b.attempt++
	return Delay(b.Base, b.attempt), true
}

// Reset forgets all failures.
func (b *Backoff) Reset() { b.attempt = 0 }

// Attempt is the number of reconnects scheduled since the last reset.
func (b *Backoff) Attempt() int { return b.attempt }
