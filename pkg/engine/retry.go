package engine

import "time"

const (
	defaultBackoff = 250 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// backoffDelay returns the delay before retry attempt n (1-based), doubling
// the base per attempt and capping at maxBackoff.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBackoff
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}

	if delay > maxBackoff {
		return maxBackoff
	}

	return delay
}
