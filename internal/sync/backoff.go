// Package sync drains the local sync queue to the remote backend.
package sync

import "time"

// Backoff computes the exponential retry delay for a given attempt count:
// base * 2^attempts, capped. Attempt 0 waits base. The same curve drives the
// connectivity monitor's reconnect schedule and the print retry gate, each
// with its own base and cap.
func Backoff(attempts int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
