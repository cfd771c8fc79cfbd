package transport

import (
	"math/rand"
	"time"
)

// nextBackoff returns the reconnect delay for the given consecutive failure
// count: exponential doubling from base, capped at max, with +/-10% jitter so
// a fleet of clients does not reconnect in lockstep.
func nextBackoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}
