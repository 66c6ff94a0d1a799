package resilience

import (
	"math/rand"
	"time"
)

// maxBackoffShift bounds the exponent so large attempt counts cannot overflow.
const maxBackoffShift = 16

// Backoff returns base doubled for every attempt after the first, spread by
// ±jitterPct (0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	d := base << uint(shift)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration(spread*(2*rand.Float64()-1))
}
