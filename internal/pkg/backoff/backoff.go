// Package backoff computes retry delays for failed pipeline stages.
package backoff

import (
	"math/rand"
	"time"
)

const DefaultMax = 5 * time.Minute

// Delay doubles base for every attempt, caps the result at max and adds
// up to 25% jitter in either direction. Attempt 0 means no delay.
func Delay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if max <= 0 {
		max = DefaultMax
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > max || d <= 0 {
		d = max
	}
	half := int64(d) / 2
	if half <= 0 {
		return d
	}
	jitter := time.Duration(rand.Int63n(half)) - d/4
	return d + jitter
}
