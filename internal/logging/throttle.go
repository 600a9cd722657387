package logging

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle gates repetitive diagnostics, e.g. key-resolution failures
// caused by a misconfigured field path that would otherwise be reported at
// call rate.
type Throttle struct {
	lim *rate.Limiter
}

// NewThrottle returns a Throttle that allows one event per interval with
// the given burst.
func NewThrottle(interval time.Duration, burst int) *Throttle {
	return &Throttle{lim: rate.NewLimiter(rate.Every(interval), burst)}
}

// Allow reports whether one more event may be logged now.
func (t *Throttle) Allow() bool {
	return t.lim.Allow()
}
