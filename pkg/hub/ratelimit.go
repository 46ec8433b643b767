package hub

import (
	"time"

	"golang.org/x/time/rate"
)

// maxRequestsPerWindow and requestWindow implement §4.6's "≤ 100 requests
// per rolling 60s" as a token bucket: refill continuously at
// maxRequestsPerWindow/requestWindow, with a burst capacity equal to the
// full window allowance so a session that has been idle can still issue a
// full window's worth of requests immediately.
const (
	maxRequestsPerWindow = 100
	requestWindow        = 60 * time.Second

	// maxSubscriptions is the per-session concurrent subscription cap (§4.6).
	maxSubscriptions = 50
)

func newRequestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(requestWindow/maxRequestsPerWindow), maxRequestsPerWindow)
}
