package thor

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiterConfig configures RateLimiter, per spec §4.11.
type RateLimiterConfig struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimiter enforces a per-client sliding-window request cap, keyed by
// the client's address. Per spec §9, quiet clients are periodically swept
// out of the map so memory does not grow without bound.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu      sync.Mutex
	clients map[string][]time.Time

	stop chan struct{}
}

// NewRateLimiter returns a RateLimiter and starts its background sweep,
// which runs every Window and drops clients with no requests in the
// trailing window. Call Close to stop the sweep.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:     cfg,
		clients: map[string][]time.Time{},
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) sweepLoop() {
	interval := rl.cfg.Window
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	cutoff := time.Now().Add(-rl.cfg.Window)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, timestamps := range rl.clients {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(cutoff) {
			delete(rl.clients, client)
		}
	}
}

// Close stops the background sweep.
func (rl *RateLimiter) Close() {
	close(rl.stop)
}

// Gas returns the rate-limiting middleware.
func (rl *RateLimiter) Gas() Gas {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			client := req.ClientAddr()
			if client == "" {
				client = "unknown"
			}

			now := time.Now()
			cutoff := now.Add(-rl.cfg.Window)

			rl.mu.Lock()
			timestamps := pruneOlderThan(rl.clients[client], cutoff)

			if len(timestamps) >= rl.cfg.MaxRequests {
				oldest := timestamps[0]
				rl.clients[client] = timestamps
				rl.mu.Unlock()

				retryAfter := int(math.Ceil(rl.cfg.Window.Seconds()-now.Sub(oldest).Seconds())) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				res.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return res.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "rate limit exceeded",
					"status_code": http.StatusTooManyRequests,
					"retry_after": retryAfter,
				})
			}

			timestamps = append(timestamps, now)
			rl.clients[client] = timestamps
			remaining := rl.cfg.MaxRequests - len(timestamps)
			rl.mu.Unlock()

			res.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.MaxRequests))
			res.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			res.Header().Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(rl.cfg.Window).Unix(), 10))

			return next(req, res)
		}
	}
}

func pruneOlderThan(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && timestamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append([]time.Time(nil), timestamps[i:]...)
}
