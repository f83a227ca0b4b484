package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type RateConfig struct {
	PerSecond       float64       `split_words:"true" default:"10"`
	Burst           int           `split_words:"true" default:"20"`
	IdleTTL         time.Duration `split_words:"true" default:"10m"`
	CleanupInterval time.Duration `split_words:"true" default:"1m"`
}

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key. Buckets unused for
// longer than the idle TTL are dropped by Prune.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	limits map[string]*clientLimit
}

// NewRateLimiter returns nil when PerSecond is not positive, which disables
// limiting.
func NewRateLimiter(cfg RateConfig) *RateLimiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Every(time.Duration(float64(time.Second) / cfg.PerSecond)),
		burst:    burst,
		idleTTL:  cfg.IdleTTL,
		interval: cfg.CleanupInterval,
		now:      time.Now,
		limits:   make(map[string]*clientLimit),
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limits[key]
	if !ok {
		entry = &clientLimit{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limits[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Prune drops buckets not used within idle and reports how many went.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	pruned := 0
	for key, entry := range rl.limits {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limits, key)
			pruned++
		}
	}
	return pruned
}

// Start prunes idle buckets every cleanup interval until ctx is done. It is
// a no-op on a nil limiter or when the TTL or interval is not positive.
func (rl *RateLimiter) Start(ctx context.Context) {
	if rl == nil || rl.idleTTL <= 0 || rl.interval <= 0 {
		return
	}
	logger := log.Logger.With().Str("component", "api.ratelimit").Logger()

	go func() {
		ticker := time.NewTicker(rl.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pruned := rl.Prune(rl.idleTTL); pruned > 0 {
					logger.Debug().Int("pruned", pruned).Msg("idle rate limiters dropped")
				}
			}
		}
	}()
}

// Middleware rejects requests over the client's budget with 429. Clients are
// keyed by their real IP.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl != nil && !rl.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, errorBody{
					Error:   "Too many requests",
					Details: "Rate limit exceeded, slow down",
				})
			}
			return next(c)
		}
	}
}
