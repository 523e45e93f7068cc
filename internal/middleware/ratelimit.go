package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// AccountRatePerSecond is the rate limit for authenticated requests.
	AccountRatePerSecond int
	// AccountBurst is the burst size for authenticated requests.
	AccountBurst int
	// UnauthRatePerSecond is the rate limit for unauthenticated requests (by IP).
	UnauthRatePerSecond int
	// UnauthBurst is the burst size for unauthenticated requests.
	UnauthBurst int
	// CleanupInterval is how often to clean up old limiters.
	CleanupInterval time.Duration
	// MaxAge is how long to keep a limiter after last use.
	MaxAge time.Duration
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		AccountRatePerSecond: 100,
		AccountBurst:         200,
		UnauthRatePerSecond:  10,
		UnauthBurst:          20,
		CleanupInterval:      5 * time.Minute,
		MaxAge:               10 * time.Minute,
	}
}

// rateLimiterEntry holds a limiter and its last access time.
type rateLimiterEntry struct {
	limiter      *rate.Limiter
	lastSeenNano atomic.Int64
}

// RateLimiter manages per-key rate limiters.
type RateLimiter struct {
	config   RateLimitConfig
	limiters sync.Map // map[string]*rateLimiterEntry
	stopCh   chan struct{}
}

// NewRateLimiter creates a new rate limiter with the given config.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		stopCh: make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup periodically removes old limiters.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			rl.limiters.Range(func(key, value interface{}) bool {
				entry := value.(*rateLimiterEntry)
				lastSeen := time.Unix(0, entry.lastSeenNano.Load())
				if now.Sub(lastSeen) > rl.config.MaxAge {
					rl.limiters.Delete(key)
				}
				return true
			})
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// getLimiter returns or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string, ratePerSecond, burst int) *rate.Limiter {
	now := time.Now().UnixNano()

	if val, ok := rl.limiters.Load(key); ok {
		entry := val.(*rateLimiterEntry)
		entry.lastSeenNano.Store(now)
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	entry := &rateLimiterEntry{limiter: limiter}
	entry.lastSeenNano.Store(now)
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*rateLimiterEntry).limiter
}

// Allow checks if a request is allowed for the given key and rate.
func (rl *RateLimiter) Allow(key string, ratePerSecond, burst int) bool {
	return rl.getLimiter(key, ratePerSecond, burst).Allow()
}

// RateLimit creates middleware that enforces per-account rate limits,
// falling back to per-IP limits for unauthenticated requests.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var key string
			var ratePerSecond, burst int

			authCtx := GetAuthContext(r.Context())
			if authCtx != nil && authCtx.AccountID != "" {
				key = "account:" + authCtx.AccountID
				ratePerSecond = rl.config.AccountRatePerSecond
				burst = rl.config.AccountBurst
			} else {
				ip := r.RemoteAddr
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					ip = host
				}
				key = "ip:" + ip
				ratePerSecond = rl.config.UnauthRatePerSecond
				burst = rl.config.UnauthBurst
			}

			if !rl.Allow(key, ratePerSecond, burst) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(ratePerSecond))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
