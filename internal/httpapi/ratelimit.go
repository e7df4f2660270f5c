package httpapi

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/HMasataka/streamhub/internal/logging"
)

// RateLimiter keeps one token bucket per remote address. Idle buckets
// expire after a minute.
type RateLimiter struct {
	limiters *ttlcache.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	logger   *logging.Logger
}

// NewRateLimiter creates a limiter allowing limit requests per second with
// the given burst per remote address
func NewRateLimiter(limit float64, burst int, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RateLimiter{
		limiters: ttlcache.New[string, *rate.Limiter](
			ttlcache.WithTTL[string, *rate.Limiter](time.Minute),
			ttlcache.WithDisableTouchOnHit[string, *rate.Limiter](),
		),
		limit:  rate.Limit(limit),
		burst:  burst,
		logger: logger,
	}
}

// Start starts evicting expired buckets
func (rl *RateLimiter) Start() {
	go rl.limiters.Start()
}

// Stop stops eviction
func (rl *RateLimiter) Stop() {
	rl.limiters.Stop()
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	item, _ := rl.limiters.GetOrSet(key, rate.NewLimiter(rl.limit, rl.burst))
	return item.Value()
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiterFor(remoteAddress(r))
		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			rl.logger.Warn("rate limit exceeded", "path", r.URL.Path, "remote_addr", r.RemoteAddr)

			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(delay.Seconds())))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%v", limiter.Limit()))
			w.Header().Set("X-RateLimit-Burst", fmt.Sprintf("%d", limiter.Burst()))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func remoteAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
