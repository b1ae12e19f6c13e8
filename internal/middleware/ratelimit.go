package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per client IP and forgets idle ones.
type limiterStore struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

const visitorIdle = 10 * time.Minute

func newLimiterStore(limit rate.Limit, burst int) *limiterStore {
	return &limiterStore{visitors: make(map[string]*visitor), limit: limit, burst: burst, lastSweep: time.Now()}
}

func (s *limiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > time.Minute {
		s.sweep(visitorIdle, now)
	}

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep must be called with mu held.
func (s *limiterStore) sweep(idle time.Duration, now time.Time) {
	s.lastSweep = now
	for k, v := range s.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(s.visitors, k)
		}
	}
}

func (s *limiterStore) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		r := s.get(c.ClientIP(), now).ReserveN(now, 1)
		if !r.OK() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// RateLimit limits each client IP to rps requests per second with the given burst.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	return newLimiterStore(rate.Limit(rps), burst).handler()
}

// LoginRateLimit is the stricter per-IP limit for credential endpoints.
func LoginRateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 10
	}
	return newLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), perMinute).handler()
}
