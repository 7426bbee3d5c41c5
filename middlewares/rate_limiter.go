package middlewares

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"eventapi/utils"
)

type LimiterConfig struct {
	RPS     float64       // steady refill rate
	Burst   int           // bucket size
	IdleTTL time.Duration // buckets unused this long are dropped
}

// one bucket per key, with the last time it was used
type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one in-memory token bucket per key.
type RateLimiter struct {
	conf    LimiterConfig
	mu      sync.Mutex
	buckets map[string]*keyLimiter
	done    chan struct{}
	once    sync.Once
}

func NewRateLimiter(conf LimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		conf:    conf,
		buckets: make(map[string]*keyLimiter),
		done:    make(chan struct{}),
	}
	go rl.sweep() // drops idle keys so the map does not grow forever
	return rl
}

func (rl *RateLimiter) sweep() {
	interval := rl.conf.IdleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for k, v := range rl.buckets {
				if now.Sub(v.lastSeen) > rl.conf.IdleTTL {
					delete(rl.buckets, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the idle sweep.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	// first request for this key gets a full bucket
	lim := rate.NewLimiter(rate.Limit(rl.conf.RPS), rl.conf.Burst)
	rl.buckets[key] = &keyLimiter{limiter: lim, lastSeen: now}
	return lim
}

// KeySelector picks what a bucket is shared by: IP, user, IP plus route.
type KeySelector func(c *gin.Context) string

func ByIP(prefix string) KeySelector {
	return func(c *gin.Context) string { return prefix + ":" + utils.ClientIP(c.Request) }
}

func ByUser(prefix string) KeySelector {
	return func(c *gin.Context) string {
		return prefix + ":" + strconv.FormatInt(c.GetInt64(CtxUserID), 10)
	}
}

func (rl *RateLimiter) Middleware(selectKey KeySelector) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := rl.getLimiter(selectKey(c)).Reserve()
		if !r.OK() { // burst of 0, never allowed
			rl.reject(c, time.Second)
			return
		}
		// no token right now: give it back and tell the client how long to wait
		if d := r.Delay(); d > 0 {
			r.Cancel()
			rl.reject(c, d)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, wait time.Duration) {
	secs := int(wait.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"status":  "error",
		"code":    "rate_limited",
		"message": "Too many requests. Please try again later.",
	})
}
