package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiters keeps one token bucket per client IP. Entries idle past
// the eviction age are dropped on the next sweep so the map stays bounded.
type clientLimiters struct {
	mu       sync.Mutex
	clients  map[string]*clientEntry
	r        rate.Limit
	b        int
	lastSeen func() time.Time
}

type clientEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

const limiterEvictAge = 10 * time.Minute

func newClientLimiters(r rate.Limit, b int) *clientLimiters {
	return &clientLimiters{
		clients:  make(map[string]*clientEntry),
		r:        r,
		b:        b,
		lastSeen: time.Now,
	}
}

func (c *clientLimiters) allow(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.lastSeen()
	entry, ok := c.clients[ip]
	if !ok {
		if len(c.clients) > 1024 {
			c.sweep(now)
		}
		entry = &clientEntry{limiter: rate.NewLimiter(c.r, c.b)}
		c.clients[ip] = entry
	}
	entry.seen = now
	return entry.limiter.Allow()
}

func (c *clientLimiters) sweep(now time.Time) {
	for ip, entry := range c.clients {
		if now.Sub(entry.seen) > limiterEvictAge {
			delete(c.clients, ip)
		}
	}
}

// RateLimiter is a middleware for per-client-IP rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiters := newClientLimiters(r, b)
	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
