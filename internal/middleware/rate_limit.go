package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	rateLimitWindow   = time.Minute
	rateLimitTimeout  = 200 * time.Millisecond
	localVisitorTTL   = 5 * time.Minute
	rateLimitedMsg    = "Too many requests, please retry later"
	defaultRateKeyPfx = "market:ratelimit:"
)

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	KeyPrefix         string
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		KeyPrefix:         defaultRateKeyPfx,
	}
}

// rateLimitScript is an atomic Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_start = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, math.ceil(window / 1000) + 1)
    return {1, limit - count - 1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_at = 0
    if #oldest >= 2 then
        reset_at = tonumber(oldest[2]) + window
    end
    return {0, 0, reset_at}
end
`)

// RateLimit limits requests per client IP.
// With Redis the window is shared across instances; without it each instance
// keeps a token bucket per IP. Redis errors fail open.
func RateLimit(redisClient *redis.Client, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultRateKeyPfx
	}
	if redisClient == nil {
		return newLocalLimiter(cfg.RequestsPerMinute).handler()
	}

	limit := strconv.Itoa(cfg.RequestsPerMinute)
	return func(c *gin.Context) {
		now := time.Now().UnixMilli()
		ctx, cancel := context.WithTimeout(c.Request.Context(), rateLimitTimeout)
		result, err := rateLimitScript.Run(ctx, redisClient, []string{cfg.KeyPrefix + c.ClientIP()},
			cfg.RequestsPerMinute, rateLimitWindow.Milliseconds(), now,
		).Int64Slice()
		cancel()

		if err != nil || len(result) < 3 {
			logger.GetLogger().Debug().Err(err).Msg("rate limit check skipped")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result[1], 10))

		if result[0] != 1 {
			retryAfter := (result[2] - now) / 1000
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result[2]/1000, 10))
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			common.ErrorResponse(c, http.StatusTooManyRequests, rateLimitedMsg, nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// localLimiter in-process token bucket per IP, used when Redis is not configured
type localLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(perMinute int) *localLimiter {
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &localLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / rateLimitWindow.Seconds()),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *localLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		l.evictLocked(now)
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// evictLocked drops idle visitors; runs on insert so the map stays bounded without a goroutine
func (l *localLimiter) evictLocked(now time.Time) {
	cutoff := now.Add(-localVisitorTTL)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

func (l *localLimiter) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			common.ErrorResponse(c, http.StatusTooManyRequests, rateLimitedMsg, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
