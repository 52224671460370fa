package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig throttles anonymous callers per client IP, authenticated
// callers per user and login attempts per client IP. Zero rates disable the
// matching throttle.
type RateLimitConfig struct {
	AnonRPS     float64
	AnonBurst   int
	UserRPS     float64
	UserBurst   int
	LoginLimit  int
	LoginWindow time.Duration
	// Redis shares the login window across replicas when set.
	Redis        redis.UniversalClient
	RedisTimeout time.Duration
}

type rateLimiter struct {
	anon        *keyedLimiter
	user        *keyedLimiter
	login       *keyedLimiter
	loginLimit  int
	loginWindow time.Duration
	store       windowStore
}

// windowStore counts hits inside a fixed window shared between processes.
type windowStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		anon:        newKeyedLimiter(cfg.AnonRPS, cfg.AnonBurst, 10*time.Minute),
		user:        newKeyedLimiter(cfg.UserRPS, cfg.UserBurst, 10*time.Minute),
		loginLimit:  max(cfg.LoginLimit, 0),
		loginWindow: cfg.LoginWindow,
	}
	if rl.loginWindow <= 0 {
		rl.loginWindow = time.Minute
	}
	if rl.loginLimit > 0 {
		if cfg.Redis != nil {
			rl.store = newRedisStore(cfg.Redis, cfg.RedisTimeout)
		} else {
			perSecond := float64(rl.loginLimit) / rl.loginWindow.Seconds()
			rl.login = newKeyedLimiter(perSecond, rl.loginLimit, 2*rl.loginWindow)
		}
	}
	return rl
}

// AllowAnonymous reports whether an unauthenticated request from ip may
// proceed, and how long to wait otherwise.
func (r *rateLimiter) AllowAnonymous(ip string) (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	return r.anon.allow(keyOrUnknown(ip))
}

// AllowUser applies the per-user throttle.
func (r *rateLimiter) AllowUser(userID int64) (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	return r.user.allow(fmt.Sprintf("%d", userID))
}

// AllowLogin applies the login throttle for ip.
func (r *rateLimiter) AllowLogin(ctx context.Context, ip string) (bool, time.Duration, error) {
	if r == nil || r.loginLimit <= 0 {
		return true, 0, nil
	}
	ip = keyOrUnknown(ip)
	if r.store != nil {
		return r.store.Allow(ctx, "docsplatform:login:"+ip, r.loginLimit, r.loginWindow)
	}
	allowed, retryAfter := r.login.allow(ip)
	return allowed, retryAfter, nil
}

func keyOrUnknown(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}

// keyedLimiter holds one token bucket per key and forgets keys idle for
// longer than idle.
type keyedLimiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	mu      sync.Mutex
	entries map[string]*limiterEntry
	swept   time.Time
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newKeyedLimiter returns nil when perSecond is not positive, which allows
// everything.
func newKeyedLimiter(perSecond float64, burst int, idle time.Duration) *keyedLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(int(perSecond), 1)
	}
	return &keyedLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (k *keyedLimiter) allow(key string) (bool, time.Duration) {
	if k == nil {
		return true, 0
	}
	now := k.now()

	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = entry
	}
	entry.lastSeen = now
	if now.Sub(k.swept) > k.idle {
		k.sweepLocked(now)
	}
	k.mu.Unlock()

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (k *keyedLimiter) sweepLocked(now time.Time) {
	k.swept = now
	cutoff := now.Add(-k.idle)
	for key, entry := range k.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(k.entries, key)
		}
	}
}
