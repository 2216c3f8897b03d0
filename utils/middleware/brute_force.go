package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/cache"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// BruteForceProtection handles brute force protection using Redis
type BruteForceProtection struct {
	redisCache *cache.RedisCache
}

// NewBruteForceProtection creates a new brute force protection instance
func NewBruteForceProtection(redisCache *cache.RedisCache) *BruteForceProtection {
	return &BruteForceProtection{redisCache: redisCache}
}

func attemptKey(ip string) string { return fmt.Sprintf("brute_force:attempts:%s", ip) }
func lockKey(ip string) string    { return fmt.Sprintf("brute_force:lock:%s", ip) }

// CheckAndRecordAttempt middleware checks if IP is locked out
func (b *BruteForceProtection) CheckAndRecordAttempt() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		key := lockKey(c.IP())

		locked, err := b.redisCache.Exists(ctx, key)
		if err != nil {
			// fail open when redis is unavailable
			log.Warn().Err(err).Msg("brute force check failed")
			return c.Next()
		}
		if !locked {
			return c.Next()
		}

		ttl, _ := b.redisCache.TTL(ctx, key)
		if ttl <= 0 {
			ttl = time.Minute
		}
		return response.FromError(c, apperr.RateLimited(
			fmt.Sprintf("Too many failed attempts. Try again in %d seconds", int(ttl.Seconds())), ttl))
	}
}

// RecordFailedAttempt records a failed login attempt and applies progressive lockouts
func (b *BruteForceProtection) RecordFailedAttempt(c *fiber.Ctx, email string) {
	ctx := c.UserContext()
	ip := c.IP()

	attempts, err := b.redisCache.Increment(ctx, attemptKey(ip))
	if err != nil {
		return
	}
	if attempts == 1 {
		_ = b.redisCache.Expire(ctx, attemptKey(ip), 15*time.Minute)
	}

	var lockDuration time.Duration
	switch {
	case attempts >= 25:
		lockDuration = 24 * time.Hour
	case attempts >= 10:
		lockDuration = time.Hour
	case attempts >= 5:
		lockDuration = 2 * time.Minute
	default:
		return
	}

	log.Warn().
		Str("ip", ip).
		Str("email", strings.ToLower(email)).
		Int64("attempts", attempts).
		Dur("lock", lockDuration).
		Msg("login locked out")
	_ = b.redisCache.Set(ctx, lockKey(ip), "locked", lockDuration)
}

// RecordSuccessfulAttempt clears failed attempts on successful login
func (b *BruteForceProtection) RecordSuccessfulAttempt(c *fiber.Ctx) {
	_ = b.redisCache.Delete(c.UserContext(), attemptKey(c.IP()), lockKey(c.IP()))
}
