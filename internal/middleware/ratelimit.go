package middleware

import (
	"context"
	"fmt"
	"os"
	"time"

	"airwave/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// CheckRateLimit increments a fixed-window counter for the given key and
// reports whether the caller is within the allowed budget. Rate limiting is
// disabled outside production-like environments so tests and local dev are
// not throttled.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	env := os.Getenv("APP_ENV")
	if env == "test" || env == "development" {
		return true, nil
	}
	if rdb == nil {
		return true, nil
	}

	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		RedisErrors.WithLabelValues("ratelimit_incr").Inc()
		// Fail open; throttling is best effort.
		return true, err
	}
	if count == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			RedisErrors.WithLabelValues("ratelimit_expire").Inc()
		}
	}
	return count <= int64(limit), nil
}

// RateLimit returns a Fiber middleware enforcing a per-IP request budget on a route.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("ratelimit:%s:%s", name, c.IP())
		ok, err := CheckRateLimit(c.UserContext(), rdb, key, limit, window)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit check failed", "error", err, "key", key)
		}
		if !ok {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitError("too many requests"))
		}
		return c.Next()
	}
}
