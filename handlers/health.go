package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/cache"
)

// HandleCheckHealth reports the database and, when configured, Redis.
// redis may be nil.
func HandleCheckHealth(redis *cache.RedisCache) func(c *fiber.Ctx, store database.Storage) error {
	return func(c *fiber.Ctx, store database.Storage) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			return apperr.Upstream("database unavailable", err)
		}
		status := fiber.Map{"status": "ok", "database": "ok", "redis": "disabled"}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				return apperr.Upstream("redis unavailable", err)
			}
			status["redis"] = "ok"
		}
		return c.JSON(status)
	}
}
