package utils

import (
	fiber "github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// MakeHTTPHandleFunc binds a store-backed handler, rendering its error through the response envelope
func MakeHTTPHandleFunc(handler func(c *fiber.Ctx, store database.Storage) error, store database.Storage) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := handler(c, store); err != nil {
			return response.FromError(c, err)
		}
		return nil
	}
}
