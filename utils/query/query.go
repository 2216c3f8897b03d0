// Package query parses the path and query parameters shared by handlers
package query

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page reads page and limit, clamped to sane values
func Page(c *fiber.Ctx) (page, limit int) {
	page = c.QueryInt("page", 1)
	limit = c.QueryInt("limit", DefaultLimit)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Offset converts a page into a row offset
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// ID parses a positive numeric path parameter
func ID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid " + name).WithFields(map[string]string{name: "must be a positive integer"})
	}
	return uint(id), nil
}

// Time parses an optional RFC 3339 or YYYY-MM-DD query parameter
func Time(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.Validation("invalid " + name).WithFields(map[string]string{name: "must be a date"})
}

// Bool reads a true/false query parameter
func Bool(c *fiber.Ctx, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}
