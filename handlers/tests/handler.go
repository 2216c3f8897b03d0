// Package tests exposes the listening, reading, writing and speaking
// lifecycles and the progress read-model.
package tests

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/progress"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/cache"
	"github.com/speaknowly/speaknowly-api/utils/i18n"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
	"github.com/speaknowly/speaknowly-api/utils/validation"
)

// DefaultTop is the leaderboard size when no limit is given
const DefaultTop = 10

// LeaderboardTTL is how long a computed leaderboard is served from Redis
const LeaderboardTTL = time.Minute

// TestsHandler handles test session and progress requests
type TestsHandler struct {
	sessions  *session.Orchestrator
	progress  *progress.Service
	cache     *cache.RedisCache // nil disables leaderboard caching
	validator *validation.Validator
}

// NewTestsHandler creates a new tests handler
func NewTestsHandler(sessions *session.Orchestrator, progress *progress.Service, redis *cache.RedisCache, validator *validation.Validator) *TestsHandler {
	return &TestsHandler{
		sessions:  sessions,
		progress:  progress,
		cache:     redis,
		validator: validator,
	}
}

// SessionSummary is the lifecycle header every session view starts with
type SessionSummary struct {
	ID        uint                `json:"id"`
	Status    model.SessionStatus `json:"status"`
	StartTime time.Time           `json:"start_time"`
	EndTime   *time.Time          `json:"end_time,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// project copies matching fields from a model into a response view
func project(dst, src interface{}) error {
	if err := copier.Copy(dst, src); err != nil {
		return apperr.Internal("failed to build response", err)
	}
	return nil
}

// caller returns the authenticated user id and the path id
func caller(c *fiber.Ctx) (uint, uint, error) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return 0, 0, apperr.Unauthenticated("user not authenticated")
	}
	id, err := query.ID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	return userID, id, nil
}

func userID(c *fiber.Ctx) (uint, error) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		return 0, apperr.Unauthenticated("user not authenticated")
	}
	return id, nil
}

// language picks the content language from ?lang= or Accept-Language
func language(c *fiber.Ctx) string {
	if lang := c.Query("lang"); lang != "" {
		return string(i18n.Parse(lang))
	}
	return string(i18n.FromAcceptLanguage(c.Get(fiber.HeaderAcceptLanguage)))
}

// analysis writes an AnalysisView, 202 while the worker has not finished
func analysis(c *fiber.Ctx, view *session.AnalysisView, err error) error {
	if err != nil {
		return response.FromError(c, err)
	}
	if view.Analysis == nil {
		return c.Status(fiber.StatusAccepted).JSON(response.Response{Success: true, Data: view})
	}
	return response.Success(c, view)
}

// History handles GET /tests/history?kind=&show=last
func (h *TestsHandler) History(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	filter := progress.HistoryFilter{Show: c.Query("show")}
	if raw := c.Query("kind"); raw != "" {
		filter.Kind = model.TestKind(strings.ToLower(raw))
	}

	entries, err := h.progress.History(c.UserContext(), uid, filter)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, entries)
}

// Progress handles GET /tests/progress
func (h *TestsHandler) Progress(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	p, err := h.progress.Progress(c.UserContext(), uid)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, p)
}

// Stats handles GET /tests/stats
func (h *TestsHandler) Stats(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	stats, err := h.progress.Stats(c.UserContext(), uid)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, stats)
}

// Top handles GET /tests/top?limit=
func (h *TestsHandler) Top(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", DefaultTop)
	if limit < 1 || limit > query.MaxLimit {
		limit = DefaultTop
	}
	ctx := c.UserContext()
	key := fmt.Sprintf("leaderboard:%d", limit)

	var entries []progress.LeaderboardEntry
	if h.cache != nil {
		err := h.cache.GetJSON(ctx, key, &entries)
		if err == nil {
			return response.Success(c, entries)
		}
		if !errors.Is(err, cache.ErrNotFound) {
			log.Warn().Err(err).Msg("leaderboard cache read failed")
		}
	}

	entries, err := h.progress.Leaderboard(ctx, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, key, entries, LeaderboardTTL); err != nil {
			log.Warn().Err(err).Msg("leaderboard cache write failed")
		}
	}
	return response.Success(c, entries)
}
