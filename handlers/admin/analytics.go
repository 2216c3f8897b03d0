package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// GetDashboard handles GET /admin/analytics/overview
func (h *AdminHandler) GetDashboard(c *fiber.Ctx) error {
	stats, err := h.Analytics.GetDashboardStats(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	if h.Queue != nil {
		if qs, err := h.Queue.Stats(c.UserContext()); err == nil {
			return response.Success(c, fiber.Map{"stats": stats, "queue": qs})
		}
	}
	return response.Success(c, fiber.Map{"stats": stats})
}

// GetSessionSeries handles GET /admin/analytics/sessions?days=&kind=
func (h *AdminHandler) GetSessionSeries(c *fiber.Ctx) error {
	points, err := h.Analytics.GetSessionTimeSeries(c.UserContext(), c.QueryInt("days", 30), model.TestKind(c.Query("kind")))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, points)
}

// GetRevenueSeries handles GET /admin/analytics/revenue?days=
func (h *AdminHandler) GetRevenueSeries(c *fiber.Ctx) error {
	points, err := h.Analytics.GetRevenueTimeSeries(c.UserContext(), c.QueryInt("days", 30))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, points)
}

// GetSignupSeries handles GET /admin/analytics/signups?days=
func (h *AdminHandler) GetSignupSeries(c *fiber.Ctx) error {
	points, err := h.Analytics.GetSignupTimeSeries(c.UserContext(), c.QueryInt("days", 30))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, points)
}
