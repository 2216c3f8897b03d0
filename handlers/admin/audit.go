package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// ListOpsNotifications retrieves operator alerts with pagination
// GET /admin/ops-notifications?unresolved=true
func (h *AdminHandler) ListOpsNotifications(c *fiber.Ctx) error {
	page, limit := query.Page(c)
	rows, total, err := h.Notifications.ListOps(c.UserContext(), query.Bool(c, "unresolved"), limit, query.Offset(page, limit))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, rows, response.CalculatePagination(page, limit, total))
}

// ResolveOpsNotification marks an operator alert as handled
// POST /admin/ops-notifications/:id/resolve
func (h *AdminHandler) ResolveOpsNotification(c *fiber.Ctx) error {
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.Notifications.ResolveOps(c.UserContext(), id); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Notification resolved", nil)
}

// ListCronRuns retrieves recent scheduled job runs
// GET /admin/cron/runs?job=&limit=
func (h *AdminHandler) ListCronRuns(c *fiber.Ctx) error {
	if h.Cron == nil {
		return response.FromError(c, apperr.NotFound("scheduler"))
	}
	_, limit := query.Page(c)
	runs, err := h.Cron.RecentRuns(c.UserContext(), c.Query("job"), limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"jobs": h.Cron.Names(), "runs": runs})
}

// RunCronJob runs a scheduled job immediately
// POST /admin/cron/:name/run
func (h *AdminHandler) RunCronJob(c *fiber.Ctx) error {
	if h.Cron == nil {
		return response.FromError(c, apperr.NotFound("scheduler"))
	}
	// A failed run is still reported through its log row
	run, err := h.Cron.Run(c.UserContext(), c.Params("name"))
	if run == nil {
		return response.FromError(c, err)
	}
	return response.Success(c, run)
}
