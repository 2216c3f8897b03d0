package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

func (h *AdminHandler) requireWorker() error {
	if h.Worker == nil {
		return apperr.Upstream("analysis queue is not configured", nil)
	}
	return nil
}

// Regrade re-enqueues analysis for a completed session
// POST /admin/sessions/:kind/:id/regrade
func (h *AdminHandler) Regrade(c *fiber.Ctx) error {
	kind, err := model.ParseTestKind(c.Params("kind"))
	if err != nil {
		return response.FromError(c, apperr.Validation(err.Error()))
	}
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	job, err := h.Sessions.Regrade(c.UserContext(), kind, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(response.Response{Success: true, Data: job})
}

// ListDeadLetters lists analysis jobs that exhausted their attempts
// GET /admin/analysis/dead-letters?pending=true
func (h *AdminHandler) ListDeadLetters(c *fiber.Ctx) error {
	if err := h.requireWorker(); err != nil {
		return response.FromError(c, err)
	}
	page, limit := query.Page(c)
	rows, total, err := h.Worker.ListDeadLetters(c.UserContext(), query.Bool(c, "pending"), page, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, rows, response.CalculatePagination(page, limit, total))
}

// RequeueDeadLetter puts a dead-lettered job back on the queue
// POST /admin/analysis/dead-letters/:id/requeue
func (h *AdminHandler) RequeueDeadLetter(c *fiber.Ctx) error {
	if err := h.requireWorker(); err != nil {
		return response.FromError(c, err)
	}
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	job, err := h.Worker.RequeueDeadLetter(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(response.Response{Success: true, Data: job})
}

// ReconcileLedger replays every ledger and reports users whose balance disagrees
// GET /admin/ledger/reconcile
func (h *AdminHandler) ReconcileLedger(c *fiber.Ctx) error {
	discrepancies, err := h.Ledger.ReconcileAll(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"consistent":    len(discrepancies) == 0,
		"discrepancies": discrepancies,
	})
}
