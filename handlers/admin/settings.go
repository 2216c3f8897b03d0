package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// SetPriceRequest sets the price of one test kind
type SetPriceRequest struct {
	Regular int `json:"regular" validate:"gte=0"`
	Trial   int `json:"trial" validate:"gte=0"`
}

// ListPrices retrieves the price table
// GET /admin/prices
func (h *AdminHandler) ListPrices(c *fiber.Ctx) error {
	prices, err := h.Pricing.List(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, prices)
}

// SetPrice updates the price of a test kind
// PUT /admin/prices/:kind
func (h *AdminHandler) SetPrice(c *fiber.Ctx) error {
	kind, err := model.ParseTestKind(c.Params("kind"))
	if err != nil {
		return response.FromError(c, apperr.Validation(err.Error()))
	}
	var req SetPriceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.Validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	price, err := h.Pricing.Set(c.UserContext(), kind, req.Regular, req.Trial)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Price updated successfully", price)
}

// SetDefaultTariff makes a tariff the one new users receive
// PUT /admin/tariffs/:id/default
func (h *AdminHandler) SetDefaultTariff(c *fiber.Ctx) error {
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	tariff, err := h.Tariffs.SetDefault(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Default tariff updated", tariff)
}
