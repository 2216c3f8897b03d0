package payment

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/services"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
	"github.com/speaknowly/speaknowly-api/utils/validation"
)

// PaymentHandler handles tariff and payment requests
type PaymentHandler struct {
	payments  *services.PaymentService
	tariffs   *services.TariffService
	validator *validation.Validator
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService, tariffs *services.TariffService, validator *validation.Validator) *PaymentHandler {
	return &PaymentHandler{payments: payments, tariffs: tariffs, validator: validator}
}

// CreatePaymentRequest selects the tariff to buy
type CreatePaymentRequest struct {
	TariffID uint `json:"tariff_id" validate:"required"`
}

// ListTariffs handles GET /tariffs
func (h *PaymentHandler) ListTariffs(c *fiber.Ctx) error {
	tariffs, err := h.tariffs.List(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, tariffs)
}

// GetTariff handles GET /tariffs/:id
func (h *PaymentHandler) GetTariff(c *fiber.Ctx) error {
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	tariff, err := h.tariffs.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, tariff)
}

// CreatePayment handles POST /payments
func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	payment, err := h.payments.CreatePayment(c.UserContext(), userID, req.TariffID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, payment)
}

// ListPayments handles GET /payments
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit := query.Page(c)
	payments, total, err := h.payments.ListPayments(c.UserContext(), userID, limit, query.Offset(page, limit))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, payments, response.CalculatePagination(page, limit, total))
}

// Webhook handles POST /payments/webhook. It is unauthenticated; the
// notification signature is the credential.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	var n services.PaymentNotification
	if err := c.BodyParser(&n); err != nil {
		return response.BadRequest(c, "Invalid notification body")
	}

	payment, err := h.payments.HandleNotification(c.UserContext(), n)
	if err != nil {
		log.Warn().Err(err).Str("order_id", n.OrderID).Msg("payment notification rejected")
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"order_id": payment.OrderID,
		"status":   payment.Status,
	})
}
