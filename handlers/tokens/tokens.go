package tokens

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/services/pricing"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// TokensHandler handles token balance and ledger requests
type TokensHandler struct {
	ledger     *ledger.Service
	pricing    *pricing.Service
	dailyBonus int
}

// NewTokensHandler creates a new tokens handler
func NewTokensHandler(l *ledger.Service, p *pricing.Service, dailyBonus int) *TokensHandler {
	return &TokensHandler{ledger: l, pricing: p, dailyBonus: dailyBonus}
}

// BalanceResponse is the current balance with the caller's prices
type BalanceResponse struct {
	Balance int                    `json:"balance"`
	Prices  map[model.TestKind]int `json:"prices"`
}

// GetBalance handles GET /tokens/balance
func (h *TokensHandler) GetBalance(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	balance, err := h.ledger.Balance(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}

	prices := make(map[model.TestKind]int, len(model.AllTestKinds))
	for _, kind := range model.AllTestKinds {
		quote, err := h.pricing.PriceFor(c.UserContext(), userID, kind)
		if err != nil {
			return response.FromError(c, err)
		}
		prices[kind] = quote.Amount
	}
	return response.Success(c, BalanceResponse{Balance: balance, Prices: prices})
}

// ListTransactions handles GET /tokens/transactions?kind=&from=&to=&page=&limit=
func (h *TokensHandler) ListTransactions(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var filter ledger.ListFilter
	if raw := c.Query("kind"); raw != "" {
		kind, err := model.ParseTransactionKind(raw)
		if err != nil {
			return response.FromError(c, apperr.Validation(err.Error()))
		}
		filter.Kind = kind
	}
	var err error
	if filter.From, err = query.Time(c, "from"); err != nil {
		return response.FromError(c, err)
	}
	if filter.To, err = query.Time(c, "to"); err != nil {
		return response.FromError(c, err)
	}

	page, limit := query.Page(c)
	rows, total, err := h.ledger.List(c.UserContext(), userID, filter, page, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, rows, response.CalculatePagination(page, limit, total))
}

// ClaimDailyBonus handles POST /tokens/daily-bonus
func (h *TokensHandler) ClaimDailyBonus(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	balance, err := h.ledger.ClaimDailyBonus(c.UserContext(), userID, h.dailyBonus)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Daily bonus claimed", fiber.Map{
		"balance": balance,
		"bonus":   h.dailyBonus,
	})
}
