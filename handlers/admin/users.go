package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
	"gorm.io/gorm"
)

// ListUsersRequest represents the query parameters for listing users
type ListUsersRequest struct {
	Search  string `query:"search"`
	Active  string `query:"active"`
	Staff   string `query:"staff"`
	Sort    string `query:"sort"`
	SortDir string `query:"sort_dir"`
}

var userSorts = map[string]bool{"created_at": true, "last_login": true, "token_balance": true, "email": true}

// UpdateUserRequest changes account flags and the tariff
type UpdateUserRequest struct {
	IsActive *bool `json:"is_active"`
	IsStaff  *bool `json:"is_staff"`
	TariffID *uint `json:"tariff_id"`
}

// AdjustTokensRequest credits or debits a user's balance
type AdjustTokensRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=custom_addition refund custom_deduction"`
	Amount      int    `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=255"`
}

// ListUsers retrieves all users with pagination and filters
// GET /admin/users
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	var req ListUsersRequest
	if err := c.QueryParser(&req); err != nil {
		return response.BadRequest(c, "Invalid query parameters")
	}
	page, limit := query.Page(c)
	if !userSorts[req.Sort] {
		req.Sort = "created_at"
	}
	if req.SortDir != "asc" {
		req.SortDir = "desc"
	}

	q := h.Store.GetDB().WithContext(c.UserContext()).Model(&model.User{})
	if req.Search != "" {
		term := "%" + strings.ToLower(req.Search) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", term, term, term)
	}
	if req.Active != "" {
		q = q.Where("is_active = ?", req.Active == "true")
	}
	if req.Staff != "" {
		q = q.Where("is_staff = ?", req.Staff == "true")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.FromError(c, err)
	}

	var users []model.User
	if err := q.Preload("Tariff").
		Order(req.Sort + " " + req.SortDir).
		Offset(query.Offset(page, limit)).
		Limit(limit).
		Find(&users).Error; err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, users, response.CalculatePagination(page, limit, total))
}

func (h *AdminHandler) loadUser(c *fiber.Ctx) (*model.User, error) {
	id, err := query.ID(c, "id")
	if err != nil {
		return nil, err
	}
	var user model.User
	err = h.Store.GetDB().WithContext(c.UserContext()).Preload("Tariff").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user")
	}
	return &user, err
}

// GetUser retrieves a specific user with their progress counters
// GET /admin/users/:id
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.loadUser(c)
	if err != nil {
		return response.FromError(c, err)
	}
	discrepancy, err := h.Ledger.Reconcile(c.UserContext(), user.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"user":              user,
		"ledger_consistent": discrepancy == nil,
		"ledger":            discrepancy,
	})
}

// UpdateUser changes activation, staff flag or tariff
// PUT /admin/users/:id
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	user, err := h.loadUser(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	updates := make(map[string]interface{})
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsStaff != nil {
		updates["is_staff"] = *req.IsStaff
	}
	if req.TariffID != nil {
		if _, err := h.Tariffs.Get(c.UserContext(), *req.TariffID); err != nil {
			return response.FromError(c, err)
		}
		updates["tariff_id"] = *req.TariffID
	}
	if len(updates) == 0 {
		return response.BadRequest(c, "Nothing to update")
	}

	db := h.Store.GetDB().WithContext(c.UserContext())
	if err := db.Model(user).Updates(updates).Error; err != nil {
		return response.FromError(c, err)
	}
	// Deactivation signs the user out everywhere
	if req.IsActive != nil && !*req.IsActive && h.Blacklist != nil {
		if err := h.Blacklist.RevokeAllUserTokens(c.UserContext(), user.ID); err != nil {
			return response.FromError(c, err)
		}
	}
	if err := db.Preload("Tariff").First(user, user.ID).Error; err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "User updated successfully", user)
}

// DeleteUser hard deletes a user; sessions, ledger rows and notifications cascade
// DELETE /admin/users/:id
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	user, err := h.loadUser(c)
	if err != nil {
		return response.FromError(c, err)
	}
	if adminID, ok := middleware.GetUserID(c); ok && adminID == user.ID {
		return response.BadRequest(c, "Cannot delete your own account")
	}

	if err := h.Store.GetDB().WithContext(c.UserContext()).Delete(user).Error; err != nil {
		return response.FromError(c, err)
	}
	log.Info().Uint("user_id", user.ID).Msg("user deleted by staff")
	return response.SuccessWithMessage(c, "User deleted successfully", fiber.Map{"user_id": user.ID})
}

// AdjustTokens credits or debits a user through the ledger
// POST /admin/users/:id/tokens
func (h *AdminHandler) AdjustTokens(c *fiber.Ctx) error {
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req AdjustTokensRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.Validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	kind := model.TransactionKind(req.Kind)
	description := req.Description
	if description == "" {
		description = "Adjusted by staff"
	}

	var balance int
	if kind == model.TransactionCustomDeduction {
		balance, err = h.Ledger.Debit(c.UserContext(), id, kind, req.Amount, description)
	} else {
		balance, err = h.Ledger.Credit(c.UserContext(), id, kind, req.Amount, description)
	}
	if err != nil {
		return response.FromError(c, err)
	}

	adminID, _ := middleware.GetUserID(c)
	log.Info().Uint("admin_id", adminID).Uint("user_id", id).Str("kind", req.Kind).Int("amount", req.Amount).Msg("tokens adjusted")
	return response.Success(c, fiber.Map{"user_id": id, "balance": balance})
}
