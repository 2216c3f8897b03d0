package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest optionally carries the refresh token to revoke with the access token
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken handles token refresh
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	pair, err := h.authService.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, pair)
}

// Logout revokes the current access token
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req LogoutRequest
	_ = c.BodyParser(&req)

	if err := h.authService.Logout(c.UserContext(), claims, req.RefreshToken); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Logged out successfully", nil)
}
