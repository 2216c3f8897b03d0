package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// ForgotPasswordRequest starts a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes a password reset
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

// ChangePasswordRequest changes the password of a signed-in user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

// ForgotPassword emails a reset code. The response never reveals whether the email exists.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	if err := h.authService.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "If the email is registered, a reset code has been sent", nil)
}

// ResetPassword sets a new password with a reset code
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	if err := h.authService.ResetPassword(c.UserContext(), req.Email, req.Code, req.NewPassword); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Password has been reset", nil)
}

// ChangePassword handles PUT /profile/password
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	if err := h.authService.ChangePassword(c.UserContext(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Password changed, please sign in again", nil)
}
