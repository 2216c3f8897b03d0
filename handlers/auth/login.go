package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// GoogleLoginRequest carries a Google ID token
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	user, pair, err := h.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		// Record failed attempt even if user not found
		if h.bruteForceProtection != nil && apperr.Is(err, apperr.KindUnauthenticated) {
			h.bruteForceProtection.RecordFailedAttempt(c, req.Email)
		}
		return response.FromError(c, err)
	}

	// Clear failed attempts on successful login
	if h.bruteForceProtection != nil {
		h.bruteForceProtection.RecordSuccessfulAttempt(c)
	}

	return response.Success(c, SessionResponse{User: NewUserResponse(user), TokenPair: pair})
}

// GoogleLogin signs in or signs up with a Google ID token
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	var req GoogleLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	user, pair, created, err := h.authService.GoogleLogin(c.UserContext(), req.IDToken)
	if err != nil {
		return response.FromError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(response.Response{
		Success: true,
		Data:    SessionResponse{User: NewUserResponse(user), TokenPair: pair},
	})
}
