package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jinzhu/copier"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services"
	authutil "github.com/speaknowly/speaknowly-api/utils/auth"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/response"
	"github.com/speaknowly/speaknowly-api/utils/validation"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	authService          *services.AuthService
	validator            *validation.Validator
	bruteForceProtection *middleware.BruteForceProtection
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, validator *validation.Validator, bruteForceProtection *middleware.BruteForceProtection) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		validator:            validator,
		bruteForceProtection: bruteForceProtection,
	}
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

// VerifyRequest confirms an emailed registration code
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendRequest asks for a new code
type ResendRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=register password_reset"`
}

// TariffResponse is the tariff summary embedded in a user
type TariffResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID           uint            `json:"id"`
	Email        string          `json:"email"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	PhotoURL     string          `json:"photo_url,omitempty"`
	Provider     string          `json:"provider"`
	Role         string          `json:"role"`
	IsActive     bool            `json:"is_active"`
	IsVerified   bool            `json:"is_verified"`
	IsPremium    bool            `json:"is_premium"`
	TokenBalance int             `json:"token_balance"`
	Tariff       *TariffResponse `json:"tariff,omitempty"`
	LastLogin    *time.Time      `json:"last_login,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SessionResponse is returned by every flow that signs the user in
type SessionResponse struct {
	User UserResponse `json:"user"`
	*authutil.TokenPair
}

// NewUserResponse projects a user for the API
func NewUserResponse(user *model.User) UserResponse {
	var res UserResponse
	_ = copier.Copy(&res, user)
	res.Role = user.Role()
	res.IsPremium = user.IsPremium()
	return res
}

// Register handles user registration
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	user, err := h.authService.Register(c.UserContext(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: validation.SanitizeString(req.FirstName),
		LastName:  validation.SanitizeString(req.LastName),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(response.Response{
		Success: true,
		Message: "Verification code sent",
		Data:    NewUserResponse(user),
	})
}

// Verify activates an account with the emailed code
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	user, pair, err := h.authService.Verify(c.UserContext(), req.Email, req.Code)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, SessionResponse{User: NewUserResponse(user), TokenPair: pair})
}

// ResendCode emails a new verification or reset code
func (h *AuthHandler) ResendCode(c *fiber.Ctx) error {
	var req ResendRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}
	purpose := model.VerificationRegister
	if req.Purpose != "" {
		purpose = model.VerificationPurpose(req.Purpose)
	}

	if err := h.authService.ResendCode(c.UserContext(), req.Email, purpose); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Verification code sent", nil)
}
