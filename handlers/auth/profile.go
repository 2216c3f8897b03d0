package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/services"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/response"
	"github.com/speaknowly/speaknowly-api/utils/validation"
)

// UpdateProfileRequest represents a profile update request
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

// GetProfile retrieves the current user's profile
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	user, err := h.authService.ByID(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, NewUserResponse(user))
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}
	update := services.ProfileUpdate{FirstName: req.FirstName, LastName: req.LastName}
	if update.FirstName != nil {
		v := validation.SanitizeString(*update.FirstName)
		update.FirstName = &v
	}
	if update.LastName != nil {
		v := validation.SanitizeString(*update.LastName)
		update.LastName = &v
	}

	user, err := h.authService.UpdateProfile(c.UserContext(), userID, update)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, NewUserResponse(user))
}

// UploadPhoto handles POST /profile/photo (multipart field "photo")
func (h *AuthHandler) UploadPhoto(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	header, err := c.FormFile("photo")
	if err != nil {
		return response.BadRequest(c, "photo file is required")
	}
	if header.Size > services.MaxPhotoBytes {
		return response.BadRequest(c, "photo must be at most 10 MB")
	}
	file, err := header.Open()
	if err != nil {
		return response.BadRequest(c, "failed to read photo")
	}
	defer file.Close()

	data, err := media.ReadAll(file, services.MaxPhotoBytes)
	if err != nil {
		return response.FromError(c, err)
	}

	user, err := h.authService.UploadPhoto(c.UserContext(), userID, data)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, NewUserResponse(user))
}
