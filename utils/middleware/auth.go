package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/auth"
	"github.com/speaknowly/speaknowly-api/utils/response"
	"gorm.io/gorm"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager       *auth.JWTManager
	blacklistService *auth.BlacklistService
	db               *gorm.DB
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:       jwtManager,
		blacklistService: auth.NewBlacklistService(db),
		db:               db,
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// authenticate resolves the bearer token into claims and the current user row.
// The returned message is safe to show to the client.
func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*auth.Claims, *model.User, string, error) {
	tokenString, ok := bearerToken(c)
	if !ok {
		return nil, nil, "Missing authorization token", nil
	}

	claims, err := m.jwtManager.ValidateToken(tokenString)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, nil, "Token has expired", nil
		}
		return nil, nil, "Invalid token", nil
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return nil, nil, "Invalid token type", nil
	}

	isRevoked, err := m.blacklistService.IsTokenRevoked(c.UserContext(), claims.ID)
	if err != nil {
		return nil, nil, "", err
	}
	if isRevoked {
		return nil, nil, "Token has been revoked", nil
	}

	var user model.User
	if err := m.db.WithContext(c.UserContext()).Preload("Tariff").First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, "User not found", nil
		}
		return nil, nil, "", err
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, nil, "Token has been invalidated", nil
	}
	return claims, &user, "", nil
}

func setLocals(c *fiber.Ctx, claims *auth.Claims, user *model.User) {
	c.Locals("user_id", user.ID)
	c.Locals("user_email", user.Email)
	c.Locals("user_role", user.Role())
	c.Locals("claims", claims)
	c.Locals("user", user)
	c.Locals("token_jti", claims.ID)
}

// Required is middleware that requires a valid JWT token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, user, msg, err := m.authenticate(c)
		if err != nil {
			log.Error().Err(err).Msg("authentication lookup failed")
			return response.InternalServerError(c, "Failed to check token status")
		}
		if user == nil {
			return response.Unauthorized(c, msg)
		}
		setLocals(c, claims, user)
		return c.Next()
	}
}

// Optional is middleware that allows requests with or without a token
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, user, _, err := m.authenticate(c)
		if err == nil && user != nil {
			setLocals(c, claims, user)
		}
		return c.Next()
	}
}

// RequireActive rejects inactive or unverified accounts. Must run after Required.
func RequireActive() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetUser(c)
		if !ok {
			return response.Unauthorized(c, "Authentication required")
		}
		if !user.IsActive || !user.IsVerified {
			return response.Forbidden(c, "Account is not active")
		}
		return c.Next()
	}
}

// RequireStaff allows staff and superusers only. Must run after Required.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetUser(c)
		if !ok {
			return response.Unauthorized(c, "Authentication required")
		}
		if !user.IsStaff && !user.IsSuperuser {
			return response.Forbidden(c, "Staff access required")
		}
		log.Info().
			Uint("user_id", user.ID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("staff action")
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("user_id").(uint)
	return id, ok
}

// GetUser extracts full user object from context
func GetUser(c *fiber.Ctx) (*model.User, bool) {
	u, ok := c.Locals("user").(*model.User)
	return u, ok
}

// GetClaims extracts full claims from context
func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals("claims").(*auth.Claims)
	return claims, ok
}
