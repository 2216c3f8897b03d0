package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/auth"
	"gorm.io/gorm"
)

const (
	// PhotoSize is the longest edge of a stored profile photo
	PhotoSize = 512
	// MaxPhotoBytes bounds an uploaded photo before decoding
	MaxPhotoBytes = 10 << 20
)

// GoogleIdentity is the verified content of a Google ID token
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Picture       string
}

// GoogleVerifier checks Google ID tokens
type GoogleVerifier interface {
	Verify(idToken string) (*GoogleIdentity, error)
}

type googleTokenVerifier struct {
	clientID string
}

// NewGoogleVerifier verifies ID tokens issued for clientID
func NewGoogleVerifier(clientID string) GoogleVerifier {
	return &googleTokenVerifier{clientID: clientID}
}

func (g *googleTokenVerifier) Verify(idToken string) (*GoogleIdentity, error) {
	v := googleAuthIDTokenVerifier.Verifier{}
	if err := v.VerifyIDToken(idToken, []string{g.clientID}); err != nil {
		return nil, err
	}
	claimSet, err := googleAuthIDTokenVerifier.Decode(idToken)
	if err != nil {
		return nil, err
	}
	return &GoogleIdentity{
		Subject:       claimSet.Sub,
		Email:         claimSet.Email,
		EmailVerified: claimSet.EmailVerified,
		GivenName:     claimSet.GivenName,
		FamilyName:    claimSet.FamilyName,
		Picture:       claimSet.Picture,
	}, nil
}

// AuthConfig wires the auth service
type AuthConfig struct {
	JWT          *auth.JWTManager
	Blacklist    *auth.BlacklistService
	Verification *VerificationService
	Tariffs      *TariffService
	Google       GoogleVerifier
	Media        media.Store
}

// AuthService handles accounts, credentials and profiles
type AuthService struct {
	db           *gorm.DB
	jwt          *auth.JWTManager
	blacklist    *auth.BlacklistService
	verification *VerificationService
	tariffs      *TariffService
	google       GoogleVerifier
	media        media.Store
	now          func() time.Time
}

// NewAuthService creates the auth service
func NewAuthService(db *gorm.DB, cfg AuthConfig) *AuthService {
	if cfg.Blacklist == nil {
		cfg.Blacklist = auth.NewBlacklistService(db)
	}
	if cfg.Tariffs == nil {
		cfg.Tariffs = NewTariffService(db)
	}
	return &AuthService{
		db:           db,
		jwt:          cfg.JWT,
		blacklist:    cfg.Blacklist,
		verification: cfg.Verification,
		tariffs:      cfg.Tariffs,
		google:       cfg.Google,
		media:        cfg.Media,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput is a password sign-up
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an unverified account and emails a code.
// Registering again before verifying replaces the password and resends.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := model.NormalizeEmail(in.Email)
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	var user model.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		if user.IsVerified {
			return nil, apperr.NewCode(apperr.KindConflict, apperr.CodeEmailTaken, "email is already registered")
		}
		user.PasswordHash = hash
		user.FirstName = in.FirstName
		user.LastName = in.LastName
		if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to update pending user: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		tariff, err := s.tariffs.Default(ctx)
		if err != nil {
			return nil, err
		}
		user = model.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Provider:     model.ProviderPassword,
			TariffID:     &tariff.ID,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		log.Info().Uint("user_id", user.ID).Msg("user registered")
	default:
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.verification.Issue(ctx, &user, model.VerificationRegister); err != nil {
		return &user, err
	}
	return &user, nil
}

func (s *AuthService) byEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Preload("Tariff").Where("email = ?", model.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// ByID loads a user with their tariff
func (s *AuthService) ByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Preload("Tariff").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// signIn stamps last_login and issues a token pair
func (s *AuthService) signIn(ctx context.Context, user *model.User) (*auth.TokenPair, error) {
	now := s.now()
	user.LastLogin = &now
	if err := s.db.WithContext(ctx).Model(user).UpdateColumn("last_login", now).Error; err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record login")
	}
	pair, err := s.jwt.IssuePair(user)
	if err != nil {
		return nil, apperr.Internal("failed to issue tokens", err)
	}
	return pair, nil
}

// Verify consumes a registration code, activates the account and signs in
func (s *AuthService) Verify(ctx context.Context, email, code string) (*model.User, *auth.TokenPair, error) {
	user, err := s.byEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user.IsVerified {
		return nil, nil, apperr.Conflict("account is already verified")
	}
	if err := s.verification.Verify(ctx, user.ID, model.VerificationRegister, code); err != nil {
		return nil, nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).
		Updates(map[string]interface{}{"is_active": true, "is_verified": true}).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to activate user: %w", err)
	}
	user.IsActive, user.IsVerified = true, true

	pair, err := s.signIn(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// ResendCode emails a fresh code of purpose
func (s *AuthService) ResendCode(ctx context.Context, email string, purpose model.VerificationPurpose) error {
	user, err := s.byEmail(ctx, email)
	if err != nil {
		return err
	}
	if purpose == model.VerificationRegister && user.IsVerified {
		return apperr.Conflict("account is already verified")
	}
	return s.verification.Issue(ctx, user, purpose)
}

// Login checks a password. Unknown emails and wrong passwords look the same.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *auth.TokenPair, error) {
	invalid := apperr.Unauthenticated("invalid email or password")

	user, err := s.byEmail(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil, invalid
	}
	if err != nil {
		return nil, nil, err
	}
	if user.PasswordHash == "" || auth.VerifyPassword(user.PasswordHash, password) != nil {
		return nil, nil, invalid
	}
	if !user.IsActive || !user.IsVerified {
		return nil, nil, apperr.NewCode(apperr.KindUnauthorized, apperr.CodeInactiveUser, "account is not active")
	}

	pair, err := s.signIn(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid refresh token")
	}
	revoked, err := s.blacklist.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token: %w", err)
	}
	if revoked {
		return nil, apperr.Unauthenticated("refresh token has been revoked")
	}

	user, err := s.ByID(ctx, claims.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Unauthenticated("invalid refresh token")
	}
	if err != nil {
		return nil, err
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, apperr.Unauthenticated("refresh token has been revoked")
	}
	if !user.IsActive {
		return nil, apperr.NewCode(apperr.KindUnauthorized, apperr.CodeInactiveUser, "account is not active")
	}

	if err := s.blacklist.RevokeToken(ctx, claims, "refresh"); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	pair, err := s.jwt.IssuePair(user)
	if err != nil {
		return nil, apperr.Internal("failed to issue tokens", err)
	}
	return pair, nil
}

// Logout revokes the access token and, when given, the refresh token
func (s *AuthService) Logout(ctx context.Context, access *auth.Claims, refreshToken string) error {
	if err := s.blacklist.RevokeToken(ctx, access, "logout"); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil || claims.UserID != access.UserID {
		return nil
	}
	if err := s.blacklist.RevokeToken(ctx, claims, "logout"); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// GoogleLogin signs in with a Google ID token, creating the account on first use
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string) (*model.User, *auth.TokenPair, bool, error) {
	if s.google == nil {
		return nil, nil, false, apperr.Validation("google sign-in is not configured")
	}
	identity, err := s.google.Verify(idToken)
	if err != nil {
		return nil, nil, false, apperr.Unauthenticated("invalid google id token")
	}
	if identity.Email == "" || !identity.EmailVerified {
		return nil, nil, false, apperr.Unauthenticated("google account email is not verified")
	}

	created := false
	user, err := s.byEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if user.IsVerified && !user.IsActive {
			return nil, nil, false, apperr.NewCode(apperr.KindUnauthorized, apperr.CodeInactiveUser, "account is not active")
		}
		updates := map[string]interface{}{"is_active": true, "is_verified": true}
		if user.PhotoURL == "" && identity.Picture != "" {
			updates["photo_url"] = identity.Picture
		}
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, nil, false, fmt.Errorf("failed to update google user: %w", err)
		}
	case apperr.Is(err, apperr.KindNotFound):
		tariff, err := s.tariffs.Default(ctx)
		if err != nil {
			return nil, nil, false, err
		}
		user = &model.User{
			Email:      identity.Email,
			FirstName:  identity.GivenName,
			LastName:   identity.FamilyName,
			PhotoURL:   identity.Picture,
			Provider:   model.ProviderGoogle,
			IsActive:   true,
			IsVerified: true,
			TariffID:   &tariff.ID,
		}
		if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, nil, false, fmt.Errorf("failed to create google user: %w", err)
		}
		created = true
		log.Info().Uint("user_id", user.ID).Msg("user registered with google")
	default:
		return nil, nil, false, err
	}

	pair, err := s.signIn(ctx, user)
	if err != nil {
		return nil, nil, false, err
	}
	return user, pair, created, nil
}

// RequestPasswordReset emails a reset code. Unknown emails are ignored.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.byEmail(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.verification.Issue(ctx, user, model.VerificationPasswordReset)
}

// ResetPassword sets a new password and revokes every issued token
func (s *AuthService) ResetPassword(ctx context.Context, email, code, password string) error {
	user, err := s.byEmail(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NewCode(apperr.KindValidation, apperr.CodeInvalidCode, "the code is invalid or has expired")
	}
	if err != nil {
		return err
	}
	if err := s.verification.Verify(ctx, user.ID, model.VerificationPasswordReset, code); err != nil {
		return err
	}
	return s.setPassword(ctx, user.ID, password)
}

// ChangePassword replaces the password of a signed-in user
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, password string) error {
	user, err := s.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash != "" && auth.VerifyPassword(user.PasswordHash, current) != nil {
		return apperr.Validation("current password is incorrect").
			WithFields(map[string]string{"current_password": "is incorrect"})
	}
	return s.setPassword(ctx, userID, password)
}

func (s *AuthService) setPassword(ctx context.Context, userID uint, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Internal("failed to hash password", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("password_hash", hash).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return s.blacklist.RevokeAllUserTokens(ctx, userID)
}

// ProfileUpdate changes the names of a user. Nil fields are left alone.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}

// UpdateProfile applies a profile update
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*model.User, error) {
	updates := map[string]interface{}{}
	if in.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*in.LastName)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}
	return s.ByID(ctx, userID)
}

// UploadPhoto stores a JPEG thumbnail of data as the user's photo
func (s *AuthService) UploadPhoto(ctx context.Context, userID uint, data []byte) (*model.User, error) {
	if s.media == nil {
		return nil, apperr.Internal("media storage is not configured", nil)
	}
	if len(data) == 0 || len(data) > MaxPhotoBytes {
		return nil, apperr.Validation("photo must be a non-empty image up to 10 MB")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Validation("photo is not a supported image")
	}
	thumb := imaging.Fit(img, PhotoSize, PhotoSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, apperr.Internal("failed to encode photo", err)
	}

	artifact, err := media.NewArtifact(ctx, s.media, media.PhotoKey(userID, "jpg"), buf.Bytes(), "image/jpeg")
	if err != nil {
		return nil, apperr.Internal("failed to store photo", err)
	}
	defer artifact.Release(ctx)

	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("photo_url", artifact.URI).Error; err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}
	artifact.Keep()
	return s.ByID(ctx, userID)
}
