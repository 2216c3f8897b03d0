package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/auth"
	"github.com/speaknowly/speaknowly-api/utils/cache"
	"gorm.io/gorm"
)

const (
	// CodeTTL is how long an emailed code stays valid
	CodeTTL = 10 * time.Minute
	// MaxCodeAttempts is the number of wrong guesses a code survives
	MaxCodeAttempts = 5
	// ResendInterval throttles new codes per user and purpose
	ResendInterval = time.Minute
)

// CodeSender delivers one-time codes
type CodeSender interface {
	SendVerificationCode(ctx context.Context, to, name, code string, purpose model.VerificationPurpose) error
}

// VerificationService issues and checks emailed one-time codes
type VerificationService struct {
	db     *gorm.DB
	cache  *cache.RedisCache
	sender CodeSender
	now    func() time.Time
}

// NewVerificationService creates the service. Without a cache resends are not throttled.
func NewVerificationService(db *gorm.DB, c *cache.RedisCache, sender CodeSender) *VerificationService {
	return &VerificationService{
		db:     db,
		cache:  c,
		sender: sender,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func throttleKey(userID uint, purpose model.VerificationPurpose) string {
	return fmt.Sprintf("otp:resend:%s:%d", purpose, userID)
}

// Issue replaces any outstanding code of purpose and emails a new one
func (s *VerificationService) Issue(ctx context.Context, user *model.User, purpose model.VerificationPurpose) error {
	if s.cache != nil {
		ok, err := s.cache.SetNX(ctx, throttleKey(user.ID, purpose), 1, ResendInterval)
		if err != nil {
			log.Warn().Err(err).Uint("user_id", user.ID).Msg("otp throttle unavailable")
		} else if !ok {
			wait, _ := s.cache.TTL(ctx, throttleKey(user.ID, purpose))
			if wait <= 0 {
				wait = ResendInterval
			}
			return apperr.RateLimited("a code was sent recently, try again later", wait)
		}
	}

	code, err := auth.GenerateCode()
	if err != nil {
		return apperr.Internal("failed to generate code", err)
	}
	hash, err := auth.HashCode(code)
	if err != nil {
		return apperr.Internal("failed to hash code", err)
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ? AND used_at IS NULL", user.ID, purpose).
			Delete(&model.VerificationCode{}).Error; err != nil {
			return fmt.Errorf("failed to drop old codes: %w", err)
		}
		return tx.Create(&model.VerificationCode{
			UserID:    user.ID,
			Purpose:   purpose,
			CodeHash:  hash,
			ExpiresAt: now.Add(CodeTTL),
		}).Error
	})
	if err != nil {
		return err
	}

	if s.sender == nil {
		return nil
	}
	return s.sender.SendVerificationCode(ctx, user.Email, user.FullName(), code, purpose)
}

// Verify consumes a matching code. Wrong guesses count against the code.
func (s *VerificationService) Verify(ctx context.Context, userID uint, purpose model.VerificationPurpose, code string) error {
	invalid := apperr.NewCode(apperr.KindValidation, apperr.CodeInvalidCode, "the code is invalid or has expired")

	var row model.VerificationCode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ? AND used_at IS NULL", userID, purpose).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalid
	}
	if err != nil {
		return fmt.Errorf("failed to load code: %w", err)
	}

	now := s.now()
	if row.IsExpired(now) || row.Attempts >= MaxCodeAttempts {
		return invalid
	}
	if !auth.VerifyCode(row.CodeHash, code) {
		if err := s.db.WithContext(ctx).Model(&row).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return fmt.Errorf("failed to count attempt: %w", err)
		}
		return invalid
	}

	res := s.db.WithContext(ctx).Model(&model.VerificationCode{}).
		Where("id = ? AND used_at IS NULL", row.ID).
		Update("used_at", now)
	if res.Error != nil {
		return fmt.Errorf("failed to consume code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return invalid
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, throttleKey(userID, purpose))
	}
	return nil
}

// CleanupCodes removes used and expired codes older than olderThan
func (s *VerificationService) CleanupCodes(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	res := s.db.WithContext(ctx).
		Where("(used_at IS NOT NULL OR expires_at < ?) AND created_at < ?", s.now(), cutoff).
		Delete(&model.VerificationCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean verification codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}
