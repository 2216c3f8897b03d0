package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// TariffService manages subscription plans
type TariffService struct {
	db *gorm.DB
}

// NewTariffService creates a new tariff service
func NewTariffService(db *gorm.DB) *TariffService {
	return &TariffService{db: db}
}

// List returns active tariffs, cheapest first
func (s *TariffService) List(ctx context.Context) ([]model.Tariff, error) {
	var tariffs []model.Tariff
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("price ASC, id ASC").Find(&tariffs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tariffs: %w", err)
	}
	return tariffs, nil
}

// Get returns one tariff
func (s *TariffService) Get(ctx context.Context, id uint) (*model.Tariff, error) {
	var tariff model.Tariff
	err := s.db.WithContext(ctx).First(&tariff, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("tariff")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff: %w", err)
	}
	return &tariff, nil
}

// Default returns the free plan new users are put on
func (s *TariffService) Default(ctx context.Context) (*model.Tariff, error) {
	var tariff model.Tariff
	err := s.db.WithContext(ctx).Where("is_default = ?", true).First(&tariff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal("no default tariff configured", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default tariff: %w", err)
	}
	return &tariff, nil
}

// SetDefault makes id the only default tariff
func (s *TariffService) SetDefault(ctx context.Context, id uint) (*model.Tariff, error) {
	var tariff model.Tariff
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tariff, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("tariff")
			}
			return fmt.Errorf("failed to load tariff: %w", err)
		}
		if !tariff.IsActive {
			return apperr.Validation("an inactive tariff cannot be the default")
		}
		if err := tx.Model(&model.Tariff{}).
			Where("is_default = ? AND id <> ?", true, id).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("failed to clear default tariff: %w", err)
		}
		return tx.Model(&tariff).Update("is_default", true).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Uint("tariff_id", id).Msg("default tariff changed")
	return &tariff, nil
}
