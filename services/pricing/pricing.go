// Package pricing resolves the token cost of a test attempt.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Quote is the resolved price of one attempt
type Quote struct {
	Kind   model.TestKind `json:"kind"`
	Amount int            `json:"amount"`
	Trial  bool           `json:"trial"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// PriceFor returns the trial price when the user is on the default tariff
// (or on no tariff at all) and the regular price otherwise.
func (s *Service) PriceFor(ctx context.Context, userID uint, kind model.TestKind) (*Quote, error) {
	return s.PriceForTx(s.db.WithContext(ctx), userID, kind)
}

// PriceForTx is PriceFor inside a caller-owned transaction
func (s *Service) PriceForTx(tx *gorm.DB, userID uint, kind model.TestKind) (*Quote, error) {
	if !kind.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown test kind %q", kind))
	}

	var user model.User
	if err := tx.Preload("Tariff").Select("id", "tariff_id").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("failed to load user tariff: %w", err)
	}

	var price model.TestPrice
	if err := tx.Where("test_kind = ?", kind).First(&price).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal("no price configured for "+string(kind), err)
		}
		return nil, fmt.Errorf("failed to load test price: %w", err)
	}

	trial := user.Tariff == nil || user.Tariff.IsDefault
	amount := price.PriceRegular
	if trial {
		amount = price.PriceTrial
	}
	return &Quote{Kind: kind, Amount: amount, Trial: trial}, nil
}

// List returns the configured price table
func (s *Service) List(ctx context.Context) ([]model.TestPrice, error) {
	var prices []model.TestPrice
	if err := s.db.WithContext(ctx).Order("test_kind").Find(&prices).Error; err != nil {
		return nil, fmt.Errorf("failed to list test prices: %w", err)
	}
	return prices, nil
}

// Set creates or replaces the price of kind
func (s *Service) Set(ctx context.Context, kind model.TestKind, regular, trial int) (*model.TestPrice, error) {
	if !kind.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown test kind %q", kind))
	}
	if regular <= 0 || trial <= 0 {
		return nil, apperr.NewCode(apperr.KindValidation, apperr.CodeInvalidAmount, "prices must be positive")
	}

	price := model.TestPrice{TestKind: kind, PriceRegular: regular, PriceTrial: trial}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "test_kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"price_regular", "price_trial", "updated_at"}),
	}).Create(&price).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save test price: %w", err)
	}
	return &price, nil
}
