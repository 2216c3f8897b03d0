// Package ledger keeps user token balances together with their immutable
// transaction log. Every balance change locks the user row, appends one
// TokenTransaction and updates users.token_balance in the same transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultLockTimeout bounds the wait for a user row lock
const DefaultLockTimeout = 5 * time.Second

// ListFilter narrows a ledger listing
type ListFilter struct {
	Kind model.TransactionKind
	From *time.Time
	To   *time.Time
}

// Discrepancy describes a user whose ledger does not replay to their balance
type Discrepancy struct {
	UserID        uint   `json:"user_id"`
	StoredBalance int    `json:"stored_balance"`
	LedgerBalance int    `json:"ledger_balance"`
	BrokenRowID   uint   `json:"broken_row_id,omitempty"`
	Reason        string `json:"reason"`
}

// Service is the token ledger
type Service struct {
	db          *gorm.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// NewService creates a ledger over db
func NewService(db *gorm.DB) *Service {
	return &Service{
		db:          db,
		lockTimeout: DefaultLockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Debit removes amount tokens and returns the new balance
func (s *Service) Debit(ctx context.Context, userID uint, kind model.TransactionKind, amount int, description string) (int, error) {
	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.DebitTx(tx, userID, kind, amount, description)
		return err
	})
	return balance, err
}

// Credit adds amount tokens and returns the new balance
func (s *Service) Credit(ctx context.Context, userID uint, kind model.TransactionKind, amount int, description string) (int, error) {
	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.CreditTx(tx, userID, kind, amount, description)
		return err
	})
	return balance, err
}

// DebitTx is Debit inside a caller-owned transaction
func (s *Service) DebitTx(tx *gorm.DB, userID uint, kind model.TransactionKind, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, apperr.NewCode(apperr.KindValidation, apperr.CodeInvalidAmount, "amount must be positive")
	}
	return s.apply(tx, userID, kind, -amount, description)
}

// CreditTx is Credit inside a caller-owned transaction
func (s *Service) CreditTx(tx *gorm.DB, userID uint, kind model.TransactionKind, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, apperr.NewCode(apperr.KindValidation, apperr.CodeInvalidAmount, "amount must be positive")
	}
	return s.apply(tx, userID, kind, amount, description)
}

func (s *Service) apply(tx *gorm.DB, userID uint, kind model.TransactionKind, delta int, description string) (int, error) {
	if !kind.Valid() {
		return 0, apperr.Validation(fmt.Sprintf("unknown transaction kind %q", kind))
	}

	user, err := s.lockUser(tx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := user.TokenBalance + delta
	if newBalance < 0 {
		return 0, apperr.InsufficientTokens(user.TokenBalance, -delta)
	}

	row := model.TokenTransaction{
		UserID:       userID,
		Kind:         kind,
		Amount:       delta,
		BalanceAfter: newBalance,
		Description:  description,
		CreatedAt:    s.now(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to append ledger row: %w", err)
	}

	if err := tx.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("token_balance", newBalance).Error; err != nil {
		if database.IsCheckViolation(err) {
			return 0, apperr.InsufficientTokens(user.TokenBalance, -delta)
		}
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	log.Debug().
		Uint("user_id", userID).
		Str("kind", string(kind)).
		Int("amount", delta).
		Int("balance", newBalance).
		Msg("ledger entry")

	return newBalance, nil
}

// lockUser takes the row lock that serializes every balance change of one user
func (s *Service) lockUser(tx *gorm.DB, userID uint) (*model.User, error) {
	if err := database.SetLockTimeout(tx, s.lockTimeout); err != nil {
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}

	var user model.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "token_balance").
		First(&user, userID).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.NotFound("user")
	case database.IsLockTimeout(err):
		return nil, apperr.Busy("balance is being updated, try again", err)
	}
	return nil, fmt.Errorf("failed to lock user: %w", err)
}

// Balance returns the committed balance
func (s *Service) Balance(ctx context.Context, userID uint) (int, error) {
	var user model.User
	err := s.db.WithContext(ctx).Select("id", "token_balance").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperr.NotFound("user")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	return user.TokenBalance, nil
}

// List returns one page of the user's ledger, newest first
func (s *Service) List(ctx context.Context, userID uint, filter ListFilter, page, limit int) ([]model.TokenTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.TokenTransaction{}).Where("user_id = ?", userID)
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var rows []model.TokenTransaction
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return rows, total, nil
}

// ClaimDailyBonus credits amount once per UTC day
func (s *Service) ClaimDailyBonus(ctx context.Context, userID uint, amount int) (int, error) {
	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the row lock also serializes concurrent claims
		if _, err := s.lockUser(tx, userID); err != nil {
			return err
		}

		now := s.now()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

		var claimed int64
		if err := tx.Model(&model.TokenTransaction{}).
			Where("user_id = ? AND kind = ? AND created_at >= ?", userID, model.TransactionDailyBonus, dayStart).
			Count(&claimed).Error; err != nil {
			return fmt.Errorf("failed to check daily bonus: %w", err)
		}
		if claimed > 0 {
			return apperr.NewCode(apperr.KindConflict, apperr.CodeAlreadyClaimed, "daily bonus already claimed today")
		}

		var err error
		balance, err = s.CreditTx(tx, userID, model.TransactionDailyBonus, amount, "Daily bonus")
		return err
	})
	return balance, err
}

// Reconcile replays the user's ledger and compares it with the stored balance.
// It returns nil when they agree.
func (s *Service) Reconcile(ctx context.Context, userID uint) (*Discrepancy, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Select("id", "token_balance").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var rows []model.TokenTransaction
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	running := 0
	for _, row := range rows {
		running += row.Amount
		if running != row.BalanceAfter {
			return &Discrepancy{
				UserID:        userID,
				StoredBalance: user.TokenBalance,
				LedgerBalance: running,
				BrokenRowID:   row.ID,
				Reason:        fmt.Sprintf("row %d records balance_after %d, replay gives %d", row.ID, row.BalanceAfter, running),
			}, nil
		}
	}
	if running != user.TokenBalance {
		return &Discrepancy{
			UserID:        userID,
			StoredBalance: user.TokenBalance,
			LedgerBalance: running,
			Reason:        "stored balance differs from ledger tail",
		}, nil
	}
	return nil, nil
}

// ReconcileAll checks every user that has a balance or a ledger
func (s *Service) ReconcileAll(ctx context.Context) ([]Discrepancy, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("token_balance <> 0 OR id IN (?)", s.db.Model(&model.TokenTransaction{}).Select("user_id")).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var out []Discrepancy
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, err := s.Reconcile(ctx, id)
		if err != nil {
			return out, err
		}
		if d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}
