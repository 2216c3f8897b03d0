package model

import (
	"time"
)

// Tariff is a subscription plan. Exactly one tariff is the default (free) plan.
type Tariff struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Name         string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	Price        float64   `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	TokensGrant  int       `gorm:"not null;default:0;check:chk_tariffs_tokens_grant,tokens_grant >= 0" json:"tokens_grant"`
	DurationDays int       `gorm:"not null;default:30" json:"duration_days"`
	IsDefault    bool      `gorm:"not null;default:false;uniqueIndex:idx_tariffs_single_default,where:is_default" json:"is_default"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
}

// TableName specifies the table name for Tariff
func (Tariff) TableName() string {
	return "tariffs"
}

// TestPrice holds the token cost of one attempt of a test kind
type TestPrice struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	TestKind     TestKind  `gorm:"type:varchar(20);not null;uniqueIndex" json:"test_kind"`
	PriceRegular int       `gorm:"not null;check:chk_test_prices_regular,price_regular > 0" json:"price_regular"`
	PriceTrial   int       `gorm:"not null;check:chk_test_prices_trial,price_trial > 0" json:"price_trial"`
}

// TableName specifies the table name for TestPrice
func (TestPrice) TableName() string {
	return "test_prices"
}

// TokenTransaction is one immutable row of the token ledger.
// Amount is signed: debits are negative and credits positive.
type TokenTransaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"not null;index:idx_token_tx_user_created,priority:1" json:"user_id"`
	Kind         TransactionKind `gorm:"type:varchar(30);not null;index" json:"kind"`
	Amount       int             `gorm:"not null;check:chk_token_tx_amount,amount <> 0" json:"amount"`
	BalanceAfter int             `gorm:"not null;check:chk_token_tx_balance,balance_after >= 0" json:"balance_after"`
	Description  string          `gorm:"type:varchar(255)" json:"description"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_token_tx_user_created,priority:2" json:"created_at"`
}

// TableName specifies the table name for TokenTransaction
func (TokenTransaction) TableName() string {
	return "token_transactions"
}

// PaymentStatus is the state of a tariff purchase
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSettled PaymentStatus = "settled"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusExpired PaymentStatus = "expired"
)

// TariffPayment records one checkout of a tariff through the payment gateway
type TariffPayment struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	UserID        uint          `gorm:"not null;index" json:"user_id"`
	TariffID      uint          `gorm:"not null;index" json:"tariff_id"`
	OrderID       string        `gorm:"type:varchar(100);not null;uniqueIndex" json:"order_id"`
	Amount        float64       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SnapToken     string        `gorm:"type:varchar(255)" json:"snap_token,omitempty"`
	RedirectURL   string        `gorm:"type:varchar(512)" json:"redirect_url,omitempty"`
	PaymentMethod string        `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Tariff Tariff `gorm:"foreignKey:TariffID;constraint:OnDelete:RESTRICT" json:"tariff,omitempty"`
}

// TableName specifies the table name for TariffPayment
func (TariffPayment) TableName() string {
	return "tariff_payments"
}
