package model

import (
	"time"
)

// VerificationPurpose tells what an emailed code unlocks
type VerificationPurpose string

const (
	VerificationRegister      VerificationPurpose = "register"
	VerificationPasswordReset VerificationPurpose = "password_reset"
)

// VerificationCode stores a hashed one-time code sent by email
type VerificationCode struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	UserID    uint                `gorm:"index;not null" json:"user_id"`
	Purpose   VerificationPurpose `gorm:"type:varchar(30);not null" json:"purpose"`
	CodeHash  string              `gorm:"not null;type:varchar(100)" json:"-"`
	Attempts  int                 `gorm:"not null;default:0" json:"attempts"`
	ExpiresAt time.Time           `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time          `json:"used_at,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for VerificationCode
func (VerificationCode) TableName() string {
	return "verification_codes"
}

// IsExpired checks if the code has expired at now
func (v *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// IsUsed checks if the code has been consumed
func (v *VerificationCode) IsUsed() bool {
	return v.UsedAt != nil
}
