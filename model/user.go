package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser         = "user"
	RoleStaff        = "staff"
	RoleSuperuser    = "superuser"
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User represents a registered test taker or staff member
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Email        string     `gorm:"uniqueIndex;not null;type:varchar(254)" json:"email"`
	PasswordHash string     `gorm:"not null;default:''" json:"-"`
	FirstName    string     `gorm:"type:varchar(100)" json:"first_name"`
	LastName     string     `gorm:"type:varchar(100)" json:"last_name"`
	PhotoURL     string     `gorm:"type:varchar(512)" json:"photo_url,omitempty"`
	Provider     string     `gorm:"type:varchar(20);default:'password'" json:"provider"`
	IsActive     bool       `gorm:"default:false" json:"is_active"`
	IsVerified   bool       `gorm:"default:false" json:"is_verified"`
	IsStaff      bool       `gorm:"default:false" json:"is_staff"`
	IsSuperuser  bool       `gorm:"default:false" json:"is_superuser"`
	TokenBalance int        `gorm:"not null;default:0;check:chk_users_token_balance,token_balance >= 0" json:"token_balance"`
	TariffID     *uint      `gorm:"index" json:"tariff_id,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	TokenVersion int        `gorm:"default:0" json:"-"` // Increment to invalidate all user tokens

	// Relationships
	Tariff            *Tariff             `gorm:"foreignKey:TariffID;constraint:OnDelete:SET NULL" json:"tariff,omitempty"`
	Transactions      []TokenTransaction  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ListeningSessions []ListeningSession  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ReadingSessions   []Reading           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	WritingSessions   []Writing           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	SpeakingSessions  []Speaking          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Notifications     []UserNotification  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenBlacklist    []JWTTokenBlacklist `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeSave keeps emails case-folded so lookups are case-insensitive
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// NormalizeEmail case-folds and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Role returns the role name carried in access tokens
func (u *User) Role() string {
	switch {
	case u.IsSuperuser:
		return RoleSuperuser
	case u.IsStaff:
		return RoleStaff
	}
	return RoleUser
}

// IsPremium reports whether the user is on a paid tariff.
// It requires Tariff to be preloaded and never assigns one.
func (u *User) IsPremium() bool {
	return u.Tariff != nil && !u.Tariff.IsDefault
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
