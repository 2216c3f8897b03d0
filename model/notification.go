package model

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType represents the type/severity of notification
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

// NotificationCategory represents the category of notification
type NotificationCategory string

const (
	NotificationCategoryAnalysis NotificationCategory = "analysis"
	NotificationCategoryTokens   NotificationCategory = "tokens"
	NotificationCategoryPayment  NotificationCategory = "payment"
	NotificationCategoryAccount  NotificationCategory = "account"
	NotificationCategoryGeneral  NotificationCategory = "general"
)

// UserNotification represents an in-app notification for a user
type UserNotification struct {
	ID        uint                 `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	UserID    uint                 `gorm:"index;not null" json:"user_id"`
	Type      NotificationType     `gorm:"type:varchar(20);not null" json:"type"`
	Category  NotificationCategory `gorm:"type:varchar(30);not null" json:"category"`
	Title     string               `gorm:"type:varchar(255);not null" json:"title"`
	Message   string               `gorm:"type:text" json:"message"`
	Read      bool                 `gorm:"default:false" json:"read"`
	Metadata  datatypes.JSON       `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName specifies the table name for UserNotification
func (UserNotification) TableName() string {
	return "user_notifications"
}

// NotificationMetadata links a notification to the session it is about
type NotificationMetadata struct {
	TestKind     TestKind `json:"test_kind,omitempty"`
	SessionID    uint     `json:"session_id,omitempty"`
	OverallScore float64  `json:"overall_score,omitempty"`
	Tokens       int      `json:"tokens,omitempty"`
	OrderID      string   `json:"order_id,omitempty"`
}

// NotificationResponse represents the API response format for a notification
type NotificationResponse struct {
	ID        uint                 `json:"id"`
	Type      NotificationType     `json:"type"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Read      bool                 `json:"read"`
	Metadata  datatypes.JSON       `json:"metadata,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// ToResponse converts a UserNotification to NotificationResponse
func (n *UserNotification) ToResponse() NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Category:  n.Category,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	}
}

// OpsNotification is an alert for operators (dead-lettered jobs, ledger drift)
type OpsNotification struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Source     string         `gorm:"type:varchar(50);not null;index" json:"source"`
	Title      string         `gorm:"type:varchar(255);not null" json:"title"`
	Message    string         `gorm:"type:text" json:"message"`
	Metadata   datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	Resolved   bool           `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// TableName specifies the table name for OpsNotification
func (OpsNotification) TableName() string {
	return "ops_notifications"
}

// AnalysisDeadLetter mirrors a job that exhausted its attempts
type AnalysisDeadLetter struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	JobID      string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"job_id"`
	TestKind   TestKind   `gorm:"type:varchar(20);not null;index:idx_dead_letter_session,priority:1" json:"test_kind"`
	SessionID  uint       `gorm:"not null;index:idx_dead_letter_session,priority:2" json:"session_id"`
	Attempts   int        `gorm:"not null" json:"attempts"`
	LastError  string     `gorm:"type:text" json:"last_error"`
	RequeuedAt *time.Time `json:"requeued_at,omitempty"`
}

// TableName specifies the table name for AnalysisDeadLetter
func (AnalysisDeadLetter) TableName() string {
	return "analysis_dead_letters"
}
