package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationService handles user and operator notifications
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	UserID   uint
	Type     model.NotificationType
	Category model.NotificationCategory
	Title    string
	Message  string
	Metadata *model.NotificationMetadata
}

// ListNotificationsOptions represents options for listing notifications
type ListNotificationsOptions struct {
	UserID     uint
	UnreadOnly bool
	Category   string
	Limit      int
	Offset     int
}

func encodeMetadata(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// CreateNotification creates a new notification for a user
func (s *NotificationService) CreateNotification(ctx context.Context, req CreateNotificationRequest) (*model.UserNotification, error) {
	notification := &model.UserNotification{
		UserID:   req.UserID,
		Type:     req.Type,
		Category: req.Category,
		Title:    req.Title,
		Message:  req.Message,
	}

	if req.Metadata != nil {
		metadata, err := encodeMetadata(req.Metadata)
		if err != nil {
			return nil, err
		}
		notification.Metadata = metadata
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	log.Debug().Uint("notification_id", notification.ID).Uint("user_id", req.UserID).Str("title", req.Title).Msg("notification created")
	return notification, nil
}

// AnalysisReady tells the user their result is available
func (s *NotificationService) AnalysisReady(ctx context.Context, userID uint, kind model.TestKind, sessionID uint, score float64) error {
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   userID,
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryAnalysis,
		Title:    fmt.Sprintf("Your %s result is ready", kind),
		Message:  fmt.Sprintf("Overall band: %.1f", score),
		Metadata: &model.NotificationMetadata{TestKind: kind, SessionID: sessionID, OverallScore: score},
	})
	return err
}

// AnalysisFailed tells the user grading could not finish
func (s *NotificationService) AnalysisFailed(ctx context.Context, userID uint, kind model.TestKind, sessionID uint) error {
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   userID,
		Type:     model.NotificationTypeError,
		Category: model.NotificationCategoryAnalysis,
		Title:    fmt.Sprintf("We could not grade your %s test", kind),
		Message:  "Our team has been notified and will re-grade it shortly.",
		Metadata: &model.NotificationMetadata{TestKind: kind, SessionID: sessionID},
	})
	return err
}

// GetNotificationsByUser retrieves notifications for a user
func (s *NotificationService) GetNotificationsByUser(ctx context.Context, opts ListNotificationsOptions) ([]model.UserNotification, int64, error) {
	var notifications []model.UserNotification
	var total int64

	query := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ?", opts.UserID)

	if opts.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	if opts.Category != "" {
		query = query.Where("category = ?", opts.Category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	} else {
		query = query.Limit(50)
	}

	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	if err := query.Order("created_at DESC, id DESC").Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

// GetNotificationByID retrieves a single notification owned by userID
func (s *NotificationService) GetNotificationByID(ctx context.Context, notificationID uint, userID uint) (*model.UserNotification, error) {
	var notification model.UserNotification

	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("notification")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}

	return &notification, nil
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID uint, userID uint) error {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return apperr.NotFound("notification")
	}

	return nil
}

// MarkAllAsRead marks all notifications for a user as read
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// DeleteNotification deletes a notification
func (s *NotificationService) DeleteNotification(ctx context.Context, notificationID uint, userID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return apperr.NotFound("notification")
	}

	return nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// CleanupOldNotifications removes read notifications older than the specified duration
func (s *NotificationService) CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("created_at < ? AND read = ?", cutoff, true).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup old notifications: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Info().Int64("deleted", result.RowsAffected).Msg("cleaned up old notifications")
	}

	return result.RowsAffected, nil
}

// NotifyOps records an alert for operators
func (s *NotificationService) NotifyOps(ctx context.Context, source, title, message string, metadata interface{}) (*model.OpsNotification, error) {
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	alert := &model.OpsNotification{Source: source, Title: title, Message: message, Metadata: encoded}
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to create ops notification: %w", err)
	}
	log.Warn().Str("source", source).Str("title", title).Msg(message)
	return alert, nil
}

// ListOps returns operator alerts, unresolved first
func (s *NotificationService) ListOps(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]model.OpsNotification, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.OpsNotification{})
	if unresolvedOnly {
		query = query.Where("resolved = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ops notifications: %w", err)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var alerts []model.OpsNotification
	if err := query.Order("resolved ASC, created_at DESC").Limit(limit).Offset(offset).Find(&alerts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch ops notifications: %w", err)
	}
	return alerts, total, nil
}

// ResolveOps marks an operator alert as handled
func (s *NotificationService) ResolveOps(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&model.OpsNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve ops notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("ops notification")
	}
	return nil
}
