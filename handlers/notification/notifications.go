package notification

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
	"github.com/speaknowly/speaknowly-api/utils/query"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// NotificationHandler handles notification-related API endpoints
type NotificationHandler struct {
	notificationService *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GetNotifications handles GET /api/v1/notifications
// Returns the authenticated user's notifications, newest first
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit := query.Page(c)
	notifications, total, err := h.notificationService.GetNotificationsByUser(c.UserContext(), services.ListNotificationsOptions{
		UserID:     userID,
		UnreadOnly: query.Bool(c, "unread_only"),
		Category:   c.Query("category"),
		Limit:      limit,
		Offset:     query.Offset(page, limit),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	items := make([]model.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		items = append(items, notifications[i].ToResponse())
	}
	return response.Paginated(c, items, response.CalculatePagination(page, limit, total))
}

// GetUnreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	count, err := h.notificationService.GetUnreadCount(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"unread_count": count})
}

// GetNotification handles GET /api/v1/notifications/:id
func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	notification, err := h.notificationService.GetNotificationByID(c.UserContext(), id, userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, notification.ToResponse())
}

// MarkAsRead handles PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	if err := h.notificationService.MarkAsRead(c.UserContext(), id, userID); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Notification marked as read", nil)
}

// MarkAllAsRead handles PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	count, err := h.notificationService.MarkAllAsRead(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "All notifications marked as read", fiber.Map{"marked_count": count})
}

// DeleteNotification handles DELETE /api/v1/notifications/:id
func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.ID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	if err := h.notificationService.DeleteNotification(c.UserContext(), id, userID); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Notification deleted", nil)
}
