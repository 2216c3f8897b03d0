package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/handlers"
	admin_handlers "github.com/speaknowly/speaknowly-api/handlers/admin"
	auth_handlers "github.com/speaknowly/speaknowly-api/handlers/auth"
	notification_handlers "github.com/speaknowly/speaknowly-api/handlers/notification"
	payment_handlers "github.com/speaknowly/speaknowly-api/handlers/payment"
	tests_handlers "github.com/speaknowly/speaknowly-api/handlers/tests"
	tokens_handlers "github.com/speaknowly/speaknowly-api/handlers/tokens"
	"github.com/speaknowly/speaknowly-api/utils"
	"github.com/speaknowly/speaknowly-api/utils/cache"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
)

// Routes are the handlers and middleware the route table is built from
type Routes struct {
	Store          database.Storage
	Redis          *cache.RedisCache // nil without Redis
	AuthMiddleware *middleware.AuthMiddleware
	BruteForce     *middleware.BruteForceProtection // nil disables login throttling
	Auth           *auth_handlers.AuthHandler
	Tests          *tests_handlers.TestsHandler
	Tokens         *tokens_handlers.TokensHandler
	Payments       *payment_handlers.PaymentHandler
	Notifications  *notification_handlers.NotificationHandler
	Admin          *admin_handlers.AdminHandler
}

func SetupRoutes(app *fiber.App, r Routes) {
	authMiddleware := r.AuthMiddleware
	authHandler := r.Auth

	// Health check endpoint (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth(r.Redis), r.Store))

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/verify", authHandler.Verify)
	authGroup.Post("/resend-otp", authHandler.ResendCode)

	// Login with brute force protection
	if r.BruteForce != nil {
		authGroup.Post("/login", r.BruteForce.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/google", authHandler.GoogleLogin)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/forgot-password", authHandler.ForgotPassword)
	authGroup.Post("/reset-password", authHandler.ResetPassword)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)

	// Profile routes (protected)
	profileGroup := api.Group("/profile", authMiddleware.Required())
	profileGroup.Get("/", authHandler.GetProfile)
	profileGroup.Put("/", authHandler.UpdateProfile)
	profileGroup.Put("/password", authHandler.ChangePassword)
	profileGroup.Post("/photo", authHandler.UploadPhoto)

	// ==================== Tests ====================

	tests := api.Group("/tests", authMiddleware.Required(), middleware.RequireActive())
	testsHandler := r.Tests

	listening := tests.Group("/listening")
	listening.Post("/start", testsHandler.StartListening)
	listening.Get("/session/:id", testsHandler.GetListening)
	listening.Post("/session/:id/submit", testsHandler.SubmitListening)
	listening.Post("/session/:id/cancel", testsHandler.CancelListening)
	listening.Get("/session/:id/analyse", testsHandler.ListeningAnalysis)

	reading := tests.Group("/reading")
	reading.Post("/start", testsHandler.StartReading)
	reading.Get("/:id", testsHandler.GetReading)
	reading.Post("/:id/passage/submit", testsHandler.SubmitPassage)
	reading.Post("/:id/finish", testsHandler.FinishReading)
	reading.Post("/:id/restart", testsHandler.RestartReading)
	reading.Post("/:id/cancel", testsHandler.CancelReading)
	reading.Get("/:id/analyse", testsHandler.ReadingAnalysis)

	writing := tests.Group("/writing")
	writing.Post("/start", testsHandler.StartWriting)
	writing.Get("/:id", testsHandler.GetWriting)
	writing.Post("/:id/submit", testsHandler.SubmitWriting)
	writing.Post("/:id/cancel", testsHandler.CancelWriting)
	writing.Get("/:id/analyse", testsHandler.WritingAnalysis)

	speaking := tests.Group("/speaking")
	speaking.Post("/", testsHandler.StartSpeaking)
	speaking.Get("/:id", testsHandler.GetSpeaking)
	speaking.Post("/:id/answers", testsHandler.SubmitSpeaking)
	speaking.Post("/:id/cancel", testsHandler.CancelSpeaking)
	speaking.Get("/:id/analyse", testsHandler.SpeakingAnalysis)

	tests.Get("/history", testsHandler.History)
	tests.Get("/progress", testsHandler.Progress)
	tests.Get("/stats", testsHandler.Stats)
	tests.Get("/top", testsHandler.Top)

	// ==================== Tokens, tariffs & payments ====================

	tokens := api.Group("/tokens", authMiddleware.Required(), middleware.RequireActive())
	tokens.Get("/balance", r.Tokens.GetBalance)
	tokens.Get("/transactions", r.Tokens.ListTransactions)
	tokens.Post("/daily-bonus", r.Tokens.ClaimDailyBonus)

	tariffs := api.Group("/tariffs")
	tariffs.Get("/", r.Payments.ListTariffs)
	tariffs.Get("/:id", r.Payments.GetTariff)

	// The webhook is registered before the authenticated group so it stays public
	api.Post("/payments/webhook", r.Payments.Webhook)
	payments := api.Group("/payments", authMiddleware.Required(), middleware.RequireActive())
	payments.Post("/", r.Payments.CreatePayment)
	payments.Get("/", r.Payments.ListPayments)

	// ==================== Notifications ====================

	notifications := api.Group("/notifications", authMiddleware.Required())
	notificationHandler := r.Notifications
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount)
	notifications.Put("/read-all", notificationHandler.MarkAllAsRead)
	notifications.Get("/:id", notificationHandler.GetNotification)
	notifications.Put("/:id/read", notificationHandler.MarkAsRead)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)

	// ==================== Admin Panel Endpoints ====================

	admin := api.Group("/admin", authMiddleware.Required(), middleware.RequireStaff())
	adminHandler := r.Admin

	// Admin User Management
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/users/:id", adminHandler.GetUser)
	admin.Put("/users/:id", adminHandler.UpdateUser)
	admin.Delete("/users/:id", adminHandler.DeleteUser)
	admin.Post("/users/:id/tokens", adminHandler.AdjustTokens)

	// Admin Analytics
	admin.Get("/analytics/overview", adminHandler.GetDashboard)
	admin.Get("/analytics/sessions", adminHandler.GetSessionSeries)
	admin.Get("/analytics/revenue", adminHandler.GetRevenueSeries)
	admin.Get("/analytics/signups", adminHandler.GetSignupSeries)

	// Prices and tariffs
	admin.Get("/prices", adminHandler.ListPrices)
	admin.Put("/prices/:kind", adminHandler.SetPrice)
	admin.Put("/tariffs/:id/default", adminHandler.SetDefaultTariff)

	// Analysis pipeline and ledger
	admin.Post("/sessions/:kind/:id/regrade", adminHandler.Regrade)
	admin.Get("/analysis/dead-letters", adminHandler.ListDeadLetters)
	admin.Post("/analysis/dead-letters/:id/requeue", adminHandler.RequeueDeadLetter)
	admin.Get("/ledger/reconcile", adminHandler.ReconcileLedger)

	// Operator alerts and scheduled jobs
	admin.Get("/ops-notifications", adminHandler.ListOpsNotifications)
	admin.Post("/ops-notifications/:id/resolve", adminHandler.ResolveOpsNotification)
	admin.Get("/cron/runs", adminHandler.ListCronRuns)
	admin.Post("/cron/:name/run", adminHandler.RunCronJob)
}
