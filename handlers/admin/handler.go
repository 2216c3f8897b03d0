package admin

import (
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/services"
	"github.com/speaknowly/speaknowly-api/services/cron"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/services/pricing"
	"github.com/speaknowly/speaknowly-api/services/queue"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/services/worker"
	"github.com/speaknowly/speaknowly-api/utils/auth"
	"github.com/speaknowly/speaknowly-api/utils/validation"
)

// AdminHandler serves the staff-only endpoints. Queue, Worker and Cron may
// be nil when the process runs without Redis.
type AdminHandler struct {
	Store         database.Storage
	Ledger        *ledger.Service
	Pricing       *pricing.Service
	Tariffs       *services.TariffService
	Analytics     *services.AnalyticsService
	Notifications *services.NotificationService
	Sessions      *session.Orchestrator
	Worker        *worker.Worker
	Queue         *queue.Queue
	Cron          *cron.CronManager
	Blacklist     *auth.BlacklistService
	Validator     *validation.Validator
}
