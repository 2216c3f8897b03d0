package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/api"
	"github.com/speaknowly/speaknowly-api/config"
	admin_handlers "github.com/speaknowly/speaknowly-api/handlers/admin"
	auth_handlers "github.com/speaknowly/speaknowly-api/handlers/auth"
	notification_handlers "github.com/speaknowly/speaknowly-api/handlers/notification"
	payment_handlers "github.com/speaknowly/speaknowly-api/handlers/payment"
	tests_handlers "github.com/speaknowly/speaknowly-api/handlers/tests"
	tokens_handlers "github.com/speaknowly/speaknowly-api/handlers/tokens"
	"github.com/speaknowly/speaknowly-api/router"
	"github.com/speaknowly/speaknowly-api/utils/logger"
	"github.com/speaknowly/speaknowly-api/utils/middleware"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 30 * time.Second

// Bootstrap loads the environment, initializes logging and builds the AppContext
func Bootstrap(ctx context.Context) (*AppContext, error) {
	// Load ENV
	if err := config.LoadENV(); err != nil {
		return nil, err
	}

	env, err := config.Get()
	if err != nil {
		return nil, err
	}
	logger.Init(env.GO_ENV, env.LOG_LEVEL)

	a, err := Build(ctx, env)
	if err != nil {
		log.Error().Err(err).Msg("startup failed; check that Postgres is running (make docker-up or make db-up)")
		return nil, err
	}
	return a, nil
}

// Routes builds the handlers for the HTTP surface
func (a *AppContext) Routes() router.Routes {
	var bruteForce *middleware.BruteForceProtection
	if a.Redis != nil {
		bruteForce = middleware.NewBruteForceProtection(a.Redis)
	}

	return router.Routes{
		Store:          a.Store,
		Redis:          a.Redis,
		AuthMiddleware: middleware.NewAuthMiddleware(a.JWT, a.Store.GetDB()),
		BruteForce:     bruteForce,
		Auth:           auth_handlers.NewAuthHandler(a.Auth, a.Validator, bruteForce),
		Tests:          tests_handlers.NewTestsHandler(a.Sessions, a.Progress, a.Redis, a.Validator),
		Tokens:         tokens_handlers.NewTokensHandler(a.Ledger, a.Pricing, a.Env.DAILY_BONUS_TOKENS),
		Payments:       payment_handlers.NewPaymentHandler(a.Payments, a.Tariffs, a.Validator),
		Notifications:  notification_handlers.NewNotificationHandler(a.Notifications),
		Admin: &admin_handlers.AdminHandler{
			Store:         a.Store,
			Ledger:        a.Ledger,
			Pricing:       a.Pricing,
			Tariffs:       a.Tariffs,
			Analytics:     a.Analytics,
			Notifications: a.Notifications,
			Sessions:      a.Sessions,
			Worker:        a.Worker,
			Queue:         a.Queue,
			Cron:          a.Cron,
			Blacklist:     a.Blacklist,
			Validator:     a.Validator,
		},
	}
}

func SetupAndRunServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	env := a.Env

	// In-process worker and scheduler, for single-binary deployments
	if env.CRON_ENABLED {
		if err := a.Cron.Start(); err != nil {
			log.Warn().Err(err).Msg("failed to start cron jobs")
		}
		defer a.Cron.Stop()
	}
	workerDone := make(chan struct{})
	if env.WORKER_ENABLED && a.Worker != nil {
		go func() {
			defer close(workerDone)
			if err := a.Worker.Run(ctx); err != nil {
				log.Error().Err(err).Msg("analysis worker stopped")
			}
		}()
	} else {
		close(workerDone)
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", env.PORT))
	engine := server.GetEngine()

	middleware.SetupSecurity(engine, middleware.SecurityConfig{
		AllowedOrigins:    env.ALLOWED_ORIGINS,
		RateLimitRequests: env.RATE_LIMIT_REQUESTS,
		RateLimitWindow:   env.RATE_LIMIT_WINDOW,
	})
	if env.MEDIA_BACKEND == "" || strings.EqualFold(env.MEDIA_BACKEND, "local") {
		engine.Static(env.MEDIA_BASE_URL, env.MEDIA_ROOT)
	}

	// Setup Routes
	router.SetupRoutes(engine, a.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case err := <-errCh:
		stop()
		<-workerDone
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	<-workerDone
	return nil
}
