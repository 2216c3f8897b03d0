package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/config"
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/services"
	"github.com/speaknowly/speaknowly-api/services/cron"
	"github.com/speaknowly/speaknowly-api/services/grader"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/services/pricing"
	"github.com/speaknowly/speaknowly-api/services/progress"
	"github.com/speaknowly/speaknowly-api/services/queue"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/services/worker"
	"github.com/speaknowly/speaknowly-api/utils/auth"
	"github.com/speaknowly/speaknowly-api/utils/cache"
	"github.com/speaknowly/speaknowly-api/utils/validation"
)

// AppContext holds every long-lived dependency of the process. It is built
// once at startup and passed explicitly; nothing is looked up globally.
type AppContext struct {
	Env   *config.EnvironmentVariable
	Store database.Storage
	Redis *cache.RedisCache // nil when Redis is unreachable
	Queue *queue.Queue      // nil when Redis is unreachable
	Media media.Store

	JWT       *auth.JWTManager
	Blacklist *auth.BlacklistService
	Validator *validation.Validator

	Ledger        *ledger.Service
	Pricing       *pricing.Service
	Grader        *grader.Service
	Sessions      *session.Orchestrator
	Progress      *progress.Service
	Worker        *worker.Worker // nil without a queue
	Cron          *cron.CronManager
	Notifications *services.NotificationService
	Email         *services.EmailService
	Verification  *services.VerificationService
	Tariffs       *services.TariffService
	Payments      *services.PaymentService
	Auth          *services.AuthService
	Analytics     *services.AnalyticsService
}

// Build connects to the database, Redis and the media store and wires the services
func Build(ctx context.Context, env *config.EnvironmentVariable) (*AppContext, error) {
	store, err := database.StartGORM(env)
	if err != nil {
		return nil, err
	}
	if err := store.Init(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	db := store.GetDB()

	a := &AppContext{
		Env:       env,
		Store:     store,
		Validator: validation.NewValidator(),
	}

	if a.Redis, err = cache.NewRedisCache(env.REDIS_URL); err != nil {
		if !env.IsDevelopment() {
			store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Warn().Err(err).Msg("redis unavailable: analysis queue, OTP throttling and brute force protection are disabled")
		a.Redis = nil
	} else {
		a.Queue = queue.New(a.Redis.GetClient(), queue.Options{})
	}

	if a.Media, err = newMediaStore(env); err != nil {
		a.Close()
		return nil, err
	}

	backend, err := newGraderBackend(ctx, env)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Grader = grader.NewService(backend, grader.NewChartRenderer(), a.Media, grader.Config{Timeout: env.GRADER_TIMEOUT})

	a.JWT = auth.NewJWTManager(auth.JWTConfig{
		Secret:        env.SECRET_KEY,
		Expiry:        env.JWT_ACCESS_TTL,
		RefreshExpiry: env.JWT_REFRESH_TTL,
		Issuer:        env.JWT_ISSUER,
	})
	a.Blacklist = auth.NewBlacklistService(db)

	a.Ledger = ledger.NewService(db)
	a.Pricing = pricing.NewService(db)
	a.Progress = progress.NewService(db)
	a.Notifications = services.NewNotificationService(db)
	a.Tariffs = services.NewTariffService(db)
	a.Analytics = services.NewAnalyticsService(db)
	a.Email = services.NewEmailService(services.EmailConfig{
		Host:     env.SMTP_HOST,
		Port:     env.SMTP_PORT,
		Username: env.SMTP_USERNAME,
		Password: env.SMTP_PASSWORD,
		From:     env.EMAIL_FROM,
	})
	a.Verification = services.NewVerificationService(db, a.Redis, a.Email)

	gateway := services.NewMidtransGateway(services.PaymentConfig{
		ServerKey:  env.PAYMENT_SECRET,
		Production: env.PAYMENT_PRODUCTION,
	})
	a.Payments = services.NewPaymentService(db, a.Ledger, gateway, a.Notifications, env.PAYMENT_SECRET)

	var google services.GoogleVerifier
	if env.GOOGLE_CLIENT_ID != "" {
		google = services.NewGoogleVerifier(env.GOOGLE_CLIENT_ID)
	}
	a.Auth = services.NewAuthService(db, services.AuthConfig{
		JWT:          a.JWT,
		Blacklist:    a.Blacklist,
		Verification: a.Verification,
		Tariffs:      a.Tariffs,
		Google:       google,
		Media:        a.Media,
	})

	deps := session.Deps{
		DB:        db,
		Ledger:    a.Ledger,
		Pricing:   a.Pricing,
		Generator: a.Grader,
		Media:     a.Media,
		TTL: session.TTLConfig{
			Listening: env.LISTENING_SESSION_TTL,
			Reading:   env.READING_SESSION_TTL,
			Writing:   env.WRITING_SESSION_TTL,
			Speaking:  env.SPEAKING_SESSION_TTL,
		},
	}
	if a.Queue != nil {
		deps.Queue = a.Queue
	}
	a.Sessions = session.New(deps)

	if a.Queue != nil {
		var mailer worker.Mailer
		if a.Email.IsConfigured() {
			mailer = a.Email
		}
		a.Worker = worker.New(db, a.Queue, a.Grader, a.Media, a.Notifications, mailer, worker.Config{
			Workers:     env.ANALYSIS_WORKERS,
			MaxAttempts: env.ANALYSIS_JOB_MAX_ATTEMPTS,
		})
	}

	cronDeps := cron.Deps{
		Sessions:      a.Sessions,
		Payments:      a.Payments,
		Ledger:        a.Ledger,
		Notifications: a.Notifications,
		Blacklist:     a.Blacklist,
		Codes:         a.Verification,
	}
	if a.Queue != nil {
		cronDeps.Queue = a.Queue
	}
	a.Cron = cron.NewCronManager(db, cronDeps)

	return a, nil
}

// Close releases the database and Redis connections
func (a *AppContext) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}

func newMediaStore(env *config.EnvironmentVariable) (media.Store, error) {
	switch strings.ToLower(env.MEDIA_BACKEND) {
	case "spaces", "s3":
		return media.NewSpacesStore(media.SpacesConfig{
			AccessKey: env.DO_SPACES_ACCESS_KEY,
			SecretKey: env.DO_SPACES_SECRET_KEY,
			Bucket:    env.DO_SPACES_BUCKET,
			Region:    env.DO_SPACES_REGION,
			Endpoint:  env.DO_SPACES_ENDPOINT,
			CDNURL:    env.DO_SPACES_CDN_ENDPOINT,
		})
	case "", "local":
		return media.NewLocalStore(env.MEDIA_ROOT, env.MEDIA_BASE_URL)
	}
	return nil, fmt.Errorf("unknown MEDIA_BACKEND %q", env.MEDIA_BACKEND)
}

func newGraderBackend(ctx context.Context, env *config.EnvironmentVariable) (grader.Backend, error) {
	switch strings.ToLower(env.GRADER_PROVIDER) {
	case "gemini":
		return grader.NewGeminiBackend(ctx, env.GEMINI_API_KEY, env.GEMINI_MODEL)
	case "", "openai":
		if env.OPENAI_API_KEY == "" {
			log.Warn().Msg("OPENAI_API_KEY is not set: writing and speaking tests will fail upstream")
		}
		return grader.NewOpenAIBackend(grader.OpenAIConfig{
			APIKey:          env.OPENAI_API_KEY,
			BaseURL:         env.OPENAI_BASE_URL,
			Model:           env.OPENAI_MODEL,
			TranscribeModel: env.OPENAI_TRANSCRIBE_MODEL,
			Timeout:         env.GRADER_TIMEOUT,
		}), nil
	}
	return nil, fmt.Errorf("unknown GRADER_PROVIDER %q", env.GRADER_PROVIDER)
}
