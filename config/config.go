package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV    string
	PORT      int
	LOG_LEVEL string

	// Database
	DB_URL       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string

	// JWT
	SECRET_KEY      string
	JWT_ISSUER      string
	JWT_ACCESS_TTL  time.Duration
	JWT_REFRESH_TTL time.Duration

	REDIS_URL string

	// Grader
	GRADER_PROVIDER         string
	GRADER_TIMEOUT          time.Duration
	OPENAI_API_KEY          string
	OPENAI_BASE_URL         string
	OPENAI_MODEL            string
	OPENAI_TRANSCRIBE_MODEL string
	GEMINI_API_KEY          string
	GEMINI_MODEL            string

	// Sessions and analysis
	LISTENING_SESSION_TTL     time.Duration
	READING_SESSION_TTL       time.Duration
	WRITING_SESSION_TTL       time.Duration
	SPEAKING_SESSION_TTL      time.Duration
	ANALYSIS_JOB_MAX_ATTEMPTS int
	ANALYSIS_WORKERS          int
	DAILY_BONUS_TOKENS        int
	WORKER_ENABLED            bool
	CRON_ENABLED              bool

	// Email
	SMTP_HOST     string
	SMTP_PORT     int
	SMTP_USERNAME string
	SMTP_PASSWORD string
	EMAIL_FROM    string

	// Payments
	PAYMENT_MERCHANT_ID string
	PAYMENT_SECRET      string
	PAYMENT_PRODUCTION  bool

	GOOGLE_CLIENT_ID string

	// Seeded staff account
	ADMIN_EMAIL    string
	ADMIN_PASSWORD string

	// Media
	MEDIA_BACKEND          string
	MEDIA_ROOT             string
	MEDIA_BASE_URL         string
	DO_SPACES_ACCESS_KEY   string
	DO_SPACES_SECRET_KEY   string
	DO_SPACES_BUCKET       string
	DO_SPACES_REGION       string
	DO_SPACES_ENDPOINT     string
	DO_SPACES_CDN_ENDPOINT string

	// HTTP
	ALLOWED_ORIGINS     string
	RATE_LIMIT_REQUESTS int
	RATE_LIMIT_WINDOW   time.Duration
}

// IsDevelopment reports whether the process runs with development defaults
func (e *EnvironmentVariable) IsDevelopment() bool {
	return e.GO_ENV == "" || e.GO_ENV == "development"
}

// DSN returns DB_URL or a DSN assembled from the DB_* parts
func (e *EnvironmentVariable) DSN() string {
	if e.DB_URL != "" {
		return e.DB_URL
	}
	sslMode := e.DB_SSL_MODE
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		e.DB_HOST, e.DB_USER_NAME, e.DB_PASSWORD, e.DB_NAME, e.DB_PORT, sslMode)
}

func Get() (*EnvironmentVariable, error) {
	p := parser{}

	env := &EnvironmentVariable{
		GO_ENV:    os.Getenv("GO_ENV"),
		PORT:      p.int("PORT", 8080),
		LOG_LEVEL: str("LOG_LEVEL", "info"),

		DB_URL:       os.Getenv("DB_URL"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      str("DB_HOST", "localhost"),
		DB_PORT:      str("DB_PORT", "5432"),
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),

		SECRET_KEY:      str("SECRET_KEY", os.Getenv("JWT_SECRET")),
		JWT_ISSUER:      str("JWT_ISSUER", "speaknowly"),
		JWT_ACCESS_TTL:  p.duration("JWT_ACCESS_TTL", 5*24*time.Hour),
		JWT_REFRESH_TTL: p.duration("JWT_REFRESH_TTL", 90*24*time.Hour),

		REDIS_URL: str("REDIS_URL", "redis://localhost:6379/0"),

		GRADER_PROVIDER:         strings.ToLower(str("GRADER_PROVIDER", "openai")),
		GRADER_TIMEOUT:          time.Duration(p.int("GRADER_TIMEOUT_S", 60)) * time.Second,
		OPENAI_API_KEY:          os.Getenv("OPENAI_API_KEY"),
		OPENAI_BASE_URL:         str("OPENAI_BASE_URL", "https://api.openai.com"),
		OPENAI_MODEL:            str("OPENAI_MODEL", "gpt-4o-mini"),
		OPENAI_TRANSCRIBE_MODEL: str("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		GEMINI_API_KEY:          os.Getenv("GEMINI_API_KEY"),
		GEMINI_MODEL:            str("GEMINI_MODEL", "gemini-1.5-flash"),

		LISTENING_SESSION_TTL:     p.duration("LISTENING_SESSION_TTL", 60*time.Minute),
		READING_SESSION_TTL:       p.duration("READING_SESSION_TTL", 60*time.Minute),
		WRITING_SESSION_TTL:       p.duration("WRITING_SESSION_TTL", 90*time.Minute),
		SPEAKING_SESSION_TTL:      p.duration("SPEAKING_SESSION_TTL", 30*time.Minute),
		ANALYSIS_JOB_MAX_ATTEMPTS: p.int("ANALYSIS_JOB_MAX_ATTEMPTS", 5),
		ANALYSIS_WORKERS:          p.int("ANALYSIS_WORKERS", 4),
		DAILY_BONUS_TOKENS:        p.int("DAILY_BONUS_TOKENS", 5),
		WORKER_ENABLED:            p.bool("WORKER_ENABLED", true),
		CRON_ENABLED:              p.bool("CRON_ENABLED", true),

		SMTP_HOST:     os.Getenv("SMTP_HOST"),
		SMTP_PORT:     p.int("SMTP_PORT", 587),
		SMTP_USERNAME: os.Getenv("SMTP_USERNAME"),
		SMTP_PASSWORD: os.Getenv("SMTP_PASSWORD"),
		EMAIL_FROM:    str("EMAIL_FROM", "SpeakNowly <no-reply@speaknowly.com>"),

		PAYMENT_MERCHANT_ID: os.Getenv("PAYMENT_MERCHANT_ID"),
		PAYMENT_SECRET:      os.Getenv("PAYMENT_SECRET"),
		PAYMENT_PRODUCTION:  p.bool("PAYMENT_PRODUCTION", false),

		GOOGLE_CLIENT_ID: os.Getenv("GOOGLE_CLIENT_ID"),
		ADMIN_EMAIL:      os.Getenv("ADMIN_EMAIL"),
		ADMIN_PASSWORD:   os.Getenv("ADMIN_PASSWORD"),

		MEDIA_BACKEND:          strings.ToLower(str("MEDIA_BACKEND", "local")),
		MEDIA_ROOT:             str("MEDIA_ROOT", "media"),
		MEDIA_BASE_URL:         str("MEDIA_BASE_URL", "/media"),
		DO_SPACES_ACCESS_KEY:   os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY:   os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_SPACES_BUCKET:       os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:       os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT:     os.Getenv("DO_SPACES_ENDPOINT"),
		DO_SPACES_CDN_ENDPOINT: os.Getenv("DO_SPACES_CDN_ENDPOINT"),

		ALLOWED_ORIGINS:     str("ALLOWED_ORIGINS", "*"),
		RATE_LIMIT_REQUESTS: p.int("RATE_LIMIT_REQUESTS", 120),
		RATE_LIMIT_WINDOW:   p.duration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if p.err != nil {
		return nil, p.err
	}
	if env.SECRET_KEY == "" {
		return nil, fmt.Errorf("SECRET_KEY must be set")
	}
	if env.GRADER_PROVIDER != "openai" && env.GRADER_PROVIDER != "gemini" {
		return nil, fmt.Errorf("GRADER_PROVIDER must be openai or gemini, got %q", env.GRADER_PROVIDER)
	}
	if env.MEDIA_BACKEND != "local" && env.MEDIA_BACKEND != "spaces" {
		return nil, fmt.Errorf("MEDIA_BACKEND must be local or spaces, got %q", env.MEDIA_BACKEND)
	}
	if env.ANALYSIS_JOB_MAX_ATTEMPTS < 1 {
		return nil, fmt.Errorf("ANALYSIS_JOB_MAX_ATTEMPTS must be positive")
	}

	return env, nil
}

// ParseDuration accepts Go durations plus a "d" suffix for whole days
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser keeps the first malformed variable so Get can report it
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}
