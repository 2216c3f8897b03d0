// Package worker consumes the analysis queue: it grades completed sessions,
// upserts their analyse rows and notifies the user.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grader"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/services/queue"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobQueue is the part of queue.Queue the worker uses
type JobQueue interface {
	Enqueue(ctx context.Context, kind model.TestKind, sessionID uint) (*queue.Job, error)
	Dequeue(ctx context.Context) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Retry(ctx context.Context, job *queue.Job, delay time.Duration, cause error) error
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

// Grader is the part of grader.Service the worker uses
type Grader interface {
	TranscribeAudio(ctx context.Context, audio []byte, mimeType, lang string) (string, error)
	GradeWriting(ctx context.Context, in grader.WritingInput, lang string) (*grader.WritingGrade, error)
	GradeSpeaking(ctx context.Context, in grader.SpeakingInput, lang string) (*grader.SpeakingGrade, error)
	GradeListening(ctx context.Context, answers, correct map[int][]string, lang string) (*grader.ListeningReview, error)
}

// Notifier receives analysis outcomes
type Notifier interface {
	AnalysisReady(ctx context.Context, userID uint, kind model.TestKind, sessionID uint, score float64) error
	AnalysisFailed(ctx context.Context, userID uint, kind model.TestKind, sessionID uint) error
	NotifyOps(ctx context.Context, source, title, message string, metadata interface{}) (*model.OpsNotification, error)
}

// Mailer emails the result; optional
type Mailer interface {
	SendAnalysisReady(ctx context.Context, to, name string, kind model.TestKind, score float64) error
}

// Config tunes the pool and the retry policy
type Config struct {
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	Language     string
}

// DefaultConfig returns 4 workers, 5 attempts and 2s..5m backoff
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		MaxAttempts:  5,
		PollInterval: time.Second,
		BackoffBase:  2 * time.Second,
		BackoffMax:   5 * time.Minute,
		Language:     "en",
	}
}

// Worker runs analysis jobs
type Worker struct {
	db       *gorm.DB
	queue    JobQueue
	grader   Grader
	media    media.Store
	notifier Notifier
	mailer   Mailer
	config   Config
}

// New creates a worker. mailer may be nil.
func New(db *gorm.DB, q JobQueue, g Grader, store media.Store, notifier Notifier, mailer Mailer, config Config) *Worker {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = defaults.BackoffMax
	}
	if config.Language == "" {
		config.Language = defaults.Language
	}
	return &Worker{
		db:       db,
		queue:    q,
		grader:   g,
		media:    store,
		notifier: notifier,
		mailer:   mailer,
		config:   config,
	}
}

// Run polls the queue with Config.Workers goroutines until ctx is done
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Int("workers", w.config.Workers).Int("max_attempts", w.config.MaxAttempts).Msg("analysis worker started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.config.Workers; i++ {
		id := i
		g.Go(func() error {
			return w.loop(ctx, id)
		})
	}
	err := g.Wait()
	log.Info().Msg("analysis worker stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, id int) error {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int("worker", id).Msg("analysis worker iteration failed")
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessNext handles one job and reports whether there was one
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, w.handle(ctx, job)
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	// a lease outlives the request that dequeued it
	ctx = context.WithoutCancel(ctx)
	logger := log.With().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Uint("session_id", job.SessionID).
		Int("attempt", job.Attempt).
		Logger()

	started := time.Now()
	result, err := w.Analyze(ctx, job.Kind, job.SessionID, job.Attempt >= w.config.MaxAttempts)
	switch {
	case err == nil:
		if err := w.queue.Ack(ctx, job); err != nil {
			return err
		}
		if result == nil {
			logger.Info().Msg("session is not completed, job dropped")
			return nil
		}
		logger.Info().Float64("score", result.Score).Int("version", result.Version).Dur("took", time.Since(started)).Msg("analysis stored")
		w.announce(ctx, job, result)
		return nil

	case apperr.Is(err, apperr.KindNotFound):
		logger.Warn().Err(err).Msg("session vanished, job dropped")
		return w.queue.Ack(ctx, job)

	case !retryable(err) || job.Attempt >= w.config.MaxAttempts:
		logger.Error().Err(err).Msg("analysis failed permanently")
		return w.deadLetter(ctx, job, err)
	}

	delay := RetryDelay(w.config, job.Attempt)
	logger.Warn().Err(err).Dur("retry_in", delay).Msg("analysis failed, retrying")
	return w.queue.Retry(ctx, job, delay, err)
}

// retryable reports whether another attempt may succeed
func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return false
	}
	return true
}

// RetryDelay is BackoffBase * 2^(attempt-1), capped at BackoffMax
func RetryDelay(config Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := config.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= config.BackoffMax {
			return config.BackoffMax
		}
	}
	if delay > config.BackoffMax {
		return config.BackoffMax
	}
	return delay
}

func (w *Worker) announce(ctx context.Context, job *queue.Job, result *Result) {
	if w.notifier != nil {
		if err := w.notifier.AnalysisReady(ctx, result.UserID, job.Kind, job.SessionID, result.Score); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to create analysis notification")
		}
	}
	if w.mailer == nil || result.Version > 1 {
		return
	}
	var user model.User
	if err := w.db.WithContext(ctx).Select("id", "email", "first_name", "last_name").First(&user, result.UserID).Error; err != nil {
		log.Warn().Err(err).Uint("user_id", result.UserID).Msg("failed to load user for result email")
		return
	}
	if err := w.mailer.SendAnalysisReady(ctx, user.Email, user.FullName(), job.Kind, result.Score); err != nil {
		log.Warn().Err(err).Uint("user_id", result.UserID).Msg("failed to send result email")
	}
}

// deadLetter parks the job and records it for operators
func (w *Worker) deadLetter(ctx context.Context, job *queue.Job, cause error) error {
	if err := w.queue.DeadLetter(ctx, job, cause); err != nil {
		return err
	}

	row := model.AnalysisDeadLetter{
		JobID:     job.ID,
		TestKind:  job.Kind,
		SessionID: job.SessionID,
		Attempts:  job.Attempt,
		LastError: cause.Error(),
	}
	err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"attempts", "last_error", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}

	if w.notifier == nil {
		return nil
	}
	_, err = w.notifier.NotifyOps(ctx, "analysis_worker",
		fmt.Sprintf("%s analysis dead-lettered", job.Kind),
		fmt.Sprintf("session %d failed after %d attempts: %v", job.SessionID, job.Attempt, cause),
		map[string]interface{}{"job_id": job.ID, "kind": job.Kind, "session_id": job.SessionID, "dead_letter_id": row.ID},
	)
	if err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to create ops notification")
	}

	if userID, err := w.owner(ctx, job.Kind, job.SessionID); err == nil {
		if err := w.notifier.AnalysisFailed(ctx, userID, job.Kind, job.SessionID); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to create failure notification")
		}
	}
	return nil
}

// ListDeadLetters returns one page of dead-lettered jobs, newest first
func (w *Worker) ListDeadLetters(ctx context.Context, pendingOnly bool, page, limit int) ([]model.AnalysisDeadLetter, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	query := w.db.WithContext(ctx).Model(&model.AnalysisDeadLetter{})
	if pendingOnly {
		query = query.Where("requeued_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	var rows []model.AnalysisDeadLetter
	if err := query.Order("created_at DESC, id DESC").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return rows, total, nil
}

// RequeueDeadLetter puts a dead-lettered session back on the queue
func (w *Worker) RequeueDeadLetter(ctx context.Context, id uint) (*queue.Job, error) {
	var row model.AnalysisDeadLetter
	err := w.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("dead letter")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dead letter: %w", err)
	}
	if row.RequeuedAt != nil {
		return nil, apperr.Conflict("dead letter was already requeued")
	}

	job, err := w.queue.Enqueue(ctx, row.TestKind, row.SessionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := w.db.WithContext(ctx).Model(&row).Update("requeued_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to mark dead letter requeued: %w", err)
	}
	log.Info().Uint("dead_letter_id", id).Str("job_id", job.ID).Msg("dead letter requeued")
	return job, nil
}
