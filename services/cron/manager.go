package cron

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// DefaultJobTimeout bounds a single job run
const DefaultJobTimeout = 10 * time.Minute

// Job is one scheduled task. It reports how many rows it touched.
type Job func(ctx context.Context) (affected int64, message string, err error)

type entry struct {
	name     string
	schedule string
	job      Job
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron    *cron.Cron
	db      *gorm.DB
	deps    Deps
	jobs    map[string]entry
	timeout time.Duration
	now     func() time.Time
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, deps Deps) *CronManager {
	logger := cronLogger{logger: log.With().Str("component", "cron").Logger()}

	// Create cron with seconds precision; a run still in progress skips the next tick
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	m := &CronManager{
		cron:    c,
		db:      db,
		deps:    deps,
		jobs:    make(map[string]entry),
		timeout: DefaultJobTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	m.define()
	return m
}

// Start registers all jobs and starts the scheduler
func (m *CronManager) Start() error {
	log.Info().Int("jobs", len(m.jobs)).Msg("starting cron jobs")

	for _, name := range m.Names() {
		e := m.jobs[name]
		if _, err := m.cron.AddFunc(e.schedule, func() {
			_, _ = m.Run(context.Background(), e.name)
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", e.name, err)
		}
		log.Debug().Str("job", e.name).Str("schedule", e.schedule).Msg("cron job registered")
	}

	m.cron.Start()
	log.Info().Msg("cron jobs started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (m *CronManager) Stop() {
	log.Info().Msg("stopping cron jobs")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("cron jobs stopped")
}

// Names lists the registered jobs
func (m *CronManager) Names() []string {
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *CronManager) register(name, schedule string, job Job) {
	m.jobs[name] = entry{name: name, schedule: schedule, job: job}
}

// Run executes a job immediately and records it in cron_job_logs
func (m *CronManager) Run(ctx context.Context, name string) (*model.CronJobLog, error) {
	e, ok := m.jobs[name]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("cron job %q", name))
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	started := m.now()
	entry := m.logJobStart(ctx, name, started)

	affected, message, err := e.job(ctx)
	finished := m.now()
	entry.CompletedAt = &finished
	entry.Duration = finished.Sub(started).Milliseconds()
	entry.Affected = affected
	entry.Message = message

	if err != nil {
		entry.Status = model.CronStatusFailed
		entry.ErrorMsg = err.Error()
		log.Error().Err(err).Str("job", name).Int64("affected", affected).Msg("cron job failed")
	} else {
		entry.Status = model.CronStatusCompleted
		log.Info().Str("job", name).Int64("affected", affected).Int64("duration_ms", entry.Duration).Msg(message)
	}
	m.logJobEnd(entry)
	return entry, err
}

// logJobStart writes the running row for a job
func (m *CronManager) logJobStart(ctx context.Context, name string, started time.Time) *model.CronJobLog {
	entry := &model.CronJobLog{
		JobName:   name,
		Status:    model.CronStatusRunning,
		StartedAt: started,
	}
	if err := m.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.Warn().Err(err).Str("job", name).Msg("failed to record cron job start")
	}
	return entry
}

// logJobEnd records the outcome of a run, even when its context expired
func (m *CronManager) logJobEnd(entry *model.CronJobLog) {
	db := m.db.WithContext(context.Background())
	var err error
	if entry.ID == 0 {
		err = db.Create(entry).Error
	} else {
		err = db.Model(entry).Updates(map[string]interface{}{
			"status":       entry.Status,
			"completed_at": entry.CompletedAt,
			"duration":     entry.Duration,
			"affected":     entry.Affected,
			"message":      entry.Message,
			"error_msg":    entry.ErrorMsg,
		}).Error
	}
	if err != nil {
		log.Warn().Err(err).Str("job", entry.JobName).Msg("failed to record cron job result")
	}
}

// RecentRuns returns the latest runs, optionally for one job
func (m *CronManager) RecentRuns(ctx context.Context, name string, limit int) ([]model.CronJobLog, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	query := m.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit)
	if name != "" {
		query = query.Where("job_name = ?", name)
	}
	var rows []model.CronJobLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list cron runs: %w", err)
	}
	return rows, nil
}
