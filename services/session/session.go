// Package session drives the lifecycle of listening, reading, writing and
// speaking attempts: paid start, answer submission, cancellation, expiry
// and hand-off to the analysis queue.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grader"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/services/pricing"
	"github.com/speaknowly/speaknowly-api/services/queue"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// Enqueuer hands completed sessions to the analysis worker
type Enqueuer interface {
	Enqueue(ctx context.Context, kind model.TestKind, sessionID uint) (*queue.Job, error)
}

// Generator materializes AI-generated prompts at start time
type Generator interface {
	GenerateWritingPrompts(ctx context.Context, lang string) (*grader.WritingPrompts, error)
	RenderChart(ctx context.Context, data grader.ChartData) (*media.Artifact, error)
	GenerateSpeakingQuestions(ctx context.Context, lang string) (*grader.SpeakingQuestions, error)
}

// TTLConfig is the time a session may stay STARTED, per kind
type TTLConfig struct {
	Listening time.Duration
	Reading   time.Duration
	Writing   time.Duration
	Speaking  time.Duration
}

// DefaultTTLs returns 60/60/90/30 minutes
func DefaultTTLs() TTLConfig {
	return TTLConfig{
		Listening: 60 * time.Minute,
		Reading:   60 * time.Minute,
		Writing:   90 * time.Minute,
		Speaking:  30 * time.Minute,
	}
}

func (c TTLConfig) For(kind model.TestKind) time.Duration {
	switch kind {
	case model.TestKindListening:
		return c.Listening
	case model.TestKindReading:
		return c.Reading
	case model.TestKindWriting:
		return c.Writing
	case model.TestKindSpeaking:
		return c.Speaking
	}
	return 0
}

// Deps are the collaborators of every session service
type Deps struct {
	DB        *gorm.DB
	Ledger    *ledger.Service
	Pricing   *pricing.Service
	Queue     Enqueuer
	Generator Generator
	Media     media.Store
	TTL       TTLConfig
	Now       func() time.Time
}

// table describes where one kind keeps its sessions and analyses
type table struct {
	sessions   string
	analyses   string
	foreignKey string
}

var tables = map[model.TestKind]table{
	model.TestKindListening: {sessions: "listening_sessions", analyses: "listening_analyses", foreignKey: "session_id"},
	model.TestKindReading:   {sessions: "readings", analyses: "reading_analyses", foreignKey: "reading_id"},
	model.TestKindWriting:   {sessions: "writings", analyses: "writing_analyses", foreignKey: "writing_id"},
	model.TestKindSpeaking:  {sessions: "speakings", analyses: "speaking_analyses", foreignKey: "speaking_id"},
}

// header is the state shared by all session tables
type header struct {
	ID        uint
	UserID    uint
	Status    model.SessionStatus
	StartTime time.Time
	EndTime   *time.Time
}

// AnalysisView is returned by GetAnalysis. Analysis is nil while pending.
type AnalysisView struct {
	Status   model.AnalysisStatus `json:"status"`
	Analysis interface{}          `json:"analysis,omitempty"`
}

// core implements the lifecycle rules common to every kind
type core struct {
	db        *gorm.DB
	ledger    *ledger.Service
	pricing   *pricing.Service
	queue     Enqueuer
	generator Generator
	media     media.Store
	ttl       TTLConfig
	now       func() time.Time
}

func newCore(deps Deps) *core {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TTL == (TTLConfig{}) {
		deps.TTL = DefaultTTLs()
	}
	return &core{
		db:        deps.DB,
		ledger:    deps.Ledger,
		pricing:   deps.Pricing,
		queue:     deps.Queue,
		generator: deps.Generator,
		media:     deps.Media,
		ttl:       deps.TTL,
		now:       func() time.Time { return deps.Now().UTC() },
	}
}

// charge debits the price of one attempt inside tx
func (c *core) charge(tx *gorm.DB, userID uint, kind model.TestKind) (int, error) {
	quote, err := c.pricing.PriceForTx(tx, userID, kind)
	if err != nil {
		return 0, err
	}
	if _, err := c.ledger.DebitTx(tx, userID, kind.TransactionKind(), quote.Amount, fmt.Sprintf("%s test", kind)); err != nil {
		return 0, err
	}
	return quote.Amount, nil
}

// precheck fails fast with INSUFFICIENT_TOKENS before any upstream call.
// The debit inside the start transaction remains authoritative.
func (c *core) precheck(ctx context.Context, userID uint, kind model.TestKind) error {
	quote, err := c.pricing.PriceFor(ctx, userID, kind)
	if err != nil {
		return err
	}
	balance, err := c.ledger.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance < quote.Amount {
		return apperr.InsufficientTokens(balance, quote.Amount)
	}
	return nil
}

// access loads the session header, enforces ownership and applies lazy expiry.
// A session owned by someone else is reported as not found.
func (c *core) access(ctx context.Context, kind model.TestKind, userID, id uint) (*header, error) {
	h, err := c.load(c.db.WithContext(ctx), kind, id)
	if err != nil {
		return nil, err
	}
	if h.UserID != userID {
		return nil, apperr.NotFound(string(kind) + " session")
	}

	if h.Status == model.SessionStatusStarted && c.overdue(kind, h.StartTime) {
		ok, err := c.transition(c.db.WithContext(ctx), kind, id, model.SessionStatusExpired)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Info().Str("kind", string(kind)).Uint("session_id", id).Msg("session expired on access")
		}
		return c.load(c.db.WithContext(ctx), kind, id)
	}
	return h, nil
}

func (c *core) load(db *gorm.DB, kind model.TestKind, id uint) (*header, error) {
	var h header
	err := db.Table(tables[kind].sessions).
		Select("id", "user_id", "status", "start_time", "end_time").
		Where("id = ?", id).
		Take(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(string(kind) + " session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s session: %w", kind, err)
	}
	return &h, nil
}

func (c *core) overdue(kind model.TestKind, start time.Time) bool {
	ttl := c.ttl.For(kind)
	return ttl > 0 && c.now().After(start.Add(ttl))
}

// transition moves a STARTED session to status. It reports false when the
// session had already left STARTED, so each session transitions once.
func (c *core) transition(db *gorm.DB, kind model.TestKind, id uint, status model.SessionStatus) (bool, error) {
	now := c.now()
	res := db.Table(tables[kind].sessions).
		Where("id = ? AND status = ?", id, model.SessionStatusStarted).
		Updates(map[string]interface{}{"status": status, "end_time": now, "updated_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update %s session: %w", kind, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// complete transitions to COMPLETED inside tx or fails with SESSION_TERMINAL
func (c *core) complete(tx *gorm.DB, kind model.TestKind, id uint) error {
	ok, err := c.transition(tx, kind, id, model.SessionStatusCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return c.terminal(tx, kind, id)
	}
	return nil
}

// requireStarted locks in the STARTED state for the rest of tx
func (c *core) requireStarted(tx *gorm.DB, kind model.TestKind, id uint) error {
	res := tx.Table(tables[kind].sessions).
		Where("id = ? AND status = ?", id, model.SessionStatusStarted).
		Update("updated_at", c.now())
	if res.Error != nil {
		return fmt.Errorf("failed to touch %s session: %w", kind, res.Error)
	}
	if res.RowsAffected != 1 {
		return c.terminal(tx, kind, id)
	}
	return nil
}

func (c *core) terminal(db *gorm.DB, kind model.TestKind, id uint) error {
	h, err := c.load(db, kind, id)
	if err != nil {
		return err
	}
	return apperr.SessionTerminal(string(h.Status))
}

// cancel is idempotent: cancelling a CANCELLED session succeeds
func (c *core) cancel(ctx context.Context, kind model.TestKind, userID, id uint) error {
	h, err := c.access(ctx, kind, userID, id)
	if err != nil {
		return err
	}
	switch h.Status {
	case model.SessionStatusCancelled:
		return nil
	case model.SessionStatusStarted, model.SessionStatusPending:
	default:
		return apperr.SessionTerminal(string(h.Status))
	}

	ok, err := c.transition(c.db.WithContext(ctx), kind, id, model.SessionStatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		h, err = c.load(c.db.WithContext(ctx), kind, id)
		if err != nil {
			return err
		}
		if h.Status != model.SessionStatusCancelled {
			return apperr.SessionTerminal(string(h.Status))
		}
	}

	log.Info().Str("kind", string(kind)).Uint("session_id", id).Uint("user_id", userID).Msg("session cancelled")
	return nil
}

// enqueue schedules analysis after commit. A failure leaves the session
// COMPLETED; ReconcileUnanalysed picks it up later.
func (c *core) enqueue(ctx context.Context, kind model.TestKind, id uint) {
	if c.queue == nil {
		return
	}
	job, err := c.queue.Enqueue(context.WithoutCancel(ctx), kind, id)
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Uint("session_id", id).Msg("failed to enqueue analysis")
		return
	}
	log.Info().Str("kind", string(kind)).Uint("session_id", id).Str("job_id", job.ID).Msg("analysis enqueued")
}

// analysis returns the analyse row of a completed session, or a pending view
func (c *core) analysis(ctx context.Context, kind model.TestKind, userID, id uint, dest interface{}) (*AnalysisView, error) {
	h, err := c.access(ctx, kind, userID, id)
	if err != nil {
		return nil, err
	}
	if h.Status != model.SessionStatusCompleted {
		return nil, apperr.New(apperr.KindSessionNotCompleted, fmt.Sprintf("%s session is %s", kind, h.Status))
	}

	err = c.db.WithContext(ctx).Where(tables[kind].foreignKey+" = ?", id).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &AnalysisView{Status: model.AnalysisStatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s analysis: %w", kind, err)
	}
	return &AnalysisView{Status: model.AnalysisStatusCompleted, Analysis: dest}, nil
}

// Orchestrator bundles the per-kind services with the cross-kind jobs
type Orchestrator struct {
	Listening *ListeningService
	Reading   *ReadingService
	Writing   *WritingService
	Speaking  *SpeakingService

	core *core
}

// New creates the orchestrator
func New(deps Deps) *Orchestrator {
	c := newCore(deps)
	return &Orchestrator{
		Listening: &ListeningService{core: c},
		Reading:   &ReadingService{core: c},
		Writing:   &WritingService{core: c},
		Speaking:  &SpeakingService{core: c},
		core:      c,
	}
}

// Cancel cancels a session of any kind
func (o *Orchestrator) Cancel(ctx context.Context, kind model.TestKind, userID, id uint) error {
	if !kind.Valid() {
		return apperr.Validation("unknown test kind")
	}
	return o.core.cancel(ctx, kind, userID, id)
}

// SweepExpired promotes every overdue STARTED session to EXPIRED
func (o *Orchestrator) SweepExpired(ctx context.Context) (map[model.TestKind]int64, error) {
	c := o.core
	now := c.now()
	counts := make(map[model.TestKind]int64, len(tables))
	for _, kind := range model.AllTestKinds {
		ttl := c.ttl.For(kind)
		if ttl <= 0 {
			continue
		}
		res := c.db.WithContext(ctx).Table(tables[kind].sessions).
			Where("status = ? AND start_time < ?", model.SessionStatusStarted, now.Add(-ttl)).
			Updates(map[string]interface{}{"status": model.SessionStatusExpired, "end_time": now, "updated_at": now})
		if res.Error != nil {
			return counts, fmt.Errorf("failed to expire %s sessions: %w", kind, res.Error)
		}
		counts[kind] = res.RowsAffected
	}
	return counts, nil
}

// ReconcileUnanalysed re-enqueues completed sessions that have no analysis
// and finished more than olderThan ago. Dead-lettered sessions are left for
// staff to requeue or regrade.
func (o *Orchestrator) ReconcileUnanalysed(ctx context.Context, olderThan time.Duration) (int, error) {
	c := o.core
	if c.queue == nil {
		return 0, nil
	}
	cutoff := c.now().Add(-olderThan)

	total := 0
	for _, kind := range model.AllTestKinds {
		t := tables[kind]
		var ids []uint
		err := c.db.WithContext(ctx).Table(t.sessions+" AS s").
			Joins(fmt.Sprintf("LEFT JOIN %s a ON a.%s = s.id", t.analyses, t.foreignKey)).
			Where("s.status = ? AND s.end_time < ? AND a.id IS NULL", model.SessionStatusCompleted, cutoff).
			Where("NOT EXISTS (SELECT 1 FROM analysis_dead_letters d WHERE d.test_kind = ? AND d.session_id = s.id AND d.requeued_at IS NULL)", kind).
			Limit(500).
			Pluck("s.id", &ids).Error
		if err != nil {
			return total, fmt.Errorf("failed to find unanalysed %s sessions: %w", kind, err)
		}
		for _, id := range ids {
			if _, err := c.queue.Enqueue(ctx, kind, id); err != nil {
				return total, fmt.Errorf("failed to re-enqueue %s session %d: %w", kind, id, err)
			}
			total++
		}
	}
	return total, nil
}

// Regrade queues a completed session for a fresh analysis
func (o *Orchestrator) Regrade(ctx context.Context, kind model.TestKind, id uint) (*queue.Job, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown test kind")
	}
	c := o.core
	h, err := c.load(c.db.WithContext(ctx), kind, id)
	if err != nil {
		return nil, err
	}
	if h.Status != model.SessionStatusCompleted {
		return nil, apperr.New(apperr.KindSessionNotCompleted, fmt.Sprintf("%s session is %s", kind, h.Status))
	}
	if c.queue == nil {
		return nil, apperr.Internal("analysis queue is not configured", nil)
	}
	return c.queue.Enqueue(ctx, kind, id)
}

// DurationSeconds is end - start, floored at zero
func DurationSeconds(start time.Time, end *time.Time) int {
	if end == nil {
		return 0
	}
	d := int(end.Sub(start).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
