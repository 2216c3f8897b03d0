package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/ledger"
)

const (
	// AnalysisReconcileAge is how long a completed session may wait for an analysis job
	AnalysisReconcileAge = 30 * time.Second
	// PaymentExpiry is how long a checkout may stay pending
	PaymentExpiry = 24 * time.Hour
	// CodeRetention keeps used or expired codes around for support lookups
	CodeRetention = 24 * time.Hour
	// NotificationRetention drops read notifications after this long
	NotificationRetention = 90 * 24 * time.Hour
	// CronLogRetention drops old cron_job_logs rows
	CronLogRetention = 30 * 24 * time.Hour
)

// SessionMaintainer sweeps expired sessions and re-enqueues lost analyses
type SessionMaintainer interface {
	SweepExpired(ctx context.Context) (map[model.TestKind]int64, error)
	ReconcileUnanalysed(ctx context.Context, olderThan time.Duration) (int, error)
}

// JobRedeliverer returns jobs with expired leases to the ready list
type JobRedeliverer interface {
	RequeueExpired(ctx context.Context) (int64, error)
}

// PaymentExpirer expires abandoned checkouts
type PaymentExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// LedgerAuditor checks stored balances against the ledger
type LedgerAuditor interface {
	ReconcileAll(ctx context.Context) ([]ledger.Discrepancy, error)
}

// Notifications cleans up old user notifications and raises ops alerts
type Notifications interface {
	CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error)
	NotifyOps(ctx context.Context, source, title, message string, metadata interface{}) (*model.OpsNotification, error)
}

// TokenCleaner removes expired blacklist entries
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// CodeCleaner removes spent verification codes
type CodeCleaner interface {
	CleanupCodes(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Deps are the services the jobs drive. A nil dependency disables its job.
type Deps struct {
	Sessions      SessionMaintainer
	Queue         JobRedeliverer
	Payments      PaymentExpirer
	Ledger        LedgerAuditor
	Notifications Notifications
	Blacklist     TokenCleaner
	Codes         CodeCleaner
}

// define registers every job whose dependencies are present
func (m *CronManager) define() {
	d := m.deps
	if d.Sessions != nil {
		m.register("expire_sessions", "0 * * * * *", m.ExpireSessions)
		m.register("reconcile_analysis", "15 * * * * *", m.ReconcileAnalysis)
	}
	if d.Queue != nil {
		m.register("requeue_stale_jobs", "*/30 * * * * *", m.RequeueStaleJobs)
	}
	if d.Payments != nil {
		m.register("expire_payments", "0 0 * * * *", m.ExpirePayments)
	}
	if d.Ledger != nil {
		m.register("audit_ledger", "0 0 3 * * *", m.AuditLedger)
	}
	m.register("cleanup_tokens", "0 0 4 * * *", m.Cleanup)
}

// ExpireSessions marks started sessions past their deadline as expired
func (m *CronManager) ExpireSessions(ctx context.Context) (int64, string, error) {
	counts, err := m.deps.Sessions.SweepExpired(ctx)
	var total int64
	for _, n := range counts {
		total += n
	}
	if err != nil {
		return total, "", fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return total, fmt.Sprintf("expired %d sessions", total), nil
}

// ReconcileAnalysis enqueues completed sessions that never got an analysis
func (m *CronManager) ReconcileAnalysis(ctx context.Context) (int64, string, error) {
	n, err := m.deps.Sessions.ReconcileUnanalysed(ctx, AnalysisReconcileAge)
	if err != nil {
		return int64(n), "", fmt.Errorf("failed to reconcile analyses: %w", err)
	}
	return int64(n), fmt.Sprintf("enqueued %d missing analyses", n), nil
}

// RequeueStaleJobs returns abandoned worker leases to the queue
func (m *CronManager) RequeueStaleJobs(ctx context.Context) (int64, string, error) {
	n, err := m.deps.Queue.RequeueExpired(ctx)
	if err != nil {
		return n, "", fmt.Errorf("failed to requeue jobs: %w", err)
	}
	return n, fmt.Sprintf("requeued %d jobs", n), nil
}

// ExpirePayments closes checkouts that were never paid
func (m *CronManager) ExpirePayments(ctx context.Context) (int64, string, error) {
	n, err := m.deps.Payments.ExpireStale(ctx, PaymentExpiry)
	if err != nil {
		return n, "", fmt.Errorf("failed to expire payments: %w", err)
	}
	return n, fmt.Sprintf("expired %d payments", n), nil
}

// AuditLedger reports users whose stored balance disagrees with their ledger
func (m *CronManager) AuditLedger(ctx context.Context) (int64, string, error) {
	found, err := m.deps.Ledger.ReconcileAll(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("failed to audit ledger: %w", err)
	}
	if len(found) == 0 {
		return 0, "ledger consistent", nil
	}
	if m.deps.Notifications != nil {
		title := fmt.Sprintf("%d ledger discrepancies", len(found))
		if _, err := m.deps.Notifications.NotifyOps(ctx, "audit_ledger", title,
			"stored token balances disagree with the ledger", found); err != nil {
			return int64(len(found)), "", fmt.Errorf("failed to raise ledger alert: %w", err)
		}
	}
	return int64(len(found)), fmt.Sprintf("found %d discrepancies", len(found)), nil
}

// Cleanup prunes revoked tokens, spent codes, old notifications and old cron logs
func (m *CronManager) Cleanup(ctx context.Context) (int64, string, error) {
	var blacklisted, codes, notes int64
	var err error

	if m.deps.Blacklist != nil {
		if blacklisted, err = m.deps.Blacklist.CleanupExpiredTokens(ctx); err != nil {
			return blacklisted, "", fmt.Errorf("failed to clean token blacklist: %w", err)
		}
	}
	if m.deps.Codes != nil {
		if codes, err = m.deps.Codes.CleanupCodes(ctx, CodeRetention); err != nil {
			return blacklisted + codes, "", fmt.Errorf("failed to clean codes: %w", err)
		}
	}
	if m.deps.Notifications != nil {
		if notes, err = m.deps.Notifications.CleanupOldNotifications(ctx, NotificationRetention); err != nil {
			return blacklisted + codes + notes, "", fmt.Errorf("failed to clean notifications: %w", err)
		}
	}

	res := m.db.WithContext(ctx).
		Where("started_at < ?", m.now().Add(-CronLogRetention)).
		Delete(&model.CronJobLog{})
	if res.Error != nil {
		return blacklisted + codes + notes, "", fmt.Errorf("failed to clean cron logs: %w", res.Error)
	}

	total := blacklisted + codes + notes + res.RowsAffected
	return total, fmt.Sprintf("removed %d tokens, %d codes, %d notifications, %d cron logs",
		blacklisted, codes, notes, res.RowsAffected), nil
}
