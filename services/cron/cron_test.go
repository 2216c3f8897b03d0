package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	swept map[model.TestKind]int64
	err   error
}

func (f *fakeSessions) SweepExpired(ctx context.Context) (map[model.TestKind]int64, error) {
	return f.swept, f.err
}

func (f *fakeSessions) ReconcileUnanalysed(ctx context.Context, olderThan time.Duration) (int, error) {
	return 2, nil
}

type fakeLedger struct {
	found []ledger.Discrepancy
}

func (f *fakeLedger) ReconcileAll(ctx context.Context) ([]ledger.Discrepancy, error) {
	return f.found, nil
}

type fakeNotifications struct {
	ops []string
}

func (f *fakeNotifications) CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 3, nil
}

func (f *fakeNotifications) NotifyOps(ctx context.Context, source, title, message string, metadata interface{}) (*model.OpsNotification, error) {
	f.ops = append(f.ops, title)
	return &model.OpsNotification{}, nil
}

type countCleaner int64

func (c countCleaner) CleanupExpiredTokens(ctx context.Context) (int64, error) { return int64(c), nil }

func TestJobsRegisteredByDependency(t *testing.T) {
	db := testutil.NewDB(t)

	m := NewCronManager(db, Deps{})
	assert.Equal(t, []string{"cleanup_tokens"}, m.Names())

	m = NewCronManager(db, Deps{Sessions: &fakeSessions{}, Ledger: &fakeLedger{}})
	assert.Equal(t, []string{"audit_ledger", "cleanup_tokens", "expire_sessions", "reconcile_analysis"}, m.Names())

	_, err := m.Run(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRunRecordsCompletedJob(t *testing.T) {
	db := testutil.NewDB(t)
	sessions := &fakeSessions{swept: map[model.TestKind]int64{
		model.TestKindReading:  2,
		model.TestKindSpeaking: 1,
	}}
	m := NewCronManager(db, Deps{Sessions: sessions})

	entry, err := m.Run(context.Background(), "expire_sessions")
	require.NoError(t, err)
	assert.Equal(t, model.CronStatusCompleted, entry.Status)
	assert.EqualValues(t, 3, entry.Affected)
	require.NotNil(t, entry.CompletedAt)

	runs, err := m.RecentRuns(context.Background(), "expire_sessions", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.CronStatusCompleted, runs[0].Status)
	assert.Equal(t, "expired 3 sessions", runs[0].Message)
}

func TestRunRecordsFailedJob(t *testing.T) {
	db := testutil.NewDB(t)
	m := NewCronManager(db, Deps{Sessions: &fakeSessions{err: errors.New("db down")}})

	_, err := m.Run(context.Background(), "expire_sessions")
	require.Error(t, err)

	var row model.CronJobLog
	require.NoError(t, db.Where("job_name = ?", "expire_sessions").First(&row).Error)
	assert.Equal(t, model.CronStatusFailed, row.Status)
	assert.Contains(t, row.ErrorMsg, "db down")
}

func TestAuditLedgerAlertsOps(t *testing.T) {
	db := testutil.NewDB(t)
	notes := &fakeNotifications{}
	audit := &fakeLedger{}
	m := NewCronManager(db, Deps{Ledger: audit, Notifications: notes})

	entry, err := m.Run(context.Background(), "audit_ledger")
	require.NoError(t, err)
	assert.Zero(t, entry.Affected)
	assert.Empty(t, notes.ops)

	audit.found = []ledger.Discrepancy{{UserID: 7, StoredBalance: 5, LedgerBalance: 4, Reason: "balance mismatch"}}
	entry, err = m.Run(context.Background(), "audit_ledger")
	require.NoError(t, err)
	assert.EqualValues(t, 1, entry.Affected)
	assert.Equal(t, []string{"1 ledger discrepancies"}, notes.ops)
}

func TestCleanupPrunesOldCronLogs(t *testing.T) {
	db := testutil.NewDB(t)
	old := time.Now().UTC().Add(-CronLogRetention - time.Hour)
	require.NoError(t, db.Create(&model.CronJobLog{JobName: "expire_sessions", Status: model.CronStatusCompleted, StartedAt: old}).Error)

	m := NewCronManager(db, Deps{Blacklist: countCleaner(4), Notifications: &fakeNotifications{}})
	entry, err := m.Run(context.Background(), "cleanup_tokens")
	require.NoError(t, err)
	assert.EqualValues(t, 8, entry.Affected)

	var remaining int64
	require.NoError(t, db.Model(&model.CronJobLog{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining) // only this run
}
