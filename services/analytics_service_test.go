package services

import (
	"context"
	"testing"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardStats(t *testing.T) {
	db := testutil.NewDB(t)
	premium := testutil.PremiumTariff(t, db)
	free := testutil.NewUser(t, db, 5)
	paid := testutil.NewUser(t, db, 0, testutil.WithTariff(premium))

	now := time.Now().UTC()
	require.NoError(t, db.Create(&model.Reading{UserID: free.ID, Status: model.SessionStatusCompleted, StartTime: now}).Error)
	require.NoError(t, db.Create(&model.Reading{UserID: paid.ID, Status: model.SessionStatusStarted, StartTime: now}).Error)
	require.NoError(t, db.Create(&model.TariffPayment{
		UserID: paid.ID, TariffID: premium.ID, OrderID: "SN-1", Amount: 100,
		Status: model.PaymentStatusSettled, PaidAt: &now,
	}).Error)
	require.NoError(t, db.Create(&model.AnalysisDeadLetter{JobID: "j1", TestKind: model.TestKindWriting, SessionID: 9, Attempts: 5}).Error)

	stats, err := NewAnalyticsService(db).GetDashboardStats(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, stats.TotalUsers)
	assert.EqualValues(t, 2, stats.NewUsersToday)
	assert.EqualValues(t, 1, stats.PremiumUsers)
	assert.Equal(t, KindCounts{Total: 2, Completed: 1, PendingAnalysis: 1}, stats.Sessions[model.TestKindReading])
	assert.Equal(t, KindCounts{}, stats.Sessions[model.TestKindSpeaking])
	assert.EqualValues(t, 1, stats.PendingAnalyses)
	assert.EqualValues(t, 2, stats.SessionsToday)
	assert.EqualValues(t, 5, stats.TokensGranted)
	assert.InDelta(t, 100, stats.Revenue, 0.001)
	assert.EqualValues(t, 1, stats.DeadLetters)
}

func TestTimeSeriesValidatesInput(t *testing.T) {
	svc := NewAnalyticsService(testutil.NewDB(t))

	_, err := svc.GetSessionTimeSeries(context.Background(), 0, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.GetSessionTimeSeries(context.Background(), 7, model.TestKind("maths"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.GetRevenueTimeSeries(context.Background(), MaxSeriesDays+1)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
