package progress

import (
	"context"
	"testing"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func writing(t *testing.T, db *gorm.DB, userID uint, created time.Time, score *float64) *model.Writing {
	t.Helper()
	end := created.Add(40 * time.Minute)
	w := model.Writing{UserID: userID, Status: model.SessionStatusCompleted, StartTime: created, EndTime: &end, CreatedAt: created}
	require.NoError(t, db.Create(&w).Error)
	if score != nil {
		require.NoError(t, db.Create(&model.WritingAnalyse{
			WritingID: w.ID, UserID: userID, OverallBandScore: *score, DurationSeconds: 2400,
			Status: model.AnalysisStatusCompleted, AnalysisVersion: 1,
		}).Error)
	}
	return &w
}

func speaking(t *testing.T, db *gorm.DB, userID uint, created time.Time, score *float64) *model.Speaking {
	t.Helper()
	s := model.Speaking{UserID: userID, Status: model.SessionStatusCompleted, StartTime: created, CreatedAt: created}
	require.NoError(t, db.Create(&s).Error)
	if score != nil {
		require.NoError(t, db.Create(&model.SpeakingAnalyse{
			SpeakingID: s.ID, UserID: userID, OverallBandScore: *score, DurationSeconds: 600,
			Status: model.AnalysisStatusCompleted, AnalysisVersion: 1,
		}).Error)
	}
	return &s
}

func listening(t *testing.T, db *gorm.DB, userID, examID uint, created time.Time, score *float64) *model.ListeningSession {
	t.Helper()
	s := model.ListeningSession{UserID: userID, ExamID: examID, Status: model.SessionStatusStarted, StartTime: created, CreatedAt: created}
	if score != nil {
		end := created.Add(30 * time.Minute)
		s.Status = model.SessionStatusCompleted
		s.EndTime = &end
	}
	require.NoError(t, db.Create(&s).Error)
	if score != nil {
		require.NoError(t, db.Create(&model.ListeningAnalyse{
			SessionID: s.ID, UserID: userID, CorrectAnswers: 30, TotalQuestions: 40, OverallScore: *score,
			DurationSeconds: 1800, Status: model.AnalysisStatusCompleted, AnalysisVersion: 1,
		}).Error)
	}
	return &s
}

func reading(t *testing.T, db *gorm.DB, userID uint, created time.Time, score float64) *model.Reading {
	t.Helper()
	end := created.Add(time.Hour)
	r := model.Reading{UserID: userID, Status: model.SessionStatusCompleted, StartTime: created, EndTime: &end, CreatedAt: created}
	require.NoError(t, db.Create(&r).Error)
	require.NoError(t, db.Create(&model.ReadingAnalyse{
		ReadingID: r.ID, UserID: userID, OverallScore: score, DurationSeconds: 3600,
		Status: model.AnalysisStatusCompleted, AnalysisVersion: 1,
	}).Error)
	return &r
}

func band(v float64) *float64 { return &v }

func TestHistoryMergesKindsNewestFirst(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.NewUser(t, db, 0)
	other := testutil.NewUser(t, db, 0)
	exam := testutil.ListeningExam(t, db)

	w := writing(t, db, user.ID, at(0), band(6.5))
	l := listening(t, db, user.ID, exam.ID, at(10), nil)
	s := speaking(t, db, user.ID, at(20), band(7))
	writing(t, db, other.ID, at(30), band(9))

	svc := NewService(db)
	entries, err := svc.History(context.Background(), user.ID, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, model.TestKindSpeaking, entries[0].Kind)
	assert.Equal(t, s.ID, entries[0].SessionID)
	assert.Equal(t, 7.0, entries[0].Score)
	assert.Equal(t, 600, entries[0].DurationSeconds)

	assert.Equal(t, model.TestKindListening, entries[1].Kind)
	assert.Equal(t, l.ID, entries[1].SessionID)
	assert.Zero(t, entries[1].Score)
	assert.False(t, entries[1].Analysed)
	assert.Equal(t, model.SessionStatusStarted, entries[1].Status)

	assert.Equal(t, w.ID, entries[2].SessionID)
	assert.Equal(t, 6.5, entries[2].Score)
	assert.True(t, entries[2].Analysed)
}

func TestHistoryFilters(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.NewUser(t, db, 0)
	for i := 0; i < 4; i++ {
		writing(t, db, user.ID, at(i*10), band(5))
		speaking(t, db, user.ID, at(i*10+5), nil)
	}
	svc := NewService(db)

	entries, err := svc.History(context.Background(), user.ID, HistoryFilter{Kind: model.TestKindWriting})
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, model.TestKindWriting, e.Kind)
	}

	entries, err = svc.History(context.Background(), user.ID, HistoryFilter{Show: ShowLast})
	require.NoError(t, err)
	require.Len(t, entries, LastN)
	assert.Equal(t, at(35), entries[0].CreatedAt.UTC())
	assert.Equal(t, at(15), entries[4].CreatedAt.UTC())

	_, err = svc.History(context.Background(), user.ID, HistoryFilter{Kind: "maths"})
	assert.Error(t, err)
	_, err = svc.History(context.Background(), user.ID, HistoryFilter{Show: "first"})
	assert.Error(t, err)
}

func TestProgressLatestAndMax(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.NewUser(t, db, 0)
	writing(t, db, user.ID, at(0), band(7.5))
	writing(t, db, user.ID, at(10), band(6))
	reading(t, db, user.ID, at(20), 8.1)

	p, err := NewService(db).Progress(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.0, p.Latest.Writing)
	assert.Equal(t, 7.5, p.Max.Writing)
	assert.Equal(t, 8.1, p.Latest.Reading)
	assert.Zero(t, p.Max.Speaking)
}

func TestLeaderboard(t *testing.T) {
	db := testutil.NewDB(t)
	exam := testutil.ListeningExam(t, db)
	alice := testutil.NewUser(t, db, 0)
	bob := testutil.NewUser(t, db, 0)
	carol := testutil.NewUser(t, db, 0)

	// alice: max 7.5, 8.1, 6.5, 7 -> mean 7.275 -> 7.5
	listening(t, db, alice.ID, exam.ID, at(0), band(7.5))
	listening(t, db, alice.ID, exam.ID, at(1), band(5))
	reading(t, db, alice.ID, at(2), 8.1)
	writing(t, db, alice.ID, at(3), band(6.5))
	speaking(t, db, alice.ID, at(4), band(7))

	// bob: only writing 9 -> mean 2.25 -> 2.5
	writing(t, db, bob.ID, at(5), band(9))

	// carol: same mean as bob
	speaking(t, db, carol.ID, at(6), band(9))

	entries, err := NewService(db).Leaderboard(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, alice.ID, entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 7.5, entries[0].Score)
	assert.Equal(t, 7, entries[0].Listening)
	assert.Equal(t, 8, entries[0].Reading)
	assert.Equal(t, 6, entries[0].Writing)
	assert.Equal(t, alice.FirstName, entries[0].FirstName)

	assert.Equal(t, bob.ID, entries[1].UserID)
	assert.Equal(t, 2.5, entries[1].Score)
	assert.Equal(t, 9, entries[1].Writing)
}

func TestLeaderboardEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	entries, err := NewService(db).Leaderboard(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStats(t *testing.T) {
	db := testutil.NewDB(t)
	exam := testutil.ListeningExam(t, db)
	user := testutil.NewUser(t, db, 0)
	writing(t, db, user.ID, at(0), band(6))
	writing(t, db, user.ID, at(10), band(7))
	writing(t, db, user.ID, at(20), nil)
	listening(t, db, user.ID, exam.ID, at(30), nil)

	stats, err := NewService(db).Stats(context.Background(), user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.TotalSessions)
	assert.EqualValues(t, 4800, stats.TimeSpentSeconds)
	require.Len(t, stats.Kinds, 4)

	l := stats.Kinds[0]
	assert.Equal(t, model.TestKindListening, l.Kind)
	assert.EqualValues(t, 1, l.Sessions)
	assert.Zero(t, l.Completed)

	w := stats.Kinds[2]
	assert.Equal(t, model.TestKindWriting, w.Kind)
	assert.EqualValues(t, 3, w.Sessions)
	assert.EqualValues(t, 3, w.Completed)
	assert.EqualValues(t, 2, w.Analysed)
	assert.Equal(t, 6.5, w.AverageScore)
	assert.Equal(t, 7.0, w.BestScore)
}
