// Package progress builds the read-only history, progress and leaderboard
// views over sessions and their analyses.
package progress

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grading"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// LastN is the number of entries returned for show=last
const LastN = 5

// ShowLast truncates a history to the LastN newest entries
const ShowLast = "last"

type source struct {
	sessions, analyses, foreignKey, score string
}

var sources = map[model.TestKind]source{
	model.TestKindListening: {"listening_sessions", "listening_analyses", "session_id", "overall_score"},
	model.TestKindReading:   {"readings", "reading_analyses", "reading_id", "overall_score"},
	model.TestKindWriting:   {"writings", "writing_analyses", "writing_id", "overall_band_score"},
	model.TestKindSpeaking:  {"speakings", "speaking_analyses", "speaking_id", "overall_band_score"},
}

// Tables returns the session table, analysis table and the analysis foreign key for kind
func Tables(kind model.TestKind) (sessions, analyses, foreignKey string) {
	src := sources[kind]
	return src.sessions, src.analyses, src.foreignKey
}

// HistoryFilter narrows History. An empty Kind means every kind.
type HistoryFilter struct {
	Kind model.TestKind
	Show string
}

// HistoryEntry is one session projected for the history list
type HistoryEntry struct {
	Kind            model.TestKind      `json:"kind"`
	SessionID       uint                `json:"session_id"`
	Status          model.SessionStatus `json:"status"`
	Score           float64             `json:"score"`
	Analysed        bool                `json:"analysed"`
	DurationSeconds int                 `json:"duration_seconds"`
	CreatedAt       time.Time           `json:"created_at"`
}

// KindScores holds one score per test kind
type KindScores struct {
	Listening float64 `json:"listening"`
	Reading   float64 `json:"reading"`
	Writing   float64 `json:"writing"`
	Speaking  float64 `json:"speaking"`
}

func (k *KindScores) set(kind model.TestKind, v float64) {
	switch kind {
	case model.TestKindListening:
		k.Listening = v
	case model.TestKindReading:
		k.Reading = v
	case model.TestKindWriting:
		k.Writing = v
	case model.TestKindSpeaking:
		k.Speaking = v
	}
}

// Mean averages the four scores, missing kinds counting as zero
func (k KindScores) Mean() float64 {
	return (k.Listening + k.Reading + k.Writing + k.Speaking) / 4
}

// Progress is the latest and best score per kind
type Progress struct {
	Latest KindScores `json:"latest"`
	Max    KindScores `json:"max"`
}

// LeaderboardEntry is one ranked user. Per-kind maxima are floored for display.
type LeaderboardEntry struct {
	Rank      int     `json:"rank"`
	UserID    uint    `json:"user_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	PhotoURL  string  `json:"photo_url,omitempty"`
	Listening int     `json:"listening"`
	Reading   int     `json:"reading"`
	Writing   int     `json:"writing"`
	Speaking  int     `json:"speaking"`
	Score     float64 `json:"score"`
}

// KindStats summarises one kind for a user
type KindStats struct {
	Kind             model.TestKind `json:"kind"`
	Sessions         int64          `json:"sessions"`
	Completed        int64          `json:"completed"`
	Analysed         int64          `json:"analysed"`
	AverageScore     float64        `json:"average_score"`
	BestScore        float64        `json:"best_score"`
	TimeSpentSeconds int64          `json:"time_spent_seconds"`
}

// Stats summarises every kind for a user
type Stats struct {
	UserID           uint        `json:"user_id"`
	TotalSessions    int64       `json:"total_sessions"`
	TimeSpentSeconds int64       `json:"time_spent_seconds"`
	Kinds            []KindStats `json:"kinds"`
}

// Service is the progress aggregator
type Service struct {
	db *gorm.DB
}

// NewService creates an aggregator over db
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type historyRow struct {
	SessionID uint
	Status    model.SessionStatus
	CreatedAt time.Time
	StartTime time.Time
	EndTime   *time.Time
	Score     *float64
	Duration  *int
}

// History lists the user's sessions of every kind, newest first
func (s *Service) History(ctx context.Context, userID uint, filter HistoryFilter) ([]HistoryEntry, error) {
	kinds := model.AllTestKinds
	if filter.Kind != "" {
		if !filter.Kind.Valid() {
			return nil, apperr.Validation(fmt.Sprintf("unknown test kind %q", filter.Kind))
		}
		kinds = []model.TestKind{filter.Kind}
	}
	if filter.Show != "" && filter.Show != ShowLast {
		return nil, apperr.Validation(fmt.Sprintf("unknown show value %q", filter.Show))
	}

	entries := make([]HistoryEntry, 0)
	for _, kind := range kinds {
		src := sources[kind]
		query := s.db.WithContext(ctx).
			Table(src.sessions+" AS s").
			Select("s.id AS session_id, s.status, s.created_at, s.start_time, s.end_time, a."+src.score+" AS score, a.duration_seconds AS duration").
			Joins("LEFT JOIN "+src.analyses+" a ON a."+src.foreignKey+" = s.id").
			Where("s.user_id = ?", userID).
			Order("s.created_at DESC, s.id DESC")
		if filter.Show == ShowLast {
			query = query.Limit(LastN)
		}

		var rows []historyRow
		if err := query.Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to load %s history: %w", kind, err)
		}
		for _, r := range rows {
			e := HistoryEntry{
				Kind:      kind,
				SessionID: r.SessionID,
				Status:    r.Status,
				CreatedAt: r.CreatedAt,
			}
			if r.Score != nil {
				e.Score = *r.Score
				e.Analysed = true
			}
			if r.Duration != nil {
				e.DurationSeconds = *r.Duration
			} else if r.EndTime != nil {
				e.DurationSeconds = int(math.Max(0, r.EndTime.Sub(r.StartTime).Seconds()))
			}
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].SessionID > entries[j].SessionID
	})
	if filter.Show == ShowLast && len(entries) > LastN {
		entries = entries[:LastN]
	}
	return entries, nil
}

// Latest returns the score of the most recent analysis of each kind
func (s *Service) Latest(ctx context.Context, userID uint) (KindScores, error) {
	var out KindScores
	for _, kind := range model.AllTestKinds {
		src := sources[kind]
		var scores []float64
		err := s.db.WithContext(ctx).Table(src.analyses).
			Where("user_id = ?", userID).
			Order("updated_at DESC, id DESC").
			Limit(1).
			Pluck(src.score, &scores).Error
		if err != nil {
			return out, fmt.Errorf("failed to load latest %s score: %w", kind, err)
		}
		if len(scores) > 0 {
			out.set(kind, scores[0])
		}
	}
	return out, nil
}

// Max returns the best analysed score of each kind
func (s *Service) Max(ctx context.Context, userID uint) (KindScores, error) {
	var out KindScores
	for _, kind := range model.AllTestKinds {
		src := sources[kind]
		var best struct{ Best float64 }
		err := s.db.WithContext(ctx).Table(src.analyses).
			Select("COALESCE(MAX("+src.score+"), 0) AS best").
			Where("user_id = ?", userID).
			Scan(&best).Error
		if err != nil {
			return out, fmt.Errorf("failed to load best %s score: %w", kind, err)
		}
		out.set(kind, best.Best)
	}
	return out, nil
}

// Progress returns Latest and Max together
func (s *Service) Progress(ctx context.Context, userID uint) (*Progress, error) {
	latest, err := s.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	best, err := s.Max(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Progress{Latest: latest, Max: best}, nil
}

// Leaderboard ranks users by the mean of their four best scores, rounded to
// the nearest half band. Ties keep the lower user id first.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}

	best := make(map[uint]*KindScores)
	for _, kind := range model.AllTestKinds {
		src := sources[kind]
		var rows []struct {
			UserID uint
			Best   float64
		}
		err := s.db.WithContext(ctx).Table(src.analyses).
			Select("user_id, MAX(" + src.score + ") AS best").
			Group("user_id").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate %s scores: %w", kind, err)
		}
		for _, r := range rows {
			k, ok := best[r.UserID]
			if !ok {
				k = &KindScores{}
				best[r.UserID] = k
			}
			k.set(kind, r.Best)
		}
	}

	entries := make([]LeaderboardEntry, 0, len(best))
	for userID, k := range best {
		entries = append(entries, LeaderboardEntry{
			UserID:    userID,
			Listening: int(math.Floor(k.Listening)),
			Reading:   int(math.Floor(k.Reading)),
			Writing:   int(math.Floor(k.Writing)),
			Speaking:  int(math.Floor(k.Speaking)),
			Score:     grading.RoundHalf(k.Mean()),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return entries, nil
	}

	ids := make([]uint, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Select("id", "first_name", "last_name", "photo_url").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard users: %w", err)
	}
	byID := make(map[uint]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for i := range entries {
		entries[i].Rank = i + 1
		u := byID[entries[i].UserID]
		entries[i].FirstName = u.FirstName
		entries[i].LastName = u.LastName
		entries[i].PhotoURL = u.PhotoURL
	}
	return entries, nil
}

// Stats counts sessions and averages analysed scores per kind
func (s *Service) Stats(ctx context.Context, userID uint) (*Stats, error) {
	out := &Stats{UserID: userID, Kinds: make([]KindStats, 0, len(model.AllTestKinds))}
	db := s.db.WithContext(ctx)

	for _, kind := range model.AllTestKinds {
		src := sources[kind]
		ks := KindStats{Kind: kind}

		if err := db.Table(src.sessions).Where("user_id = ?", userID).Count(&ks.Sessions).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s sessions: %w", kind, err)
		}
		if err := db.Table(src.sessions).
			Where("user_id = ? AND status = ?", userID, model.SessionStatusCompleted).
			Count(&ks.Completed).Error; err != nil {
			return nil, fmt.Errorf("failed to count completed %s sessions: %w", kind, err)
		}

		var agg struct {
			Analysed int64
			Average  float64
			Best     float64
			Spent    int64
		}
		err := db.Table(src.analyses).
			Select("COUNT(*) AS analysed, COALESCE(AVG("+src.score+"), 0) AS average, COALESCE(MAX("+src.score+"), 0) AS best, COALESCE(SUM(duration_seconds), 0) AS spent").
			Where("user_id = ?", userID).
			Scan(&agg).Error
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate %s analyses: %w", kind, err)
		}
		ks.Analysed = agg.Analysed
		ks.AverageScore = grading.RoundBand(agg.Average)
		ks.BestScore = agg.Best
		ks.TimeSpentSeconds = agg.Spent

		out.TotalSessions += ks.Sessions
		out.TimeSpentSeconds += ks.TimeSpentSeconds
		out.Kinds = append(out.Kinds, ks)
	}
	return out, nil
}
