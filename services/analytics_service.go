package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/progress"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// MaxSeriesDays bounds time series requests
const MaxSeriesDays = 365

// AnalyticsService handles analytics and reporting for staff
type AnalyticsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// KindCounts are session totals for one test kind
type KindCounts struct {
	Total           int64 `json:"total"`
	Completed       int64 `json:"completed"`
	PendingAnalysis int64 `json:"pending_analysis"`
}

// DashboardStats represents overall platform statistics
type DashboardStats struct {
	TotalUsers      int64                         `json:"total_users"`
	ActiveUsers     int64                         `json:"active_users_7d"`
	NewUsersToday   int64                         `json:"new_users_today"`
	VerifiedUsers   int64                         `json:"verified_users"`
	PremiumUsers    int64                         `json:"premium_users"`
	Sessions        map[model.TestKind]KindCounts `json:"sessions"`
	SessionsToday   int64                         `json:"sessions_today"`
	TokensSpent     int64                         `json:"tokens_spent"`
	TokensGranted   int64                         `json:"tokens_granted"`
	Revenue         float64                       `json:"revenue"`
	PendingPayments int64                         `json:"pending_payments"`
	PendingAnalyses int64                         `json:"pending_analyses"`
	DeadLetters     int64                         `json:"dead_letters"`
}

// GetDashboardStats retrieves overall platform statistics
func (s *AnalyticsService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	today := now.Truncate(24 * time.Hour)
	stats := &DashboardStats{Sessions: make(map[model.TestKind]KindCounts, len(model.AllTestKinds))}

	// Users
	if err := db.Model(&model.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := db.Model(&model.User{}).Where("last_login >= ?", now.AddDate(0, 0, -7)).
		Count(&stats.ActiveUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}
	if err := db.Model(&model.User{}).Where("created_at >= ?", today).
		Count(&stats.NewUsersToday).Error; err != nil {
		return nil, fmt.Errorf("failed to count new users: %w", err)
	}
	if err := db.Model(&model.User{}).Where("is_verified = ?", true).
		Count(&stats.VerifiedUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count verified users: %w", err)
	}
	if err := db.Model(&model.User{}).
		Joins("JOIN tariffs ON tariffs.id = users.tariff_id").
		Where("tariffs.is_default = ?", false).
		Count(&stats.PremiumUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count premium users: %w", err)
	}

	// Sessions per kind
	for _, kind := range model.AllTestKinds {
		counts, err := s.kindCounts(ctx, kind)
		if err != nil {
			return nil, err
		}
		stats.Sessions[kind] = counts
		stats.PendingAnalyses += counts.PendingAnalysis

		sessions, _, _ := progress.Tables(kind)
		var n int64
		if err := db.Table(sessions).Where("created_at >= ?", today).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s sessions today: %w", kind, err)
		}
		stats.SessionsToday += n
	}

	// Tokens
	if err := db.Model(&model.TokenTransaction{}).
		Select("COALESCE(SUM(-amount), 0)").
		Where("amount < 0").
		Scan(&stats.TokensSpent).Error; err != nil {
		return nil, fmt.Errorf("failed to sum spent tokens: %w", err)
	}
	if err := db.Model(&model.TokenTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("amount > 0").
		Scan(&stats.TokensGranted).Error; err != nil {
		return nil, fmt.Errorf("failed to sum granted tokens: %w", err)
	}

	// Payments
	if err := db.Model(&model.TariffPayment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ?", model.PaymentStatusSettled).
		Scan(&stats.Revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if err := db.Model(&model.TariffPayment{}).Where("status = ?", model.PaymentStatusPending).
		Count(&stats.PendingPayments).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending payments: %w", err)
	}

	// Worker health
	if err := db.Model(&model.AnalysisDeadLetter{}).Where("requeued_at IS NULL").
		Count(&stats.DeadLetters).Error; err != nil {
		return nil, fmt.Errorf("failed to count dead letters: %w", err)
	}

	return stats, nil
}

func (s *AnalyticsService) kindCounts(ctx context.Context, kind model.TestKind) (KindCounts, error) {
	sessions, analyses, fk := progress.Tables(kind)
	db := s.db.WithContext(ctx)

	var counts KindCounts
	if err := db.Table(sessions).Count(&counts.Total).Error; err != nil {
		return counts, fmt.Errorf("failed to count %s sessions: %w", kind, err)
	}
	if err := db.Table(sessions).Where("status = ?", model.SessionStatusCompleted).
		Count(&counts.Completed).Error; err != nil {
		return counts, fmt.Errorf("failed to count completed %s sessions: %w", kind, err)
	}
	if err := db.Table(sessions+" AS s").
		Joins("LEFT JOIN "+analyses+" a ON a."+fk+" = s.id").
		Where("s.status = ? AND a.id IS NULL", model.SessionStatusCompleted).
		Count(&counts.PendingAnalysis).Error; err != nil {
		return counts, fmt.Errorf("failed to count pending %s analyses: %w", kind, err)
	}
	return counts, nil
}

// TimeSeriesPoint represents a data point in time series
type TimeSeriesPoint struct {
	Date  string  `json:"date"`
	Count int64   `json:"count"`
	Value float64 `json:"value,omitempty"`
}

func (s *AnalyticsService) seriesStart(days int) (time.Time, error) {
	if days < 1 || days > MaxSeriesDays {
		return time.Time{}, apperr.Validation(fmt.Sprintf("days must be between 1 and %d", MaxSeriesDays))
	}
	return s.now().AddDate(0, 0, -days).Truncate(24 * time.Hour), nil
}

// GetSessionTimeSeries counts sessions started per day, for one kind or all
func (s *AnalyticsService) GetSessionTimeSeries(ctx context.Context, days int, kind model.TestKind) ([]TimeSeriesPoint, error) {
	startDate, err := s.seriesStart(days)
	if err != nil {
		return nil, err
	}
	kinds := model.AllTestKinds
	if kind != "" {
		if !kind.Valid() {
			return nil, apperr.Validation("unknown test kind")
		}
		kinds = []model.TestKind{kind}
	}

	merged := make(map[string]int64)
	for _, k := range kinds {
		sessions, _, _ := progress.Tables(k)
		var results []TimeSeriesPoint
		if err := s.db.WithContext(ctx).Table(sessions).
			Select("DATE(created_at) as date, COUNT(*) as count").
			Where("created_at >= ?", startDate).
			Group("DATE(created_at)").
			Scan(&results).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch %s time series: %w", k, err)
		}
		for _, p := range results {
			merged[dateKey(p.Date)] += p.Count
		}
	}

	points := make([]TimeSeriesPoint, 0, len(merged))
	for date, count := range merged {
		points = append(points, TimeSeriesPoint{Date: date, Count: count})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

// GetRevenueTimeSeries sums settled payments per day
func (s *AnalyticsService) GetRevenueTimeSeries(ctx context.Context, days int) ([]TimeSeriesPoint, error) {
	startDate, err := s.seriesStart(days)
	if err != nil {
		return nil, err
	}

	var results []TimeSeriesPoint
	if err := s.db.WithContext(ctx).Model(&model.TariffPayment{}).
		Select("DATE(paid_at) as date, COUNT(*) as count, COALESCE(SUM(amount), 0) as value").
		Where("status = ? AND paid_at >= ?", model.PaymentStatusSettled, startDate).
		Group("DATE(paid_at)").
		Order("date ASC").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch revenue: %w", err)
	}
	for i := range results {
		results[i].Date = dateKey(results[i].Date)
	}
	return results, nil
}

// GetSignupTimeSeries counts new users per day
func (s *AnalyticsService) GetSignupTimeSeries(ctx context.Context, days int) ([]TimeSeriesPoint, error) {
	startDate, err := s.seriesStart(days)
	if err != nil {
		return nil, err
	}

	var results []TimeSeriesPoint
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", startDate).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch signups: %w", err)
	}
	for i := range results {
		results[i].Date = dateKey(results[i].Date)
	}
	return results, nil
}

// dateKey trims a driver-formatted date or timestamp to YYYY-MM-DD
func dateKey(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
