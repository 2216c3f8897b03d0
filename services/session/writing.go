package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// WritingService runs writing attempts
type WritingService struct {
	*core
}

// upstream makes sure generator failures surface as UPSTREAM_UNAVAILABLE
func upstream(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Upstream(op+" failed", err)
}

// Start generates both tasks and renders the Task 1 chart, then debits the
// writing price and stores the session. Any failure leaves no debit, no
// session and no chart file.
func (s *WritingService) Start(ctx context.Context, userID uint, lang string) (*model.Writing, error) {
	if err := s.precheck(ctx, userID, model.TestKindWriting); err != nil {
		return nil, err
	}

	prompts, err := s.generator.GenerateWritingPrompts(ctx, lang)
	if err != nil {
		return nil, upstream("writing prompt generation", err)
	}
	chart := prompts.Chart()
	diagramData, err := json.Marshal(chart)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart data: %w", err)
	}

	artifact, err := s.generator.RenderChart(ctx, chart)
	if err != nil {
		return nil, upstream("chart rendering", err)
	}
	defer artifact.Release(ctx)

	var writing model.Writing
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.charge(tx, userID, model.TestKindWriting); err != nil {
			return err
		}

		writing = model.Writing{
			UserID:    userID,
			Status:    model.SessionStatusStarted,
			StartTime: s.now(),
			Lang:      lang,
		}
		if err := tx.Create(&writing).Error; err != nil {
			return fmt.Errorf("failed to create writing session: %w", err)
		}

		part1 := model.WritingPart1{
			WritingID:   writing.ID,
			Question:    prompts.Part1Question,
			DiagramPath: artifact.Key,
			DiagramURL:  artifact.URI,
			DiagramData: diagramData,
		}
		if err := tx.Create(&part1).Error; err != nil {
			return fmt.Errorf("failed to create writing task 1: %w", err)
		}
		part2 := model.WritingPart2{WritingID: writing.ID, Question: prompts.Part2Question}
		if err := tx.Create(&part2).Error; err != nil {
			return fmt.Errorf("failed to create writing task 2: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("writing start rolled back")
		return nil, err
	}
	artifact.Keep()

	log.Info().Uint("user_id", userID).Uint("session_id", writing.ID).Str("chart", string(chart.ChartType)).Msg("writing session started")
	return s.view(ctx, writing.ID)
}

// Get returns the caller's session with both tasks
func (s *WritingService) Get(ctx context.Context, userID, id uint) (*model.Writing, error) {
	if _, err := s.access(ctx, model.TestKindWriting, userID, id); err != nil {
		return nil, err
	}
	return s.view(ctx, id)
}

func (s *WritingService) view(ctx context.Context, id uint) (*model.Writing, error) {
	var writing model.Writing
	err := s.db.WithContext(ctx).
		Preload("Part1").
		Preload("Part2").
		Preload("Analysis").
		First(&writing, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load writing session: %w", err)
	}
	return &writing, nil
}

// Submit stores both answers and queues the analysis. An empty answer
// means the task was not attempted; at least one must be present.
// Submitting identical answers to a completed session returns it unchanged.
func (s *WritingService) Submit(ctx context.Context, userID, id uint, part1, part2 string) (*model.Writing, error) {
	if strings.TrimSpace(part1) == "" && strings.TrimSpace(part2) == "" {
		return nil, apperr.Validation("at least one task must be answered").
			WithFields(map[string]string{"part1": "required", "part2": "required"})
	}

	h, err := s.access(ctx, model.TestKindWriting, userID, id)
	if err != nil {
		return nil, err
	}
	if h.Status == model.SessionStatusCompleted {
		current, err := s.view(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Part1 == nil || current.Part2 == nil || current.Part1.Answer != part1 || current.Part2.Answer != part2 {
			return nil, apperr.SessionTerminal(string(h.Status))
		}
		s.enqueue(ctx, model.TestKindWriting, id)
		return current, nil
	}
	if h.Status.IsTerminal() {
		return nil, apperr.SessionTerminal(string(h.Status))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.WritingPart1{}).Where("writing_id = ?", id).Update("answer", part1).Error; err != nil {
			return fmt.Errorf("failed to store task 1 answer: %w", err)
		}
		if err := tx.Model(&model.WritingPart2{}).Where("writing_id = ?", id).Update("answer", part2).Error; err != nil {
			return fmt.Errorf("failed to store task 2 answer: %w", err)
		}
		return s.complete(tx, model.TestKindWriting, id)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).Uint("session_id", id).Msg("writing session submitted")
	s.enqueue(ctx, model.TestKindWriting, id)
	return s.view(ctx, id)
}

// Cancel cancels a STARTED session; cancelling twice succeeds
func (s *WritingService) Cancel(ctx context.Context, userID, id uint) error {
	return s.cancel(ctx, model.TestKindWriting, userID, id)
}

// GetAnalysis returns the analysis or a pending view
func (s *WritingService) GetAnalysis(ctx context.Context, userID, id uint) (*AnalysisView, error) {
	return s.analysis(ctx, model.TestKindWriting, userID, id, &model.WritingAnalyse{})
}
