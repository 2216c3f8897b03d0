package session

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grading"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// PassagesPerSession is the number of passages drawn for one reading attempt
const PassagesPerSession = 3

// ReadingService runs reading attempts
type ReadingService struct {
	*core
}

// ReadingAnswerInput is one submitted reading answer
type ReadingAnswerInput struct {
	QuestionID uint
	VariantID  *uint
	Text       string
}

// ReadingResult summarizes a reading session
type ReadingResult struct {
	SessionID      uint                  `json:"session_id"`
	Status         model.SessionStatus   `json:"status"`
	TotalCorrect   int                   `json:"total_correct"`
	TotalQuestions int                   `json:"total_questions"`
	OverallScore   float64               `json:"overall_score"`
	Passages       []model.PassageResult `json:"passages"`
}

// Start debits the reading price and opens a session over random passages
func (s *ReadingService) Start(ctx context.Context, userID uint) (*model.Reading, error) {
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = s.startTx(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).Uint("session_id", id).Msg("reading session started")
	return s.view(ctx, id)
}

func (s *ReadingService) startTx(tx *gorm.DB, userID uint) (uint, error) {
	passages, err := pickPassages(tx, PassagesPerSession)
	if err != nil {
		return 0, err
	}
	if _, err := s.charge(tx, userID, model.TestKindReading); err != nil {
		return 0, err
	}

	session := model.Reading{
		UserID:    userID,
		Status:    model.SessionStatusStarted,
		StartTime: s.now(),
		Passages:  passages,
	}
	if err := tx.Omit("Passages.*").Create(&session).Error; err != nil {
		return 0, fmt.Errorf("failed to create reading session: %w", err)
	}
	return session.ID, nil
}

// pickPassages draws up to n random active passages that have questions
func pickPassages(tx *gorm.DB, n int) ([]model.ReadingPassage, error) {
	var ids []uint
	err := tx.Model(&model.ReadingPassage{}).
		Where("is_active = ?", true).
		Where("EXISTS (SELECT 1 FROM reading_questions q WHERE q.passage_id = reading_passages.id)").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reading passages: %w", err)
	}
	if len(ids) == 0 {
		return nil, apperr.NewCode(apperr.KindNotFound, apperr.CodeNoExamAvailable, "no reading passage is available")
	}

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > n {
		ids = ids[:n]
	}
	passages := make([]model.ReadingPassage, len(ids))
	for i, id := range ids {
		passages[i] = model.ReadingPassage{ID: id}
	}
	return passages, nil
}

// Get returns the caller's session with passages and answers
func (s *ReadingService) Get(ctx context.Context, userID, id uint) (*model.Reading, error) {
	if _, err := s.access(ctx, model.TestKindReading, userID, id); err != nil {
		return nil, err
	}
	return s.view(ctx, id)
}

func (s *ReadingService) view(ctx context.Context, id uint) (*model.Reading, error) {
	var session model.Reading
	err := s.db.WithContext(ctx).
		Preload("Passages", func(db *gorm.DB) *gorm.DB { return db.Order("reading_passages.id") }).
		Preload("Passages.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("question_index") }).
		Preload("Passages.Questions.Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Answers").
		Preload("Analysis").
		First(&session, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reading session: %w", err)
	}
	return &session, nil
}

// SubmitPassage grades the answers of one passage. Submitting the same
// passage again replaces its answers while the session is STARTED.
func (s *ReadingService) SubmitPassage(ctx context.Context, userID, id, passageID uint, answers []ReadingAnswerInput) (*model.PassageResult, error) {
	h, err := s.access(ctx, model.TestKindReading, userID, id)
	if err != nil {
		return nil, err
	}
	if h.Status.IsTerminal() {
		return nil, apperr.SessionTerminal(string(h.Status))
	}

	var result *model.PassageResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireStarted(tx, model.TestKindReading, id); err != nil {
			return err
		}

		var linked int64
		if err := tx.Table("reading_session_passages").
			Where("reading_id = ? AND reading_passage_id = ?", id, passageID).
			Count(&linked).Error; err != nil {
			return fmt.Errorf("failed to check passage: %w", err)
		}
		if linked == 0 {
			return apperr.NotFound("reading passage")
		}

		var passage model.ReadingPassage
		if err := tx.Preload("Questions.Variants").First(&passage, passageID).Error; err != nil {
			return fmt.Errorf("failed to load passage: %w", err)
		}

		rows, err := gradeReading(id, userID, &passage, answers)
		if err != nil {
			return err
		}

		if err := tx.Where("reading_id = ? AND passage_id = ?", id, passageID).Delete(&model.ReadingAnswer{}).Error; err != nil {
			return fmt.Errorf("failed to clear answers: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to store answers: %w", err)
			}
		}

		correct := 0
		for _, r := range rows {
			if r.IsCorrect {
				correct++
			}
		}
		result = &model.PassageResult{
			PassageID:      passage.ID,
			Title:          passage.Title,
			CorrectAnswers: correct,
			TotalQuestions: len(passage.Questions),
			OverallScore:   grading.Band(correct, len(passage.Questions)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).Uint("session_id", id).Uint("passage_id", passageID).Int("correct", result.CorrectAnswers).Msg("reading passage submitted")
	return result, nil
}

// gradeReading checks each answer against its question. Correctness is
// stored with the answer.
func gradeReading(readingID, userID uint, passage *model.ReadingPassage, answers []ReadingAnswerInput) ([]model.ReadingAnswer, error) {
	byID := make(map[uint]*model.ReadingQuestion, len(passage.Questions))
	for i := range passage.Questions {
		byID[passage.Questions[i].ID] = &passage.Questions[i]
	}

	seen := make(map[uint]bool, len(answers))
	rows := make([]model.ReadingAnswer, 0, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("question %d does not belong to this passage", a.QuestionID))
		}
		if seen[a.QuestionID] {
			return nil, apperr.Validation(fmt.Sprintf("question %d answered twice", a.QuestionID))
		}
		seen[a.QuestionID] = true

		row := model.ReadingAnswer{
			ReadingID:  readingID,
			UserID:     userID,
			PassageID:  passage.ID,
			QuestionID: q.ID,
		}
		if q.Type == model.ReadingQuestionChoice {
			if a.VariantID != nil && !hasVariant(q.Variants, *a.VariantID) {
				return nil, apperr.Validation(fmt.Sprintf("variant %d does not belong to question %d", *a.VariantID, q.ID))
			}
			row.VariantID = a.VariantID
			row.IsCorrect = grading.IsReadingChoiceCorrect(q.Variants, a.VariantID)
		} else {
			row.Text = a.Text
			row.IsCorrect = grading.IsReadingTextCorrect(q.CorrectAnswer, a.Text)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func hasVariant(variants []model.ReadingVariant, id uint) bool {
	for _, v := range variants {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Finish completes the session and queues its analysis. Finishing a
// completed session again returns its result.
func (s *ReadingService) Finish(ctx context.Context, userID, id uint) (*ReadingResult, error) {
	h, err := s.access(ctx, model.TestKindReading, userID, id)
	if err != nil {
		return nil, err
	}
	switch {
	case h.Status == model.SessionStatusCompleted:
	case h.Status.IsTerminal():
		return nil, apperr.SessionTerminal(string(h.Status))
	default:
		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.complete(tx, model.TestKindReading, id)
		}); err != nil {
			return nil, err
		}
		log.Info().Uint("user_id", userID).Uint("session_id", id).Msg("reading session finished")
	}

	s.enqueue(ctx, model.TestKindReading, id)

	passages, correct, total, err := SummarizeReading(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &ReadingResult{
		SessionID:      id,
		Status:         model.SessionStatusCompleted,
		TotalCorrect:   correct,
		TotalQuestions: total,
		OverallScore:   grading.Band(correct, total),
		Passages:       passages,
	}, nil
}

// Restart cancels a STARTED session and opens a new one, paying again.
// Both steps commit together.
func (s *ReadingService) Restart(ctx context.Context, userID, id uint) (*model.Reading, error) {
	h, err := s.access(ctx, model.TestKindReading, userID, id)
	if err != nil {
		return nil, err
	}
	if h.Status.IsTerminal() {
		return nil, apperr.SessionTerminal(string(h.Status))
	}

	var newID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.transition(tx, model.TestKindReading, id, model.SessionStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return s.terminal(tx, model.TestKindReading, id)
		}
		newID, err = s.startTx(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).Uint("session_id", id).Uint("new_session_id", newID).Msg("reading session restarted")
	return s.view(ctx, newID)
}

// Cancel cancels a STARTED session; cancelling twice succeeds
func (s *ReadingService) Cancel(ctx context.Context, userID, id uint) error {
	return s.cancel(ctx, model.TestKindReading, userID, id)
}

// GetAnalysis returns the analysis or a pending view
func (s *ReadingService) GetAnalysis(ctx context.Context, userID, id uint) (*AnalysisView, error) {
	return s.analysis(ctx, model.TestKindReading, userID, id, &model.ReadingAnalyse{})
}

// SummarizeReading computes per-passage results from the stored answers.
// Unanswered questions count as wrong.
func SummarizeReading(db *gorm.DB, readingID uint) ([]model.PassageResult, int, int, error) {
	var session model.Reading
	err := db.Preload("Passages", func(db *gorm.DB) *gorm.DB { return db.Order("reading_passages.id") }).
		Preload("Passages.Questions").
		Preload("Answers").
		First(&session, readingID).Error
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to load reading session: %w", err)
	}

	correctByPassage := make(map[uint]int, len(session.Passages))
	for _, a := range session.Answers {
		if a.IsCorrect {
			correctByPassage[a.PassageID]++
		}
	}

	results := make([]model.PassageResult, 0, len(session.Passages))
	totalCorrect, totalQuestions := 0, 0
	for _, p := range session.Passages {
		correct := correctByPassage[p.ID]
		results = append(results, model.PassageResult{
			PassageID:      p.ID,
			Title:          p.Title,
			CorrectAnswers: correct,
			TotalQuestions: len(p.Questions),
			OverallScore:   grading.Band(correct, len(p.Questions)),
		})
		totalCorrect += correct
		totalQuestions += len(p.Questions)
	}
	return results, totalCorrect, totalQuestions, nil
}
