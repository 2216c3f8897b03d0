package session

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grading"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// ListeningService runs listening attempts
type ListeningService struct {
	*core
}

// ListeningSubmitResult is returned by Submit
type ListeningSubmitResult struct {
	SessionID      uint                      `json:"session_id"`
	Status         model.SessionStatus       `json:"status"`
	TotalCorrect   int                       `json:"total_correct"`
	TotalQuestions int                       `json:"total_questions"`
	Answers        []grading.ListeningResult `json:"answers"`
}

func preloadExam(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Exam.Parts", func(db *gorm.DB) *gorm.DB { return db.Order("part_number") }).
		Preload("Exam.Parts.Sections", func(db *gorm.DB) *gorm.DB { return db.Order("section_number") }).
		Preload("Exam.Parts.Sections.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("question_index") })
}

// Start debits the listening price and opens a session on a random exam
func (s *ListeningService) Start(ctx context.Context, userID uint, lang string) (*model.ListeningSession, error) {
	var session model.ListeningSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		examID, err := pickListeningExam(tx)
		if err != nil {
			return err
		}
		if _, err := s.charge(tx, userID, model.TestKindListening); err != nil {
			return err
		}

		session = model.ListeningSession{
			UserID:    userID,
			ExamID:    examID,
			Status:    model.SessionStatusStarted,
			StartTime: s.now(),
			Lang:      lang,
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create listening session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).Uint("session_id", session.ID).Uint("exam_id", session.ExamID).Msg("listening session started")
	return s.view(ctx, session.ID)
}

// pickListeningExam returns a random active exam that has at least one part
func pickListeningExam(tx *gorm.DB) (uint, error) {
	var ids []uint
	err := tx.Model(&model.ListeningExam{}).
		Where("is_active = ?", true).
		Where("EXISTS (SELECT 1 FROM listening_parts p WHERE p.exam_id = listening_exams.id)").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list listening exams: %w", err)
	}
	if len(ids) == 0 {
		return 0, apperr.NewCode(apperr.KindNotFound, apperr.CodeNoExamAvailable, "no listening exam is available")
	}
	return ids[rand.Intn(len(ids))], nil
}

// Get returns the caller's session with its exam and answers
func (s *ListeningService) Get(ctx context.Context, userID, id uint) (*model.ListeningSession, error) {
	if _, err := s.access(ctx, model.TestKindListening, userID, id); err != nil {
		return nil, err
	}
	return s.view(ctx, id)
}

func (s *ListeningService) view(ctx context.Context, id uint) (*model.ListeningSession, error) {
	var session model.ListeningSession
	err := preloadExam(s.db.WithContext(ctx)).
		Preload("Answers").
		Preload("Analysis").
		First(&session, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load listening session: %w", err)
	}
	return &session, nil
}

type listeningQuestionRow struct {
	ID            uint
	QuestionIndex int
	QuestionType  model.QuestionType
	CorrectAnswer model.CorrectAnswer
}

func examQuestions(db *gorm.DB, examID uint) ([]grading.ListeningQuestion, error) {
	var rows []listeningQuestionRow
	err := db.Table("listening_questions AS q").
		Select("q.id, q.question_index, q.correct_answer, s.question_type").
		Joins("JOIN listening_sections s ON s.id = q.section_id").
		Joins("JOIN listening_parts p ON p.id = s.part_id").
		Where("p.exam_id = ?", examID).
		Order("q.question_index").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load exam questions: %w", err)
	}

	questions := make([]grading.ListeningQuestion, len(rows))
	for i, r := range rows {
		questions[i] = grading.ListeningQuestion{ID: r.ID, Type: r.QuestionType, Correct: r.CorrectAnswer}
	}
	return questions, nil
}

// Submit grades and stores the answers, completes the session and queues
// the analysis. Submitting the same answers to a completed session again
// returns the same result; different answers fail with SESSION_TERMINAL.
func (s *ListeningService) Submit(ctx context.Context, userID, id uint, responses []grading.ListeningResponse) (*ListeningSubmitResult, error) {
	h, err := s.access(ctx, model.TestKindListening, userID, id)
	if err != nil {
		return nil, err
	}

	var session model.ListeningSession
	if err := s.db.WithContext(ctx).Select("id", "exam_id").First(&session, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load listening session: %w", err)
	}
	questions, err := examQuestions(s.db.WithContext(ctx), session.ExamID)
	if err != nil {
		return nil, err
	}
	results, correct, err := grading.GradeListening(questions, responses)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	result := &ListeningSubmitResult{
		SessionID:      id,
		Status:         model.SessionStatusCompleted,
		TotalCorrect:   correct,
		TotalQuestions: len(questions),
		Answers:        results,
	}

	if h.Status == model.SessionStatusCompleted {
		same, err := s.sameAnswers(ctx, id, results)
		if err != nil {
			return nil, err
		}
		if !same {
			return nil, apperr.SessionTerminal(string(h.Status))
		}
		s.enqueue(ctx, model.TestKindListening, id)
		return result, nil
	}
	if h.Status.IsTerminal() {
		return nil, apperr.SessionTerminal(string(h.Status))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND user_id = ?", id, userID).Delete(&model.ListeningAnswer{}).Error; err != nil {
			return fmt.Errorf("failed to clear answers: %w", err)
		}
		if len(results) > 0 {
			rows := make([]model.ListeningAnswer, len(results))
			for i, r := range results {
				rows[i] = model.ListeningAnswer{
					SessionID:  id,
					UserID:     userID,
					QuestionID: r.QuestionID,
					UserAnswer: model.StringList(r.Answer),
					IsCorrect:  r.IsCorrect,
					Score:      r.Score,
				}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to store answers: %w", err)
			}
		}
		return s.complete(tx, model.TestKindListening, id)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).Uint("session_id", id).Int("correct", correct).Int("total", len(questions)).Msg("listening session submitted")
	s.enqueue(ctx, model.TestKindListening, id)
	return result, nil
}

// sameAnswers compares graded results with the stored answers
func (s *ListeningService) sameAnswers(ctx context.Context, id uint, results []grading.ListeningResult) (bool, error) {
	var stored []model.ListeningAnswer
	if err := s.db.WithContext(ctx).Where("session_id = ?", id).Find(&stored).Error; err != nil {
		return false, fmt.Errorf("failed to load answers: %w", err)
	}
	if len(stored) != len(results) {
		return false, nil
	}
	byQuestion := make(map[uint][]string, len(stored))
	for _, a := range stored {
		byQuestion[a.QuestionID] = a.UserAnswer
	}
	for _, r := range results {
		prev, ok := byQuestion[r.QuestionID]
		if !ok || !sameStrings(prev, r.Answer) {
			return false, nil
		}
	}
	return true, nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Cancel cancels a STARTED session; cancelling twice succeeds
func (s *ListeningService) Cancel(ctx context.Context, userID, id uint) error {
	return s.cancel(ctx, model.TestKindListening, userID, id)
}

// GetAnalysis returns the analysis or a pending view
func (s *ListeningService) GetAnalysis(ctx context.Context, userID, id uint) (*AnalysisView, error) {
	return s.analysis(ctx, model.TestKindListening, userID, id, &model.ListeningAnalyse{})
}
