package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grader"
	"github.com/speaknowly/speaknowly-api/services/grading"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result is the outcome of one stored analysis
type Result struct {
	UserID  uint
	Score   float64
	Version int
}

var sessionTables = map[model.TestKind]struct{ sessions, analyses, foreignKey string }{
	model.TestKindListening: {"listening_sessions", "listening_analyses", "session_id"},
	model.TestKindReading:   {"readings", "reading_analyses", "reading_id"},
	model.TestKindWriting:   {"writings", "writing_analyses", "writing_id"},
	model.TestKindSpeaking:  {"speakings", "speaking_analyses", "speaking_id"},
}

// Analyze grades one session and upserts its analyse row. It returns a nil
// Result when the session is not COMPLETED. With final set, optional grader
// output is skipped instead of failing the attempt.
func (w *Worker) Analyze(ctx context.Context, kind model.TestKind, id uint, final bool) (*Result, error) {
	switch kind {
	case model.TestKindListening:
		return w.analyzeListening(ctx, id, final)
	case model.TestKindReading:
		return w.analyzeReading(ctx, id)
	case model.TestKindWriting:
		return w.analyzeWriting(ctx, id)
	case model.TestKindSpeaking:
		return w.analyzeSpeaking(ctx, id)
	}
	return nil, apperr.Validation(fmt.Sprintf("unknown test kind %q", kind))
}

func (w *Worker) owner(ctx context.Context, kind model.TestKind, id uint) (uint, error) {
	var ids []uint
	err := w.db.WithContext(ctx).Table(sessionTables[kind].sessions).Where("id = ?", id).Pluck("user_id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, apperr.NotFound(string(kind) + " session")
	}
	return ids[0], nil
}

func loadSession(db *gorm.DB, kind model.TestKind, id uint, dest interface{}) error {
	err := db.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(string(kind) + " session")
	}
	if err != nil {
		return fmt.Errorf("failed to load %s session: %w", kind, err)
	}
	return nil
}

// upsert writes row keyed by its session reference and bumps analysis_version
// when a previous analysis is replaced
func (w *Worker) upsert(ctx context.Context, kind model.TestKind, id uint, row interface{}, columns []string) (int, error) {
	t := sessionTables[kind]
	set := clause.AssignmentColumns(append(columns, "status", "duration_seconds", "updated_at"))
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "analysis_version"},
		Value:  gorm.Expr(t.analyses + ".analysis_version + 1"),
	})

	db := w.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: t.foreignKey}},
		DoUpdates: set,
	}).Create(row).Error
	if err != nil {
		return 0, fmt.Errorf("failed to store %s analysis: %w", kind, err)
	}

	var versions []int
	if err := db.Table(t.analyses).Where(t.foreignKey+" = ?", id).Pluck("analysis_version", &versions).Error; err != nil {
		return 0, fmt.Errorf("failed to read %s analysis version: %w", kind, err)
	}
	if len(versions) == 0 {
		return 0, fmt.Errorf("%s analysis of session %d missing after upsert", kind, id)
	}
	return versions[0], nil
}

func encode(v interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}
	return datatypes.JSON(raw), nil
}

type listeningKey struct {
	ID            uint
	QuestionIndex int
	CorrectAnswer model.CorrectAnswer
}

// analyzeListening stores the locally graded score. The grader only adds
// qualitative feedback.
func (w *Worker) analyzeListening(ctx context.Context, id uint, final bool) (*Result, error) {
	db := w.db.WithContext(ctx)
	var s model.ListeningSession
	if err := loadSession(db.Preload("Answers"), model.TestKindListening, id, &s); err != nil {
		return nil, err
	}
	if s.Status != model.SessionStatusCompleted {
		return nil, nil
	}

	var keys []listeningKey
	err := db.Table("listening_questions AS q").
		Select("q.id, q.question_index, q.correct_answer").
		Joins("JOIN listening_sections s ON s.id = q.section_id").
		Joins("JOIN listening_parts p ON p.id = s.part_id").
		Where("p.exam_id = ?", s.ExamID).
		Order("q.question_index").
		Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load exam questions: %w", err)
	}

	indexByID := make(map[uint]int, len(keys))
	correct := make(map[int][]string, len(keys))
	for _, k := range keys {
		indexByID[k.ID] = k.QuestionIndex
		if k.CorrectAnswer.IsMapping() {
			correct[k.QuestionIndex] = grading.FormatPairs(k.CorrectAnswer.Pairs)
		} else {
			correct[k.QuestionIndex] = k.CorrectAnswer.Values
		}
	}

	answers := make(map[int][]string, len(s.Answers))
	correctCount := 0
	for _, a := range s.Answers {
		idx, ok := indexByID[a.QuestionID]
		if !ok {
			continue
		}
		answers[idx] = a.UserAnswer
		if a.IsCorrect {
			correctCount++
		}
	}

	var feedback model.ListeningFeedback
	review, err := w.grader.GradeListening(ctx, answers, correct, w.lang(s.Lang))
	switch {
	case err == nil:
		feedback = review.Feedback
		if review.CorrectAnswers != correctCount {
			log.Debug().Uint("session_id", id).Int("grader", review.CorrectAnswers).Int("local", correctCount).Msg("grader count differs from local grading")
		}
	case apperr.Is(err, apperr.KindUpstreamUnavailable) && !final:
		return nil, err
	default:
		log.Warn().Err(err).Uint("session_id", id).Msg("listening feedback unavailable, storing score only")
	}

	encoded, err := encode(feedback)
	if err != nil {
		return nil, err
	}
	row := model.ListeningAnalyse{
		SessionID:       id,
		UserID:          s.UserID,
		CorrectAnswers:  correctCount,
		TotalQuestions:  len(keys),
		OverallScore:    grading.Band(correctCount, len(keys)),
		DurationSeconds: session.DurationSeconds(s.StartTime, s.EndTime),
		Feedback:        encoded,
		Status:          model.AnalysisStatusCompleted,
	}
	version, err := w.upsert(ctx, model.TestKindListening, id, &row,
		[]string{"correct_answers", "total_questions", "overall_score", "feedback"})
	if err != nil {
		return nil, err
	}
	return &Result{UserID: s.UserID, Score: row.OverallScore, Version: version}, nil
}

func (w *Worker) analyzeReading(ctx context.Context, id uint) (*Result, error) {
	db := w.db.WithContext(ctx)
	var r model.Reading
	if err := loadSession(db, model.TestKindReading, id, &r); err != nil {
		return nil, err
	}
	if r.Status != model.SessionStatusCompleted {
		return nil, nil
	}

	passages, correct, total, err := session.SummarizeReading(db, id)
	if err != nil {
		return nil, err
	}
	for i := range passages {
		passages[i].Feedback = passageFeedback(passages[i].CorrectAnswers, passages[i].TotalQuestions)
	}
	encoded, err := encode(passages)
	if err != nil {
		return nil, err
	}

	row := model.ReadingAnalyse{
		ReadingID:       id,
		UserID:          r.UserID,
		CorrectAnswers:  correct,
		TotalQuestions:  total,
		OverallScore:    grading.Band(correct, total),
		DurationSeconds: session.DurationSeconds(r.StartTime, r.EndTime),
		Passages:        encoded,
		Status:          model.AnalysisStatusCompleted,
	}
	version, err := w.upsert(ctx, model.TestKindReading, id, &row,
		[]string{"correct_answers", "total_questions", "overall_score", "passages"})
	if err != nil {
		return nil, err
	}
	return &Result{UserID: r.UserID, Score: row.OverallScore, Version: version}, nil
}

// passageFeedback describes a passage score without calling the grader
func passageFeedback(correct, total int) string {
	if total == 0 {
		return "This passage had no questions."
	}
	ratio := float64(correct) / float64(total)
	switch {
	case ratio == 1:
		return "Every answer is correct. Keep practising at this level."
	case ratio >= 0.75:
		return "Strong result. Review the questions you missed for paraphrased keywords."
	case ratio >= 0.5:
		return "Fair result. Skim the passage first, then scan for the exact detail each question needs."
	case correct > 0:
		return "Several answers were wrong. Underline keywords in each question and locate them in the text before answering."
	}
	return "No correct answers. Start with shorter passages and check answers against the text word by word."
}

func (w *Worker) analyzeWriting(ctx context.Context, id uint) (*Result, error) {
	db := w.db.WithContext(ctx)
	var wr model.Writing
	if err := loadSession(db.Preload("Part1").Preload("Part2"), model.TestKindWriting, id, &wr); err != nil {
		return nil, err
	}
	if wr.Status != model.SessionStatusCompleted {
		return nil, nil
	}
	if wr.Part1 == nil || wr.Part2 == nil {
		return nil, apperr.Validation(fmt.Sprintf("writing session %d has no tasks", id))
	}

	var chart grader.ChartData
	if len(wr.Part1.DiagramData) > 0 {
		if err := json.Unmarshal(wr.Part1.DiagramData, &chart); err != nil {
			log.Warn().Err(err).Uint("session_id", id).Msg("unreadable chart data")
		}
	}

	grade, err := w.grader.GradeWriting(ctx, grader.WritingInput{
		Part1Question: wr.Part1.Question,
		Chart:         chart,
		Part1Answer:   wr.Part1.Answer,
		Part2Question: wr.Part2.Question,
		Part2Answer:   wr.Part2.Answer,
	}, w.lang(wr.Lang))
	if err != nil {
		return nil, err
	}

	criteria, err := encode(grade.Criteria())
	if err != nil {
		return nil, err
	}
	row := model.WritingAnalyse{
		WritingID:        id,
		UserID:           wr.UserID,
		Criteria:         criteria,
		OverallBandScore: grade.OverallBandScore,
		DurationSeconds:  session.DurationSeconds(wr.StartTime, wr.EndTime),
		Status:           model.AnalysisStatusCompleted,
	}
	version, err := w.upsert(ctx, model.TestKindWriting, id, &row, []string{"criteria", "overall_band_score"})
	if err != nil {
		return nil, err
	}
	return &Result{UserID: wr.UserID, Score: row.OverallBandScore, Version: version}, nil
}

// analyzeSpeaking grades the three answers, transcribing recordings that
// came without text
func (w *Worker) analyzeSpeaking(ctx context.Context, id uint) (*Result, error) {
	db := w.db.WithContext(ctx)
	var sp model.Speaking
	err := loadSession(db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("part") }).
		Preload("Questions.Answer"),
		model.TestKindSpeaking, id, &sp)
	if err != nil {
		return nil, err
	}
	if sp.Status != model.SessionStatusCompleted {
		return nil, nil
	}

	var in grader.SpeakingInput
	transcripts := make(map[string]string, len(sp.Questions))
	for _, q := range sp.Questions {
		if q.Part < 1 || q.Part > len(in.Questions) {
			continue
		}
		in.Questions[q.Part-1] = grader.QuestionPrompt{Title: q.Title, Content: q.Content}
		if q.Answer == nil {
			continue
		}

		text, err := w.answerText(ctx, q.Answer, w.lang(sp.Lang))
		if err != nil {
			return nil, err
		}
		in.Answers[q.Part-1] = text
		transcripts[strconv.Itoa(q.Part)] = text
	}

	grade, err := w.grader.GradeSpeaking(ctx, in, w.lang(sp.Lang))
	if err != nil {
		return nil, err
	}

	criteria, err := encode(grade.Criteria())
	if err != nil {
		return nil, err
	}
	encodedTranscripts, err := encode(transcripts)
	if err != nil {
		return nil, err
	}
	row := model.SpeakingAnalyse{
		SpeakingID:       id,
		UserID:           sp.UserID,
		Criteria:         criteria,
		Transcripts:      encodedTranscripts,
		OverallBandScore: grade.OverallBandScore,
		DurationSeconds:  session.DurationSeconds(sp.StartTime, sp.EndTime),
		Status:           model.AnalysisStatusCompleted,
	}
	version, err := w.upsert(ctx, model.TestKindSpeaking, id, &row, []string{"criteria", "transcripts", "overall_band_score"})
	if err != nil {
		return nil, err
	}
	return &Result{UserID: sp.UserID, Score: row.OverallBandScore, Version: version}, nil
}

func (w *Worker) answerText(ctx context.Context, answer *model.SpeakingAnswer, lang string) (string, error) {
	if answer.TextAnswer != "" || answer.AudioURI == "" {
		return answer.TextAnswer, nil
	}
	if w.media == nil {
		return "", apperr.Internal("media store is not configured", nil)
	}

	audio, err := w.media.Get(ctx, answer.AudioURI)
	if errors.Is(err, media.ErrNotFound) {
		log.Warn().Str("key", answer.AudioURI).Uint("answer_id", answer.ID).Msg("recording missing, grading without it")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read recording: %w", err)
	}
	return w.grader.TranscribeAudio(ctx, audio, session.AudioContentType(answer.AudioURI), lang)
}

// lang returns the session's content language, or the configured default
// for sessions stored without one
func (w *Worker) lang(sessionLang string) string {
	if sessionLang == "" {
		return w.config.Language
	}
	return sessionLang
}
