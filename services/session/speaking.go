package session

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
)

// SpeakingService runs speaking attempts
type SpeakingService struct {
	*core
}

// SpeakingAnswerInput is the answer to one part: text, a recording, or both
type SpeakingAnswerInput struct {
	Part     int
	Text     string
	Audio    []byte
	AudioExt string
}

// Start debits the speaking price and generates the three parts
func (s *SpeakingService) Start(ctx context.Context, userID uint, lang string) (*model.Speaking, error) {
	if err := s.precheck(ctx, userID, model.TestKindSpeaking); err != nil {
		return nil, err
	}

	generated, err := s.generator.GenerateSpeakingQuestions(ctx, lang)
	if err != nil {
		return nil, upstream("speaking question generation", err)
	}

	var speaking model.Speaking
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.charge(tx, userID, model.TestKindSpeaking); err != nil {
			return err
		}

		speaking = model.Speaking{
			UserID:    userID,
			Status:    model.SessionStatusStarted,
			StartTime: s.now(),
			Lang:      lang,
		}
		for i, p := range generated.Parts() {
			speaking.Questions = append(speaking.Questions, model.SpeakingQuestion{
				Part:    i + 1,
				Title:   p.Title,
				Content: p.Content,
			})
		}
		if err := tx.Create(&speaking).Error; err != nil {
			return fmt.Errorf("failed to create speaking session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).Uint("session_id", speaking.ID).Msg("speaking session started")
	return s.view(ctx, speaking.ID)
}

// Get returns the caller's session with questions and answers
func (s *SpeakingService) Get(ctx context.Context, userID, id uint) (*model.Speaking, error) {
	if _, err := s.access(ctx, model.TestKindSpeaking, userID, id); err != nil {
		return nil, err
	}
	return s.view(ctx, id)
}

func (s *SpeakingService) view(ctx context.Context, id uint) (*model.Speaking, error) {
	var speaking model.Speaking
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("part") }).
		Preload("Questions.Answer").
		Preload("Analysis").
		First(&speaking, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load speaking session: %w", err)
	}
	return &speaking, nil
}

func validateSpeakingAnswers(inputs []SpeakingAnswerInput) error {
	if len(inputs) == 0 {
		return apperr.Validation("at least one answer is required")
	}
	seen := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		if in.Part < 1 || in.Part > 3 {
			return apperr.Validation(fmt.Sprintf("part %d does not exist", in.Part))
		}
		if seen[in.Part] {
			return apperr.Validation(fmt.Sprintf("part %d answered twice", in.Part))
		}
		seen[in.Part] = true
		if strings.TrimSpace(in.Text) == "" && len(in.Audio) == 0 {
			return apperr.Validation(fmt.Sprintf("part %d needs text or audio", in.Part))
		}
	}
	return nil
}

// SubmitAnswers stores the answers, saving recordings to the media store,
// and completes the session
func (s *SpeakingService) SubmitAnswers(ctx context.Context, userID, id uint, inputs []SpeakingAnswerInput) (*model.Speaking, error) {
	if err := validateSpeakingAnswers(inputs); err != nil {
		return nil, err
	}

	h, err := s.access(ctx, model.TestKindSpeaking, userID, id)
	if err != nil {
		return nil, err
	}
	if h.Status.IsTerminal() {
		return nil, apperr.SessionTerminal(string(h.Status))
	}

	var questions []model.SpeakingQuestion
	if err := s.db.WithContext(ctx).Where("speaking_id = ?", id).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to load speaking questions: %w", err)
	}
	questionByPart := make(map[int]uint, len(questions))
	for _, q := range questions {
		questionByPart[q.Part] = q.ID
	}

	var artifacts []*media.Artifact
	defer func() {
		for _, a := range artifacts {
			a.Release(ctx)
		}
	}()

	rows := make([]model.SpeakingAnswer, 0, len(inputs))
	for _, in := range inputs {
		questionID, ok := questionByPart[in.Part]
		if !ok {
			return nil, apperr.NotFound(fmt.Sprintf("speaking part %d", in.Part))
		}
		row := model.SpeakingAnswer{SpeakingID: id, QuestionID: questionID, TextAnswer: strings.TrimSpace(in.Text)}

		if len(in.Audio) > 0 {
			if s.media == nil {
				return nil, apperr.Internal("media store is not configured", nil)
			}
			key := media.AudioKey(in.Part, id, in.AudioExt)
			artifact, err := media.NewArtifact(ctx, s.media, key, in.Audio, AudioContentType(key))
			if err != nil {
				return nil, fmt.Errorf("failed to store recording: %w", err)
			}
			artifacts = append(artifacts, artifact)
			row.AudioURI = artifact.Key
		}
		rows = append(rows, row)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]uint, len(rows))
		for i, r := range rows {
			ids[i] = r.QuestionID
		}
		if err := tx.Where("speaking_id = ? AND question_id IN ?", id, ids).Delete(&model.SpeakingAnswer{}).Error; err != nil {
			return fmt.Errorf("failed to clear answers: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to store answers: %w", err)
		}
		return s.complete(tx, model.TestKindSpeaking, id)
	})
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		a.Keep()
	}

	log.Info().Uint("user_id", userID).Uint("session_id", id).Int("answers", len(rows)).Msg("speaking session submitted")
	s.enqueue(ctx, model.TestKindSpeaking, id)
	return s.view(ctx, id)
}

var audioTypes = map[string]string{
	".webm": "audio/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
}

// AudioContentType guesses the MIME type of a recording from its key
func AudioContentType(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		ext := strings.ToLower(key[i:])
		if ct, ok := audioTypes[ext]; ok {
			return ct
		}
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// Cancel cancels a STARTED session; cancelling twice succeeds
func (s *SpeakingService) Cancel(ctx context.Context, userID, id uint) error {
	return s.cancel(ctx, model.TestKindSpeaking, userID, id)
}

// GetAnalysis returns the analysis or a pending view
func (s *SpeakingService) GetAnalysis(ctx context.Context, userID, id uint) (*AnalysisView, error) {
	return s.analysis(ctx, model.TestKindSpeaking, userID, id, &model.SpeakingAnalyse{})
}
