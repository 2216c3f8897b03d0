// Package grader adapts large language models to the IELTS grading
// operations: prompt generation, chart rendering, transcription and
// band scoring of writing, speaking and listening attempts.
package grader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Config tunes timeouts and retries of the grader service
type Config struct {
	Timeout        time.Duration // per upstream call (default: 60s)
	Retry          RetryConfig   // transient failures
	OutputAttempts int           // schema violations (default: 3)
}

// Service implements the AI grading capabilities over a Backend
type Service struct {
	backend        Backend
	charts         ChartRenderer
	store          media.Store
	timeout        time.Duration
	retry          *backoff
	outputAttempts int
}

// NewService creates a grader service
func NewService(backend Backend, charts ChartRenderer, store media.Store, config Config) *Service {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryConfig()
	}
	if config.OutputAttempts == 0 {
		config.OutputAttempts = 3
	}
	if charts == nil {
		charts = NewChartRenderer()
	}

	return &Service{
		backend:        backend,
		charts:         charts,
		store:          store,
		timeout:        config.Timeout,
		retry:          newBackoff(config.Retry, time.Now().UnixNano()),
		outputAttempts: config.OutputAttempts,
	}
}

// Backend returns the name of the configured provider
func (s *Service) Backend() string {
	return s.backend.Name()
}

// WritingInput is everything the writing grader needs
type WritingInput struct {
	Part1Question string
	Chart         ChartData
	Part1Answer   string
	Part2Question string
	Part2Answer   string
}

// SpeakingInput holds the three questions and transcribed answers in part order
type SpeakingInput struct {
	Questions [3]QuestionPrompt
	Answers   [3]string
}

// GenerateWritingPrompts asks for a Task 1 chart description and a Task 2 essay question
func (s *Service) GenerateWritingPrompts(ctx context.Context, lang string) (*WritingPrompts, error) {
	prompt := Prompt{
		System: systemPrompt(lang,
			"You are an IELTS examiner who writes Academic Writing tasks.",
			"Task 1 describes a chart comparing two years across 3 to 6 categories. "+
				"Choose chart_type from bar, line or pie and supply one non-negative value per category for each year. "+
				"Task 2 is an argumentative essay question."),
		User:        "Create a new IELTS Academic Writing test.",
		SchemaName:  "writing_prompts",
		Schema:      writingPromptsSchema,
		Temperature: 0.9,
	}
	return complete(ctx, s, "generate_writing_prompts", prompt, (*WritingPrompts).Validate)
}

// RenderChart draws the Task 1 diagram and stores it as an artifact owned by
// the caller, who must Keep or Release it.
func (s *Service) RenderChart(ctx context.Context, data ChartData) (*media.Artifact, error) {
	png, err := s.charts.Render(data)
	if err != nil {
		return nil, apperr.Upstream("chart rendering failed", err)
	}
	artifact, err := media.NewArtifact(ctx, s.store, media.ChartKey(), png, "image/png")
	if err != nil {
		return nil, apperr.Upstream("chart storage failed", err)
	}
	return artifact, nil
}

// GenerateSpeakingQuestions asks for the three speaking parts
func (s *Service) GenerateSpeakingQuestions(ctx context.Context, lang string) (*SpeakingQuestions, error) {
	prompt := Prompt{
		System: systemPrompt(lang,
			"You are an IELTS examiner who writes Speaking tests.",
			"Part 1 is a short interview on familiar topics, part 2 is a cue card with bullet points, "+
				"part 3 is a discussion that extends the part 2 topic."),
		User:        "Create a new IELTS Speaking test.",
		SchemaName:  "speaking_questions",
		Schema:      speakingQuestionsSchema,
		Temperature: 0.9,
	}
	return complete(ctx, s, "generate_speaking_questions", prompt, (*SpeakingQuestions).Validate)
}

// TranscribeAudio converts a recorded answer to text
func (s *Service) TranscribeAudio(ctx context.Context, audio []byte, mimeType, lang string) (string, error) {
	if len(audio) == 0 {
		return "", apperr.Validation("audio is empty")
	}

	var text string
	err := s.retry.do(ctx, "transcribe_audio", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var err error
		text, err = s.backend.Transcribe(callCtx, audio, mimeType, lang)
		return err
	})
	if err != nil {
		return "", apperr.Upstream("transcription failed", err)
	}
	return text, nil
}

// GradeWriting scores both writing tasks
func (s *Service) GradeWriting(ctx context.Context, in WritingInput, lang string) (*WritingGrade, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "TASK 1 QUESTION:\n%s\n\n", in.Part1Question)
	fmt.Fprintf(&user, "TASK 1 CHART (%s): categories %s; %d: %s; %d: %s\n\n",
		in.Chart.ChartType, strings.Join(in.Chart.Categories, ", "),
		in.Chart.Year1, formatSeries(in.Chart.DataYear1),
		in.Chart.Year2, formatSeries(in.Chart.DataYear2))
	fmt.Fprintf(&user, "TASK 1 ANSWER (%d words):\n%s\n\n", wordCount(in.Part1Answer), orMissing(in.Part1Answer))
	fmt.Fprintf(&user, "TASK 2 QUESTION:\n%s\n\n", in.Part2Question)
	fmt.Fprintf(&user, "TASK 2 ANSWER (%d words):\n%s\n", wordCount(in.Part2Answer), orMissing(in.Part2Answer))

	prompt := Prompt{
		System: systemPrompt(lang,
			"You are a certified IELTS Writing examiner.",
			"Score each criterion from 0 to 9 in steps of 0.5 using the public band descriptors "+
				"and give concrete feedback. Task 1 needs at least 150 words and Task 2 at least 250; "+
				"reflect shortfalls in word_count. A missing answer scores 0 for its task."),
		User:       user.String(),
		SchemaName: "writing_grade",
		Schema:     writingGradeSchema,
	}
	return complete(ctx, s, "grade_writing", prompt, (*WritingGrade).Validate)
}

// GradeSpeaking scores the three transcribed speaking answers
func (s *Service) GradeSpeaking(ctx context.Context, in SpeakingInput, lang string) (*SpeakingGrade, error) {
	var user strings.Builder
	for i := range in.Questions {
		fmt.Fprintf(&user, "PART %d: %s\n%s\nANSWER:\n%s\n\n",
			i+1, in.Questions[i].Title, in.Questions[i].Content, orMissing(in.Answers[i]))
	}

	prompt := Prompt{
		System: systemPrompt(lang,
			"You are a certified IELTS Speaking examiner grading transcripts.",
			"Score each criterion from 0 to 9 in steps of 0.5. Judge pronunciation from "+
				"transcription artefacts only and say so in its feedback."),
		User:       user.String(),
		SchemaName: "speaking_grade",
		Schema:     speakingGradeSchema,
	}
	return complete(ctx, s, "grade_speaking", prompt, (*SpeakingGrade).Validate)
}

// GradeListening asks for qualitative feedback on a listening attempt.
// Both maps are keyed by question index.
func (s *Service) GradeListening(ctx context.Context, answers, correct map[int][]string, lang string) (*ListeningReview, error) {
	indexes := make([]int, 0, len(correct))
	for idx := range correct {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var user strings.Builder
	for _, idx := range indexes {
		fmt.Fprintf(&user, "Q%d: expected [%s], answered [%s]\n",
			idx, strings.Join(correct[idx], " | "), strings.Join(answers[idx], " | "))
	}

	prompt := Prompt{
		System: systemPrompt(lang,
			"You are an IELTS Listening tutor.",
			"Count the correct answers, estimate the band from 0 to 9 and give feedback on "+
				"listening skills, concentration and strategy."),
		User:       user.String(),
		SchemaName: "listening_review",
		Schema:     listeningReviewSchema,
	}
	total := len(indexes)
	return complete(ctx, s, "grade_listening", prompt, func(r *ListeningReview) error {
		return r.Validate(total)
	})
}

// complete runs one structured call. Transient failures are retried inside
// the backoff loop; schema violations are retried up to OutputAttempts times.
func complete[T any](ctx context.Context, s *Service, op string, prompt Prompt, validate func(*T) error) (*T, error) {
	var lastErr error
	for attempt := 1; attempt <= s.outputAttempts; attempt++ {
		var raw string
		err := s.retry.do(ctx, op, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			var err error
			raw, err = s.backend.Complete(callCtx, prompt)
			return err
		})
		if err != nil {
			return nil, apperr.Upstream(op+" failed", err)
		}

		out := new(T)
		if err := DecodeJSON(op, raw, out); err != nil {
			lastErr = err
		} else if err := validate(out); err != nil {
			lastErr = err
		} else {
			return out, nil
		}

		if attempt == s.outputAttempts {
			break
		}
		wait := s.retry.CalculateBackoff(attempt)
		log.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Dur("backoff", wait).Msg("grader output rejected, retrying")
		select {
		case <-ctx.Done():
			return nil, apperr.Upstream(op+" cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}

	return nil, apperr.Wrap(apperr.KindGraderOutputInvalid, op+" returned invalid output", lastErr)
}

// IsSchemaError reports whether err came from output validation
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

func systemPrompt(lang, role, rules string) string {
	return fmt.Sprintf("%s %s\nWrite every free-text field in %s (lang_code %q). "+
		"Respond with a single JSON object matching the declared schema and nothing else.",
		role, rules, languageName(lang), langCode(lang))
}

func langCode(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}

// languageName turns a lang code into an English display name
func languageName(lang string) string {
	tag, err := language.Parse(langCode(lang))
	if err != nil {
		return "English"
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return "English"
}

func formatSeries(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ", ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no answer)"
	}
	return s
}
