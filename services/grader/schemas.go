package grader

import (
	"math"
	"sort"
	"strings"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grading"
)

// WritingPrompts are the two generated writing tasks plus the chart input of Task 1
type WritingPrompts struct {
	Part1Question string    `json:"part1_question"`
	ChartType     string    `json:"chart_type"`
	Categories    []string  `json:"categories"`
	Year1         int       `json:"year1"`
	Year2         int       `json:"year2"`
	DataYear1     []float64 `json:"data_year1"`
	DataYear2     []float64 `json:"data_year2"`
	Part2Question string    `json:"part2_question"`
}

// ChartData is the diagram input persisted with WritingPart1
type ChartData struct {
	ChartType  model.ChartType `json:"chart_type"`
	Categories []string        `json:"categories"`
	Year1      int             `json:"year1"`
	Year2      int             `json:"year2"`
	DataYear1  []float64       `json:"data_year1"`
	DataYear2  []float64       `json:"data_year2"`
}

// Chart returns the diagram part of the prompts
func (p *WritingPrompts) Chart() ChartData {
	return ChartData{
		ChartType:  model.ChartType(p.ChartType),
		Categories: p.Categories,
		Year1:      p.Year1,
		Year2:      p.Year2,
		DataYear1:  p.DataYear1,
		DataYear2:  p.DataYear2,
	}
}

// Validate checks the generated prompts
func (p *WritingPrompts) Validate() error {
	const op = "generate_writing_prompts"
	if strings.TrimSpace(p.Part1Question) == "" || strings.TrimSpace(p.Part2Question) == "" {
		return schemaErrorf(op, "both questions are required")
	}
	p.ChartType = strings.ToLower(strings.TrimSpace(p.ChartType))
	return p.Chart().validate(op)
}

func (d ChartData) validate(op string) error {
	if !d.ChartType.Valid() {
		return schemaErrorf(op, "unknown chart type %q", d.ChartType)
	}
	n := len(d.Categories)
	if n < 2 || n > 12 {
		return schemaErrorf(op, "expected 2 to 12 categories, got %d", n)
	}
	if len(d.DataYear1) != n || len(d.DataYear2) != n {
		return schemaErrorf(op, "data series must match the %d categories", n)
	}
	for _, series := range [][]float64{d.DataYear1, d.DataYear2} {
		for _, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return schemaErrorf(op, "data values must be finite and non-negative")
			}
		}
	}
	return nil
}

// QuestionPrompt is the title and body of one speaking part
type QuestionPrompt struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SpeakingQuestions are the three generated speaking parts
type SpeakingQuestions struct {
	Part1 QuestionPrompt `json:"part1"`
	Part2 QuestionPrompt `json:"part2"`
	Part3 QuestionPrompt `json:"part3"`
}

// Parts returns the prompts in part order
func (q *SpeakingQuestions) Parts() []QuestionPrompt {
	return []QuestionPrompt{q.Part1, q.Part2, q.Part3}
}

// Validate checks that every part has content
func (q *SpeakingQuestions) Validate() error {
	for i, p := range q.Parts() {
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Content) == "" {
			return schemaErrorf("generate_speaking_questions", "part %d is incomplete", i+1)
		}
	}
	return nil
}

// Criterion is one scored band criterion returned by the grader
type Criterion struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

func (c *Criterion) coerce(op, name string) error {
	band, err := grading.CoerceBand(c.Score)
	if err != nil {
		return schemaErrorf(op, "%s: %v", name, err)
	}
	c.Score = band
	c.Feedback = strings.TrimSpace(c.Feedback)
	if c.Feedback == "" {
		return schemaErrorf(op, "%s: feedback is required", name)
	}
	return nil
}

// WritingGrade is the structured writing assessment
type WritingGrade struct {
	TaskAchievement      Criterion `json:"task_achievement"`
	LexicalResource      Criterion `json:"lexical_resource"`
	CoherenceAndCohesion Criterion `json:"coherence_and_cohesion"`
	GrammaticalRange     Criterion `json:"grammatical_range_and_accuracy"`
	WordCount            Criterion `json:"word_count"`
	OverallBandScore     float64   `json:"overall_band_score"`
}

// Criteria returns the scored criteria keyed by their persisted names
func (g *WritingGrade) Criteria() map[string]model.CriterionResult {
	return map[string]model.CriterionResult{
		model.CriterionTaskAchievement:   model.CriterionResult(g.TaskAchievement),
		model.CriterionLexicalResource:   model.CriterionResult(g.LexicalResource),
		model.CriterionCoherenceCohesion: model.CriterionResult(g.CoherenceAndCohesion),
		model.CriterionGrammaticalRange:  model.CriterionResult(g.GrammaticalRange),
		model.CriterionWordCount:         model.CriterionResult(g.WordCount),
	}
}

// Validate coerces every band and recomputes the overall band from the
// four IELTS criteria. The grader's own overall value is only range-checked.
func (g *WritingGrade) Validate() error {
	const op = "grade_writing"
	for name, c := range map[string]*Criterion{
		model.CriterionTaskAchievement:   &g.TaskAchievement,
		model.CriterionLexicalResource:   &g.LexicalResource,
		model.CriterionCoherenceCohesion: &g.CoherenceAndCohesion,
		model.CriterionGrammaticalRange:  &g.GrammaticalRange,
		model.CriterionWordCount:         &g.WordCount,
	} {
		if err := c.coerce(op, name); err != nil {
			return err
		}
	}
	if _, err := grading.CoerceBand(g.OverallBandScore); err != nil {
		return schemaErrorf(op, "overall_band_score: %v", err)
	}
	g.OverallBandScore = grading.OverallBand(
		g.TaskAchievement.Score, g.LexicalResource.Score,
		g.CoherenceAndCohesion.Score, g.GrammaticalRange.Score,
	)
	return nil
}

// SpeakingGrade is the structured speaking assessment
type SpeakingGrade struct {
	FluencyAndCoherence Criterion `json:"fluency_and_coherence"`
	LexicalResource     Criterion `json:"lexical_resource"`
	GrammaticalRange    Criterion `json:"grammatical_range_and_accuracy"`
	Pronunciation       Criterion `json:"pronunciation"`
	OverallBandScore    float64   `json:"overall_band_score"`
}

// Criteria returns the scored criteria keyed by their persisted names
func (g *SpeakingGrade) Criteria() map[string]model.CriterionResult {
	return map[string]model.CriterionResult{
		model.CriterionFluencyCoherence: model.CriterionResult(g.FluencyAndCoherence),
		model.CriterionLexicalResource:  model.CriterionResult(g.LexicalResource),
		model.CriterionGrammaticalRange: model.CriterionResult(g.GrammaticalRange),
		model.CriterionPronunciation:    model.CriterionResult(g.Pronunciation),
	}
}

// Validate coerces every band and recomputes the overall band
func (g *SpeakingGrade) Validate() error {
	const op = "grade_speaking"
	for name, c := range map[string]*Criterion{
		model.CriterionFluencyCoherence: &g.FluencyAndCoherence,
		model.CriterionLexicalResource:  &g.LexicalResource,
		model.CriterionGrammaticalRange: &g.GrammaticalRange,
		model.CriterionPronunciation:    &g.Pronunciation,
	} {
		if err := c.coerce(op, name); err != nil {
			return err
		}
	}
	if _, err := grading.CoerceBand(g.OverallBandScore); err != nil {
		return schemaErrorf(op, "overall_band_score: %v", err)
	}
	g.OverallBandScore = grading.OverallBand(
		g.FluencyAndCoherence.Score, g.LexicalResource.Score,
		g.GrammaticalRange.Score, g.Pronunciation.Score,
	)
	return nil
}

// ListeningReview is the grader's assessment of a listening attempt
type ListeningReview struct {
	CorrectAnswers int                     `json:"correct_answers"`
	OverallScore   float64                 `json:"overall_score"`
	Feedback       model.ListeningFeedback `json:"feedback"`
}

// Validate range-checks the counts and band
func (r *ListeningReview) Validate(total int) error {
	const op = "grade_listening"
	if r.CorrectAnswers < 0 || r.CorrectAnswers > total {
		return schemaErrorf(op, "correct_answers %d outside [0,%d]", r.CorrectAnswers, total)
	}
	band, err := grading.CoerceBand(r.OverallScore)
	if err != nil {
		return schemaErrorf(op, "overall_score: %v", err)
	}
	r.OverallScore = band
	if strings.TrimSpace(r.Feedback.ListeningSkills) == "" {
		return schemaErrorf(op, "feedback.listening_skills is required")
	}
	return nil
}

func criterionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"score":    map[string]interface{}{"type": "number", "minimum": 0, "maximum": 9},
			"feedback": map[string]interface{}{"type": "string"},
		},
		"required":             []string{"score", "feedback"},
		"additionalProperties": false,
	}
}

func objectSchema(props map[string]interface{}) map[string]interface{} {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

var (
	stringSchema = map[string]interface{}{"type": "string"}
	numberSchema = map[string]interface{}{"type": "number"}
	bandSchema   = map[string]interface{}{"type": "number", "minimum": 0, "maximum": 9}

	writingPromptsSchema = objectSchema(map[string]interface{}{
		"part1_question": stringSchema,
		"chart_type":     map[string]interface{}{"type": "string", "enum": []string{"bar", "line", "pie"}},
		"categories":     map[string]interface{}{"type": "array", "items": stringSchema},
		"year1":          map[string]interface{}{"type": "integer"},
		"year2":          map[string]interface{}{"type": "integer"},
		"data_year1":     map[string]interface{}{"type": "array", "items": numberSchema},
		"data_year2":     map[string]interface{}{"type": "array", "items": numberSchema},
		"part2_question": stringSchema,
	})

	speakingQuestionsSchema = objectSchema(map[string]interface{}{
		"part1": objectSchema(map[string]interface{}{"title": stringSchema, "content": stringSchema}),
		"part2": objectSchema(map[string]interface{}{"title": stringSchema, "content": stringSchema}),
		"part3": objectSchema(map[string]interface{}{"title": stringSchema, "content": stringSchema}),
	})

	writingGradeSchema = objectSchema(map[string]interface{}{
		"task_achievement":               criterionSchema(),
		"lexical_resource":               criterionSchema(),
		"coherence_and_cohesion":         criterionSchema(),
		"grammatical_range_and_accuracy": criterionSchema(),
		"word_count":                     criterionSchema(),
		"overall_band_score":             bandSchema,
	})

	speakingGradeSchema = objectSchema(map[string]interface{}{
		"fluency_and_coherence":          criterionSchema(),
		"lexical_resource":               criterionSchema(),
		"grammatical_range_and_accuracy": criterionSchema(),
		"pronunciation":                  criterionSchema(),
		"overall_band_score":             bandSchema,
	})

	listeningReviewSchema = objectSchema(map[string]interface{}{
		"correct_answers": map[string]interface{}{"type": "integer", "minimum": 0},
		"overall_score":   bandSchema,
		"feedback": objectSchema(map[string]interface{}{
			"listening_skills":         stringSchema,
			"concentration":            stringSchema,
			"strategy_recommendations": stringSchema,
		}),
	})
)
