package grading

import (
	"errors"
	"fmt"
	"math"

	"github.com/speaknowly/speaknowly-api/model"
)

// ErrBandOutOfRange is returned by CoerceBand for unusable scores
var ErrBandOutOfRange = errors.New("band score out of range")

const (
	MaxBand = 9.0
	// bandTolerance admits values that round to one decimal just above MaxBand
	bandTolerance = 0.05
)

// ListeningQuestion is the part of a question needed to grade it
type ListeningQuestion struct {
	ID      uint
	Type    model.QuestionType
	Correct model.CorrectAnswer
}

// ListeningResponse is one submitted answer
type ListeningResponse struct {
	QuestionID uint
	Answer     []string
}

// ListeningResult is the graded form of a response
type ListeningResult struct {
	QuestionID uint
	Answer     []string
	IsCorrect  bool
	Score      int
}

// IsListeningCorrect compares the normalized answer with the accepted one.
// MATCHING compares key sets and per-key values; every other type compares
// sets of normalized strings.
func IsListeningCorrect(q ListeningQuestion, answer []string) bool {
	if q.Type == model.QuestionMatching || q.Correct.IsMapping() {
		return matchingCorrect(q.Correct.Pairs, ParsePairs(answer))
	}

	want := NormalizeSet(q.Correct.Values)
	got := NormalizeSet(answer)
	if len(want) == 0 || len(got) == 0 {
		return false
	}
	return setsEqual(want, got)
}

func matchingCorrect(correct, answer map[string]string) bool {
	if len(correct) == 0 || len(correct) != len(answer) {
		return false
	}
	for k, v := range correct {
		got, ok := answer[Normalize(k)]
		if !ok || got != Normalize(v) {
			return false
		}
	}
	return true
}

// GradeListening grades every response whose question is known.
// Responses for unknown questions are rejected; the total is independent of order.
func GradeListening(questions []ListeningQuestion, responses []ListeningResponse) ([]ListeningResult, int, error) {
	byID := make(map[uint]ListeningQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	seen := make(map[uint]bool, len(responses))
	results := make([]ListeningResult, 0, len(responses))
	total := 0
	for _, r := range responses {
		q, ok := byID[r.QuestionID]
		if !ok {
			return nil, 0, fmt.Errorf("question %d does not belong to this exam", r.QuestionID)
		}
		if seen[r.QuestionID] {
			return nil, 0, fmt.Errorf("question %d answered twice", r.QuestionID)
		}
		seen[r.QuestionID] = true

		answer := r.Answer
		if q.Type == model.QuestionMatching {
			answer = FormatPairs(ParsePairs(r.Answer))
		}
		res := ListeningResult{QuestionID: r.QuestionID, Answer: answer}
		if IsListeningCorrect(q, r.Answer) {
			res.IsCorrect = true
			res.Score = 1
			total++
		}
		results = append(results, res)
	}
	return results, total, nil
}

// IsReadingTextCorrect compares normalized free-text answers
func IsReadingTextCorrect(correct, answer string) bool {
	want := Normalize(correct)
	return want != "" && want == Normalize(answer)
}

// IsReadingChoiceCorrect reports whether selected is the variant flagged correct
func IsReadingChoiceCorrect(variants []model.ReadingVariant, selected *uint) bool {
	if selected == nil {
		return false
	}
	for _, v := range variants {
		if v.ID == *selected {
			return v.IsCorrect
		}
	}
	return false
}

// Band converts a raw score to a band rounded to one decimal
func Band(correct, total int) float64 {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct > total {
		correct = total
	}
	return RoundBand(float64(correct) / float64(total) * MaxBand)
}

// RoundBand rounds half away from zero to one decimal
func RoundBand(x float64) float64 {
	return math.Round(x*10) / 10
}

// RoundHalf rounds to the nearest half band
func RoundHalf(x float64) float64 {
	return math.Round(x*2) / 2
}

// CoerceBand turns a grader-supplied score into a stored band.
// Negative, non-finite and clearly-above-9 values are rejected.
func CoerceBand(x float64) (float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("%w: %v", ErrBandOutOfRange, x)
	}
	if x < 0 || x > MaxBand+bandTolerance+1e-9 {
		return 0, fmt.Errorf("%w: %v", ErrBandOutOfRange, x)
	}
	return RoundBand(x), nil
}

// OverallBand averages criterion bands and rounds to the nearest half, capped at 9
func OverallBand(scores ...float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return math.Min(RoundHalf(sum/float64(len(scores))), MaxBand)
}
