package grading

import (
	"math/rand"
	"testing"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Hello,   World! ": "hello world",
		"A":                  "a",
		"Bridge\tStreet.":    "bridge street",
		"STRASSE":            "strasse",
		"what?!":             "what",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, s := range []string{" A.b, C ", "Ünïcode  Straße!", "x;y:z", "  "} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), s)
	}
}

func TestListeningScenario(t *testing.T) {
	questions := []ListeningQuestion{
		{ID: 1, Type: model.QuestionFormCompletion, Correct: model.CorrectAnswer{Values: []string{"a"}}},
		{ID: 2, Type: model.QuestionMultipleAnswers, Correct: model.CorrectAnswer{Values: []string{"b", "c"}}},
	}
	responses := []ListeningResponse{
		{QuestionID: 1, Answer: []string{"A"}},
		{QuestionID: 2, Answer: []string{"c", "b"}},
	}

	results, total, err := GradeListening(questions, responses)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.True(t, results[0].IsCorrect)
	assert.Equal(t, 1, results[1].Score)
}

func TestListeningOrderIndependent(t *testing.T) {
	var questions []ListeningQuestion
	var responses []ListeningResponse
	for i := uint(1); i <= 20; i++ {
		questions = append(questions, ListeningQuestion{
			ID: i, Type: model.QuestionSentenceCompletion, Correct: model.CorrectAnswer{Values: []string{"x"}},
		})
		answer := "x"
		if i%3 == 0 {
			answer = "y"
		}
		responses = append(responses, ListeningResponse{QuestionID: i, Answer: []string{answer}})
	}

	_, want, err := GradeListening(questions, responses)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]ListeningResponse(nil), responses...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		_, got, err := GradeListening(questions, shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSingleOptionChoice(t *testing.T) {
	q := ListeningQuestion{Type: model.QuestionChoice, Correct: model.CorrectAnswer{Values: []string{"B"}}}
	assert.True(t, IsListeningCorrect(q, []string{"b"}))
	assert.False(t, IsListeningCorrect(q, []string{"a"}))
	assert.False(t, IsListeningCorrect(q, []string{"b", "a"}))
	assert.False(t, IsListeningCorrect(q, nil))
}

func TestSingleAnswerMustMatchTheWholeSet(t *testing.T) {
	q := ListeningQuestion{Type: model.QuestionFormCompletion, Correct: model.CorrectAnswer{Values: []string{"colour", "color"}}}
	assert.False(t, IsListeningCorrect(q, []string{"color"}))
	assert.True(t, IsListeningCorrect(q, []string{"Color", "colour"}))
}

func TestMultipleAnswersNeedsTheWholeSet(t *testing.T) {
	q := ListeningQuestion{Type: model.QuestionMultipleAnswers, Correct: model.CorrectAnswer{Values: []string{"b", "c"}}}
	assert.False(t, IsListeningCorrect(q, []string{"b"}))
	assert.True(t, IsListeningCorrect(q, []string{"C", "b", "b"}))
}

func TestMatching(t *testing.T) {
	q := ListeningQuestion{
		Type:    model.QuestionMatching,
		Correct: model.CorrectAnswer{Pairs: map[string]string{"1": "C", "2": "A"}},
	}
	assert.True(t, IsListeningCorrect(q, []string{"2=a", "1 = c"}))
	assert.False(t, IsListeningCorrect(q, []string{"1=c"}))
	assert.False(t, IsListeningCorrect(q, []string{"1=a", "2=c"}))
	assert.Equal(t, []string{"1=c", "2=a"}, FormatPairs(ParsePairs([]string{"2:A", "1=C"})))
}

func TestGradeListeningRejectsForeignQuestions(t *testing.T) {
	_, _, err := GradeListening(nil, []ListeningResponse{{QuestionID: 9, Answer: []string{"a"}}})
	assert.Error(t, err)
}

func TestReading(t *testing.T) {
	assert.True(t, IsReadingTextCorrect("Mesopotamia", " mesopotamia. "))
	assert.False(t, IsReadingTextCorrect("", ""))

	correct := uint(2)
	wrong := uint(1)
	variants := []model.ReadingVariant{{ID: 1}, {ID: 2, IsCorrect: true}}
	assert.True(t, IsReadingChoiceCorrect(variants, &correct))
	assert.False(t, IsReadingChoiceCorrect(variants, &wrong))
	assert.False(t, IsReadingChoiceCorrect(variants, nil))
}

func TestBand(t *testing.T) {
	assert.Equal(t, 9.0, Band(2, 2))
	assert.Equal(t, 4.5, Band(1, 2))
	assert.Equal(t, 3.0, Band(1, 3))
	assert.Equal(t, 6.4, Band(5, 7))
	assert.Equal(t, 0.0, Band(0, 0))
}

func TestCoerceBand(t *testing.T) {
	b, err := CoerceBand(9.05)
	require.NoError(t, err)
	assert.Equal(t, 9.1, b)

	b, err = CoerceBand(6.44)
	require.NoError(t, err)
	assert.Equal(t, 6.4, b)

	_, err = CoerceBand(-0.1)
	assert.ErrorIs(t, err, ErrBandOutOfRange)

	_, err = CoerceBand(9.5)
	assert.ErrorIs(t, err, ErrBandOutOfRange)
}

func TestOverallBand(t *testing.T) {
	assert.Equal(t, 6.5, OverallBand(6, 6.5, 7, 6.5))
	assert.Equal(t, 9.0, OverallBand(9.1, 9, 9, 9))
	assert.Equal(t, 0.0, OverallBand())
}
