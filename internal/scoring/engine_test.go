package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/assessment-engine/internal/models"
)

func scaleQuestion(id string, pos int, domain string) *models.Question {
	return &models.Question{
		ID:       id,
		Position: pos,
		Type:     models.QuestionScale,
		Domain:   domain,
		Scale:    &models.ScaleOptions{Min: 1, Max: 5},
	}
}

func responses(pairs ...string) []*models.Response {
	out := make([]*models.Response, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &models.Response{QuestionID: pairs[i], Value: pairs[i+1]})
	}
	return out
}

func newTestEngine() *Engine {
	return NewEngine(DefaultRegistry("yes", "no"), Policy{DefaultCeiling: 5})
}

func TestComputeTwoDomains(t *testing.T) {
	questions := []*models.Question{
		scaleQuestion("q1", 1, "Communication"),
		scaleQuestion("q2", 2, "Communication"),
		scaleQuestion("q3", 3, "Trust"),
		scaleQuestion("q4", 4, "Trust"),
	}

	scores, err := newTestEngine().Compute(questions, responses("q1", "5", "q2", "5", "q3", "1", "q4", "1"))
	require.NoError(t, err)

	assert.Equal(t, 60.0, scores.Overall)
	assert.Equal(t, map[string]float64{"Communication": 100, "Trust": 20}, scores.ByDomain)
}

func TestComputeSingleYesNo(t *testing.T) {
	questions := []*models.Question{
		{ID: "q1", Position: 1, Type: models.QuestionYesNo, Domain: "Safety"},
	}

	scores, err := newTestEngine().Compute(questions, responses("q1", "no"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, scores.Overall)
	assert.Equal(t, 0.0, scores.ByDomain["Safety"])

	scores, err = newTestEngine().Compute(questions, responses("q1", "yes"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, scores.Overall)
}

func TestComputeMixedTypesShareCeiling(t *testing.T) {
	questions := []*models.Question{
		scaleQuestion("q1", 1, "A"),
		{ID: "q2", Position: 2, Type: models.QuestionYesNo, Domain: "A"},
		{ID: "q3", Position: 3, Type: models.QuestionMultipleChoice, Domain: "B", Choices: []models.Choice{
			{Value: "never"}, {Value: "sometimes"}, {Value: "always"},
		}},
	}

	scores, err := newTestEngine().Compute(questions, responses("q1", "3", "q2", "yes", "q3", "sometimes"))
	require.NoError(t, err)

	// 3 + 5 + 2.5 over 3 questions at ceiling 5
	assert.Equal(t, 70.0, scores.Overall)
	assert.Equal(t, 80.0, scores.ByDomain["A"])
	assert.Equal(t, 50.0, scores.ByDomain["B"])
}

func TestComputeOmitsEmptyDomains(t *testing.T) {
	questions := []*models.Question{
		scaleQuestion("q1", 1, ""),
		scaleQuestion("q2", 2, "Focus"),
	}

	scores, err := newTestEngine().Compute(questions, responses("q1", "2", "q2", "4"))
	require.NoError(t, err)
	assert.Len(t, scores.ByDomain, 1)
	assert.Contains(t, scores.ByDomain, "Focus")
	assert.Equal(t, 60.0, scores.Overall)
}

func TestComputeMissingResponses(t *testing.T) {
	questions := []*models.Question{
		scaleQuestion("q2", 2, "A"),
		scaleQuestion("q1", 1, "A"),
		scaleQuestion("q3", 3, "A"),
	}

	_, err := newTestEngine().Compute(questions, responses("q2", "3"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingResponses))

	var missing *MissingResponsesError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"q1", "q3"}, missing.Missing)
}

func TestComputeIgnoresUnknownResponses(t *testing.T) {
	questions := []*models.Question{scaleQuestion("q1", 1, "A")}

	scores, err := newTestEngine().Compute(questions, responses("q1", "5", "other", "1"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, scores.Overall)
}

func TestComputeStaysInBounds(t *testing.T) {
	questions := []*models.Question{
		{ID: "q1", Position: 1, Type: models.QuestionScale, Domain: "A", Scale: &models.ScaleOptions{Min: -3, Max: 3}},
		{ID: "q2", Position: 2, Type: models.QuestionScale, Domain: "A", Scale: &models.ScaleOptions{Min: 0, Max: 10}},
	}

	for _, tc := range [][]string{
		{"q1", "-3", "q2", "0"},
		{"q1", "3", "q2", "10"},
		{"q1", "0", "q2", "7"},
	} {
		scores, err := newTestEngine().Compute(questions, responses(tc...))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, scores.Overall, 0.0)
		assert.LessOrEqual(t, scores.Overall, 100.0)
		for _, v := range scores.ByDomain {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestComputeRoundsToTwoDecimals(t *testing.T) {
	questions := []*models.Question{
		scaleQuestion("q1", 1, "A"),
		scaleQuestion("q2", 2, "A"),
		scaleQuestion("q3", 3, "A"),
	}

	scores, err := newTestEngine().Compute(questions, responses("q1", "1", "q2", "1", "q3", "2"))
	require.NoError(t, err)
	assert.Equal(t, 26.67, scores.Overall)
}

func TestCeiling(t *testing.T) {
	e := NewEngine(NewRegistry(), Policy{DefaultCeiling: 4})

	assert.Equal(t, 4.0, e.Ceiling([]*models.Question{{ID: "q", Type: models.QuestionYesNo}}))
	assert.Equal(t, 7.0, e.Ceiling([]*models.Question{
		{ID: "a", Type: models.QuestionScale, Scale: &models.ScaleOptions{Min: 1, Max: 5}},
		{ID: "b", Type: models.QuestionScale, Scale: &models.ScaleOptions{Min: 1, Max: 7}},
	}))
	assert.Equal(t, 5.0, NewEngine(NewRegistry(), Policy{}).Ceiling(nil))
}

type constantStrategy struct{ value float64 }

func (constantStrategy) Validate(*models.Question, string) error { return nil }

func (s constantStrategy) Score(_ *models.Question, _ string, ceiling float64) (float64, error) {
	return s.value * ceiling, nil
}

func TestComputeCustomStrategy(t *testing.T) {
	registry := DefaultRegistry("yes", "no")
	registry.Register("free_text", constantStrategy{value: 0.5})

	questions := []*models.Question{{ID: "q1", Position: 1, Type: "free_text", Domain: "A"}}
	scores, err := NewEngine(registry, Policy{DefaultCeiling: 5}).Compute(questions, responses("q1", "anything"))
	require.NoError(t, err)
	assert.Equal(t, 50.0, scores.Overall)
}

func TestComputeUnknownType(t *testing.T) {
	questions := []*models.Question{{ID: "q1", Position: 1, Type: "free_text"}}

	_, err := newTestEngine().Compute(questions, responses("q1", "x"))
	assert.ErrorIs(t, err, ErrUnknownType)
}
