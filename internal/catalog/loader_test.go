package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/assessment-engine/internal/models"
)

const validYAML = `
id: pulse
name: Pulse
category: teamwork
questions:
  - id: q2
    position: 2
    prompt: Second
    type: yes_no
    domain: Trust
  - id: q1
    position: 1
    prompt: First
    type: scale
    domain: Communication
    scale: {min: 1, max: 5}
  - id: q3
    position: 3
    prompt: Third
    type: multiple_choice
    choices:
      - {value: a}
      - {value: b}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader()
	require.NoError(t, err)
	return l
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pulse.yaml", validYAML)
	writeFile(t, dir, "nested/other.yml", `
id: other
name: Other
category: misc
questions:
  - {id: only, position: 1, prompt: Only, type: yes_no}
`)
	writeFile(t, dir, "notes.txt", "ignored")

	l := newTestLoader(t)
	results, err := l.LoadFromDir(dir)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, l.Count())

	list := l.List()
	require.Len(t, list, 2)
	assert.Equal(t, "other", list[0].ID)
	assert.Equal(t, "pulse", list[1].ID)

	a, err := l.GetAssessment(context.Background(), "pulse")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, []string{"Communication", "Trust"}, a.Domains())

	questions, err := l.ListQuestions(context.Background(), "pulse")
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, "q1", questions[0].ID)
	assert.Equal(t, "q2", questions[1].ID)
	assert.Equal(t, "q3", questions[2].ID)
	assert.Equal(t, &models.ScaleOptions{Min: 1, Max: 5}, questions[0].Scale)
	assert.Equal(t, models.QuestionMultipleChoice, questions[2].Type)
}

func TestUnknownAssessment(t *testing.T) {
	l := newTestLoader(t)

	a, err := l.GetAssessment(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, a)

	questions, err := l.ListQuestions(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, questions)
}

func TestParseRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "id: [unclosed"},
		{"empty", ""},
		{"missing questions", "id: x\nname: X\ncategory: c\n"},
		{"no questions", "id: x\nname: X\ncategory: c\nquestions: []\n"},
		{"unknown type", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: free_text}\n"},
		{"scale without bounds", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: scale}\n"},
		{"single choice", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: multiple_choice, choices: [{value: a}]}\n"},
		{"numeric choice value", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: multiple_choice, choices: [{value: 1}, {value: 2}]}\n"},
		{"unknown field", "id: x\nname: X\ncategory: c\nowner: me\nquestions:\n  - {id: q, position: 1, prompt: P, type: yes_no}\n"},
		{"bad id", "id: Not Valid\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: yes_no}\n"},
		{"inverted scale", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: scale, scale: {min: 5, max: 1}}\n"},
		{"label outside scale", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: scale, scale: {min: 1, max: 5, labels: [{value: 9, label: Nine}]}}\n"},
		{"duplicate question id", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: yes_no}\n  - {id: q, position: 2, prompt: P, type: yes_no}\n"},
		{"duplicate position", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: a, position: 1, prompt: P, type: yes_no}\n  - {id: b, position: 1, prompt: P, type: yes_no}\n"},
		{"duplicate choice", "id: x\nname: X\ncategory: c\nquestions:\n  - {id: q, position: 1, prompt: P, type: multiple_choice, choices: [{value: a}, {value: a}]}\n"},
	}

	l := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidAssessment)
		})
	}
}

func TestLoadFromDirSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", validYAML)
	writeFile(t, dir, "bad.yaml", "id: bad\nname: Bad\ncategory: c\nquestions: []\n")

	l := newTestLoader(t)
	results, err := l.LoadFromDir(dir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 1, l.Count())
	for _, res := range results {
		if filepath.Base(res.Path) == "bad.yaml" {
			assert.ErrorIs(t, res.Err, ErrInvalidAssessment)
		} else {
			assert.NoError(t, res.Err)
			assert.True(t, res.Added)
		}
	}
}

func TestPublishedAssessmentsAreImmutable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pulse.yaml", validYAML)

	l := newTestLoader(t)
	_, err := l.LoadFromDir(dir)
	require.NoError(t, err)
	original := l.Get("pulse")
	require.NotNil(t, original)

	changed := `
id: pulse
name: Pulse v2
category: teamwork
questions:
  - {id: only, position: 1, prompt: Only, type: yes_no}
`
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))

	results, err := l.LoadFromDir(dir)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Added)
	assert.NoError(t, results[0].Err)

	assert.Same(t, original, l.Get("pulse"))
	assert.Equal(t, "Pulse", l.Get("pulse").Name)
	assert.Len(t, l.Get("pulse").Questions, 3)
}

func TestAdd(t *testing.T) {
	l := newTestLoader(t)

	err := l.Add(&models.Assessment{ID: "empty"})
	assert.ErrorIs(t, err, ErrInvalidAssessment)

	a := &models.Assessment{
		ID:        "manual",
		Name:      "Manual",
		Questions: []*models.Question{{ID: "q", Position: 1, Type: models.QuestionYesNo}},
	}
	require.NoError(t, l.Add(a))

	published := l.Get("manual")
	require.NotNil(t, published)
	assert.NotSame(t, a, published)
	assert.Equal(t, a, published)

	a.Name = "Renamed"
	a.Questions[0].Type = models.QuestionScale
	a.Questions = append(a.Questions, &models.Question{ID: "extra", Position: 2, Type: models.QuestionYesNo})

	published = l.Get("manual")
	assert.Equal(t, "Manual", published.Name)
	require.Len(t, published.Questions, 1)
	assert.Equal(t, models.QuestionYesNo, published.Questions[0].Type)
}

func TestCloneCopiesOptions(t *testing.T) {
	a := &models.Assessment{
		ID: "deep",
		Questions: []*models.Question{
			{ID: "s", Position: 1, Type: models.QuestionScale, Scale: &models.ScaleOptions{
				Min: 1, Max: 5, Labels: []models.ScaleLabel{{Value: 1, Label: "Low"}},
			}},
			{ID: "c", Position: 2, Type: models.QuestionMultipleChoice, Choices: []models.Choice{{Value: "a"}, {Value: "b"}}},
		},
	}

	c := a.Clone()
	require.Equal(t, a, c)

	a.Questions[0].Scale.Max = 10
	a.Questions[0].Scale.Labels[0].Label = "Changed"
	a.Questions[1].Choices[0].Value = "z"

	assert.Equal(t, 5, c.Questions[0].Scale.Max)
	assert.Equal(t, "Low", c.Questions[0].Scale.Labels[0].Label)
	assert.Equal(t, "a", c.Questions[1].Choices[0].Value)
}

func TestValidateDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", validYAML)
	writeFile(t, dir, "b.yaml", validYAML)
	writeFile(t, dir, "c.yaml", "id: c\n")

	l := newTestLoader(t)
	results, err := l.ValidateDir(dir)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrInvalidAssessment)
	assert.Contains(t, results[1].Err.Error(), "already declared")
	assert.ErrorIs(t, results[2].Err, ErrInvalidAssessment)
	assert.Equal(t, 0, l.Count())
}

func TestLoadFromDirMissing(t *testing.T) {
	l := newTestLoader(t)
	_, err := l.LoadFromDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestBundledCatalog(t *testing.T) {
	dir := filepath.Join("..", "..", "catalog")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skip("catalog directory not found, skipping")
	}

	l := newTestLoader(t)
	results, err := l.ValidateDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.NoError(t, res.Err, res.Path)
	}
}
