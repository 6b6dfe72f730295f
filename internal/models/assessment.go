package models

import "sort"

// QuestionType tags how a question's raw answer is validated and scored
type QuestionType string

const (
	QuestionScale          QuestionType = "scale"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionYesNo          QuestionType = "yes_no"
)

// Valid reports whether t is one of the known question types
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionScale, QuestionMultipleChoice, QuestionYesNo:
		return true
	}
	return false
}

// Assessment is a published questionnaire. Immutable once loaded.
type Assessment struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Description string      `json:"description,omitempty"`
	Questions   []*Question `json:"questions,omitempty"`
}

// Question is a single item of an assessment
type Question struct {
	ID       string        `json:"id"`
	Position int           `json:"position"` // presentation order only
	Prompt   string        `json:"prompt"`
	Type     QuestionType  `json:"type"`
	Domain   string        `json:"domain,omitempty"` // empty: counts toward overall only
	Scale    *ScaleOptions `json:"scale,omitempty"`
	Choices  []Choice      `json:"choices,omitempty"`
}

// ScaleOptions holds the inclusive numeric bounds of a scale question
type ScaleOptions struct {
	Min    int          `json:"min"`
	Max    int          `json:"max"`
	Labels []ScaleLabel `json:"labels,omitempty"`
}

// ScaleLabel is an optional display label for one scale value
type ScaleLabel struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// Choice is one declared option of a multiple-choice question
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// ChoiceIndex returns the 0-based index of value among the declared choices, or -1
func (q *Question) ChoiceIndex(value string) int {
	for i, c := range q.Choices {
		if c.Value == value {
			return i
		}
	}
	return -1
}

// HasDomain reports whether the question contributes to a domain sub-score
func (q *Question) HasDomain() bool {
	return q.Domain != ""
}

// Clone returns a deep copy of the assessment
func (a *Assessment) Clone() *Assessment {
	out := *a
	if a.Questions != nil {
		out.Questions = make([]*Question, len(a.Questions))
		for i, q := range a.Questions {
			out.Questions[i] = q.clone()
		}
	}
	return &out
}

func (q *Question) clone() *Question {
	if q == nil {
		return nil
	}
	out := *q
	if q.Scale != nil {
		scale := *q.Scale
		if q.Scale.Labels != nil {
			scale.Labels = append([]ScaleLabel{}, q.Scale.Labels...)
		}
		out.Scale = &scale
	}
	if q.Choices != nil {
		out.Choices = append([]Choice{}, q.Choices...)
	}
	return &out
}

// Question returns the question with the given id, or nil
func (a *Assessment) Question(id string) *Question {
	for _, q := range a.Questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// OrderedQuestions returns the questions sorted by position
func (a *Assessment) OrderedQuestions() []*Question {
	out := make([]*Question, len(a.Questions))
	copy(out, a.Questions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// Domains returns the distinct domain labels of the assessment, sorted
func (a *Assessment) Domains() []string {
	seen := make(map[string]struct{})
	for _, q := range a.Questions {
		if q.HasDomain() {
			seen[q.Domain] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// AssessmentSummary is the catalog listing view of an assessment
type AssessmentSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Description    string   `json:"description,omitempty"`
	QuestionsCount int      `json:"questions_count"`
	Domains        []string `json:"domains"`
}

// Summary builds the listing view
func (a *Assessment) Summary() AssessmentSummary {
	return AssessmentSummary{
		ID:             a.ID,
		Name:           a.Name,
		Category:       a.Category,
		Description:    a.Description,
		QuestionsCount: len(a.Questions),
		Domains:        a.Domains(),
	}
}
