package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// ErrMissingResponses is matched by MissingResponsesError
var ErrMissingResponses = errors.New("missing responses")

// MissingResponsesError lists the questions that have no response
type MissingResponsesError struct {
	Missing []string
}

func (e *MissingResponsesError) Error() string {
	return fmt.Sprintf("missing responses for questions: %s", strings.Join(e.Missing, ", "))
}

func (e *MissingResponsesError) Unwrap() error {
	return ErrMissingResponses
}

// Policy holds the scoring knobs that are not per-type
type Policy struct {
	// DefaultCeiling is used when the assessment declares no scale questions
	DefaultCeiling float64
}

// Engine computes overall and per-domain percentages from stored responses.
// It has no side effects.
type Engine struct {
	registry *Registry
	policy   Policy
}

// NewEngine creates a new scoring engine
func NewEngine(registry *Registry, policy Policy) *Engine {
	if policy.DefaultCeiling <= 0 {
		policy.DefaultCeiling = 5
	}
	return &Engine{
		registry: registry,
		policy:   policy,
	}
}

// Registry exposes the strategy registry for response validation
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Ceiling is the per-question maximum for an assessment: the largest declared
// scale max, or the policy default when there are no scale questions.
func (e *Engine) Ceiling(questions []*models.Question) float64 {
	ceiling := 0
	for _, q := range questions {
		if q.Type == models.QuestionScale && q.Scale != nil && q.Scale.Max > ceiling {
			ceiling = q.Scale.Max
		}
	}
	if ceiling <= 0 {
		return e.policy.DefaultCeiling
	}
	return float64(ceiling)
}

type tally struct {
	sum   float64
	count int
}

func (t *tally) percent(ceiling float64) float64 {
	if t.count == 0 {
		return 0
	}
	p := t.sum * 100 / (float64(t.count) * ceiling)
	return math.Round(clamp(p, 0, 100)*100) / 100
}

// Compute scores responses against the question set. Every question must have
// a response. Responses for questions outside the set are ignored.
func (e *Engine) Compute(questions []*models.Question, responses []*models.Response) (*models.Scores, error) {
	ceiling := e.Ceiling(questions)

	byQuestion := make(map[string]*models.Response, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}

	ordered := make([]*models.Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	var missing []string
	for _, q := range ordered {
		if _, ok := byQuestion[q.ID]; !ok {
			missing = append(missing, q.ID)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingResponsesError{Missing: missing}
	}

	var overall tally
	domains := make(map[string]*tally)
	for _, q := range ordered {
		strategy := e.registry.Get(q.Type)
		if strategy == nil {
			return nil, fmt.Errorf("question %s: %w: %s", q.ID, ErrUnknownType, q.Type)
		}

		v, err := strategy.Score(q, byQuestion[q.ID].Value, ceiling)
		if err != nil {
			return nil, err
		}

		overall.sum += v
		overall.count++
		if q.HasDomain() {
			d, ok := domains[q.Domain]
			if !ok {
				d = &tally{}
				domains[q.Domain] = d
			}
			d.sum += v
			d.count++
		}
	}

	scores := &models.Scores{
		Overall:  overall.percent(ceiling),
		ByDomain: make(map[string]float64, len(domains)),
	}
	for name, d := range domains {
		scores.ByDomain[name] = d.percent(ceiling)
	}
	return scores, nil
}
