package scoring

import (
	"sort"
	"sync"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Registry maps question types to their strategies
type Registry struct {
	mu         sync.RWMutex
	strategies map[models.QuestionType]Strategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[models.QuestionType]Strategy),
	}
}

// DefaultRegistry returns a registry with the built-in scale, multiple-choice
// and yes/no strategies
func DefaultRegistry(yesToken, noToken string) *Registry {
	r := NewRegistry()
	r.Register(models.QuestionScale, ScaleStrategy{})
	r.Register(models.QuestionMultipleChoice, ChoiceStrategy{})
	r.Register(models.QuestionYesNo, YesNoStrategy{Yes: yesToken, No: noToken})
	return r
}

// Register adds or replaces the strategy for a question type
func (r *Registry) Register(t models.QuestionType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[t] = s
}

// Get retrieves a strategy by question type
func (r *Registry) Get(t models.QuestionType) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategies[t]
}

// Types returns all registered question types, sorted
func (r *Registry) Types() []models.QuestionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.QuestionType, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Validate dispatches raw-value validation to the question type's strategy
func (r *Registry) Validate(q *models.Question, raw string) error {
	s := r.Get(q.Type)
	if s == nil {
		return ErrUnknownType
	}
	return s.Validate(q, raw)
}
