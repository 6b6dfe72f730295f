package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/assessment-engine/internal/models"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "catalog://assessment.schema.json"

// ErrInvalidAssessment is returned for catalog files that fail validation
var ErrInvalidAssessment = errors.New("invalid assessment")

// Catalog is the read-only view of published assessments used by the engine.
// Unknown ids return (nil, nil).
type Catalog interface {
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	ListQuestions(ctx context.Context, assessmentID string) ([]*models.Question, error)
}

// Loader manages loading and caching of published assessments
type Loader struct {
	mu          sync.RWMutex
	assessments map[string]*models.Assessment
	digests     map[string][sha256.Size]byte // assessment id -> source digest
	sources     map[string]string            // assessment id -> source file

	schema *jsonschema.Schema
}

// NewLoader creates a new catalog loader
func NewLoader() (*Loader, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add catalog schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog schema: %w", err)
	}

	return &Loader{
		assessments: make(map[string]*models.Assessment),
		digests:     make(map[string][sha256.Size]byte),
		sources:     make(map[string]string),
		schema:      schema,
	}, nil
}

// FileResult is the outcome of loading or validating one catalog file
type FileResult struct {
	Path  string
	ID    string
	Added bool
	Err   error
}

// Files lists the catalog files in dir and its immediate subdirectories
func Files(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)

		subMatches, err := filepath.Glob(filepath.Join(dir, "*", pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, subMatches...)
	}

	sort.Strings(files)
	return files, nil
}

// LoadFromDir publishes every valid assessment found in dir. Invalid files are
// logged and skipped. Assessments that are already published are never replaced.
func (l *Loader) LoadFromDir(dir string) ([]FileResult, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(files))
	added := 0
	for _, file := range files {
		res := l.loadFile(file)
		if res.Err != nil {
			slog.Warn("failed to load assessment", "file", file, "error", res.Err)
		}
		if res.Added {
			added++
		}
		results = append(results, res)
	}

	slog.Info("catalog loaded", "dir", dir, "added", added, "total_files", len(files), "published", l.Count())
	return results, nil
}

// ValidateDir checks every catalog file in dir without publishing anything
func (l *Loader) ValidateDir(dir string) ([]FileResult, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(files))
	seen := make(map[string]string)
	for _, file := range files {
		res := FileResult{Path: file}
		a, err := l.ParseFile(file)
		switch {
		case err != nil:
			res.Err = err
		case seen[a.ID] != "":
			res.ID = a.ID
			res.Err = fmt.Errorf("%w: id %q already declared in %s", ErrInvalidAssessment, a.ID, seen[a.ID])
		default:
			res.ID = a.ID
			seen[a.ID] = file
		}
		results = append(results, res)
	}
	return results, nil
}

// LoadFromFile publishes the assessment in a single YAML file
func (l *Loader) LoadFromFile(path string) error {
	return l.loadFile(path).Err
}

func (l *Loader) loadFile(path string) FileResult {
	res := FileResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("failed to read file: %w", err)
		return res
	}

	a, err := l.Parse(data)
	if err != nil {
		res.Err = err
		return res
	}
	res.ID = a.ID
	res.Added = l.publish(a, sha256.Sum256(data), path)
	return res
}

// ParseFile reads and validates a catalog file
func (l *Loader) ParseFile(path string) (*models.Assessment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return l.Parse(data)
}

// Parse validates a YAML document against the catalog schema and the
// semantic rules, and converts it into an assessment
func (l *Loader) Parse(data []byte) (*models.Assessment, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidAssessment, err)
	}

	// The schema validator expects JSON-shaped values.
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported YAML structure: %w", ErrInvalidAssessment, err)
	}
	var doc any
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAssessment, err)
	}
	if err := l.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: schema validation failed: %w", ErrInvalidAssessment, err)
	}

	var af assessmentFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&af); err != nil {
		return nil, fmt.Errorf("%w: failed to decode assessment: %w", ErrInvalidAssessment, err)
	}

	a := af.toModel()
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Add programmatically publishes a copy of an assessment. Later changes to
// a by the caller do not affect the published version.
func (l *Loader) Add(a *models.Assessment) error {
	if err := Validate(a); err != nil {
		return err
	}
	a = a.Clone()
	js, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to fingerprint assessment: %w", err)
	}
	l.publish(a, sha256.Sum256(js), "")
	return nil
}

// publish stores a unless an assessment with the same id is already published
func (l *Loader) publish(a *models.Assessment, digest [sha256.Size]byte, source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.assessments[a.ID]; exists {
		if l.digests[a.ID] != digest {
			slog.Warn("published assessment changed, keeping loaded version",
				"id", a.ID,
				"source", source,
				"loaded_from", l.sources[a.ID],
			)
		}
		return false
	}

	l.assessments[a.ID] = a
	l.digests[a.ID] = digest
	l.sources[a.ID] = source

	slog.Info("assessment published", "id", a.ID, "questions", len(a.Questions), "source", source)
	return true
}

// Get retrieves an assessment by id
func (l *Loader) Get(id string) *models.Assessment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assessments[id]
}

// GetAssessment implements Catalog
func (l *Loader) GetAssessment(_ context.Context, id string) (*models.Assessment, error) {
	return l.Get(id), nil
}

// ListQuestions implements Catalog. Questions are ordered by position.
func (l *Loader) ListQuestions(_ context.Context, assessmentID string) ([]*models.Question, error) {
	a := l.Get(assessmentID)
	if a == nil {
		return nil, nil
	}
	return a.OrderedQuestions(), nil
}

// List returns all published assessments sorted by id
func (l *Loader) List() []*models.Assessment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Assessment, 0, len(l.assessments))
	for _, a := range l.assessments {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of published assessments
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.assessments)
}

// Validate applies the rules the schema cannot express
func Validate(a *models.Assessment) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if a.ID == "" {
		fail("assessment id is required")
	}
	if len(a.Questions) == 0 {
		fail("assessment has no questions")
	}

	ids := make(map[string]struct{}, len(a.Questions))
	positions := make(map[int]string, len(a.Questions))
	for _, q := range a.Questions {
		if q.ID == "" {
			fail("question at position %d has no id", q.Position)
			continue
		}
		if _, dup := ids[q.ID]; dup {
			fail("duplicate question id %q", q.ID)
		}
		ids[q.ID] = struct{}{}

		if other, dup := positions[q.Position]; dup {
			fail("questions %q and %q share position %d", other, q.ID, q.Position)
		}
		positions[q.Position] = q.ID

		switch q.Type {
		case models.QuestionScale:
			if q.Scale == nil {
				fail("question %q: scale bounds are required", q.ID)
				continue
			}
			if q.Scale.Min >= q.Scale.Max {
				fail("question %q: scale min %d must be below max %d", q.ID, q.Scale.Min, q.Scale.Max)
			}
			if q.Scale.Max <= 0 {
				fail("question %q: scale max must be positive", q.ID)
			}
			for _, lbl := range q.Scale.Labels {
				if lbl.Value < q.Scale.Min || lbl.Value > q.Scale.Max {
					fail("question %q: label for %d is outside the scale", q.ID, lbl.Value)
				}
			}
		case models.QuestionMultipleChoice:
			if len(q.Choices) < 2 {
				fail("question %q: at least two choices are required", q.ID)
			}
			values := make(map[string]struct{}, len(q.Choices))
			for _, c := range q.Choices {
				if _, dup := values[c.Value]; dup {
					fail("question %q: duplicate choice %q", q.ID, c.Value)
				}
				values[c.Value] = struct{}{}
			}
		case models.QuestionYesNo:
		default:
			fail("question %q: unknown type %q", q.ID, q.Type)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidAssessment, a.ID, errors.Join(errs...))
	}
	return nil
}

// --- YAML file structs ---

// assessmentFile represents the YAML structure of an assessment file
type assessmentFile struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Category    string         `yaml:"category"`
	Description string         `yaml:"description"`
	Questions   []questionFile `yaml:"questions"`
}

type questionFile struct {
	ID       string       `yaml:"id"`
	Position int          `yaml:"position"`
	Prompt   string       `yaml:"prompt"`
	Type     string       `yaml:"type"`
	Domain   string       `yaml:"domain"`
	Scale    *scaleFile   `yaml:"scale"`
	Choices  []choiceFile `yaml:"choices"`
}

type scaleFile struct {
	Min    int         `yaml:"min"`
	Max    int         `yaml:"max"`
	Labels []labelFile `yaml:"labels"`
}

type labelFile struct {
	Value int    `yaml:"value"`
	Label string `yaml:"label"`
}

type choiceFile struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

func (f assessmentFile) toModel() *models.Assessment {
	a := &models.Assessment{
		ID:          f.ID,
		Name:        f.Name,
		Category:    f.Category,
		Description: strings.TrimSpace(f.Description),
		Questions:   make([]*models.Question, 0, len(f.Questions)),
	}

	for _, qf := range f.Questions {
		q := &models.Question{
			ID:       qf.ID,
			Position: qf.Position,
			Prompt:   strings.TrimSpace(qf.Prompt),
			Type:     models.QuestionType(qf.Type),
			Domain:   strings.TrimSpace(qf.Domain),
		}
		if qf.Scale != nil {
			q.Scale = &models.ScaleOptions{Min: qf.Scale.Min, Max: qf.Scale.Max}
			for _, lbl := range qf.Scale.Labels {
				q.Scale.Labels = append(q.Scale.Labels, models.ScaleLabel{Value: lbl.Value, Label: lbl.Label})
			}
		}
		for _, c := range qf.Choices {
			q.Choices = append(q.Choices, models.Choice{Value: c.Value, Label: c.Label})
		}
		a.Questions = append(a.Questions, q)
	}

	return a
}
