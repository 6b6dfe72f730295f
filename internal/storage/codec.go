package storage

import (
	"encoding/json"
	"fmt"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// resultColumns holds the JSON-encoded columns of a result row
type resultColumns struct {
	domainScores    []byte
	strengths       []byte
	growthAreas     []byte
	recommendations []byte
}

func encodeResult(res *models.Result) (*resultColumns, error) {
	var cols resultColumns
	var err error

	byDomain := res.ByDomain
	if byDomain == nil {
		byDomain = map[string]float64{}
	}
	if cols.domainScores, err = json.Marshal(byDomain); err != nil {
		return nil, fmt.Errorf("failed to marshal domain scores: %w", err)
	}
	if cols.strengths, err = json.Marshal(nonNil(res.Strengths)); err != nil {
		return nil, fmt.Errorf("failed to marshal strengths: %w", err)
	}
	if cols.growthAreas, err = json.Marshal(nonNil(res.GrowthAreas)); err != nil {
		return nil, fmt.Errorf("failed to marshal growth areas: %w", err)
	}
	if cols.recommendations, err = json.Marshal(nonNil(res.Recommendations)); err != nil {
		return nil, fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	return &cols, nil
}

func (cols *resultColumns) decodeInto(res *models.Result) error {
	if err := json.Unmarshal(cols.domainScores, &res.ByDomain); err != nil {
		return fmt.Errorf("failed to unmarshal domain scores: %w", err)
	}
	if err := json.Unmarshal(cols.strengths, &res.Strengths); err != nil {
		return fmt.Errorf("failed to unmarshal strengths: %w", err)
	}
	if err := json.Unmarshal(cols.growthAreas, &res.GrowthAreas); err != nil {
		return fmt.Errorf("failed to unmarshal growth areas: %w", err)
	}
	if err := json.Unmarshal(cols.recommendations, &res.Recommendations); err != nil {
		return fmt.Errorf("failed to unmarshal recommendations: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
