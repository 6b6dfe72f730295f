package report

import (
	"fmt"
	"sort"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Policy holds the tier boundaries and retake intervals
type Policy struct {
	StrongThreshold      float64 // overall >= this is strong
	ModerateThreshold    float64 // overall >= this is moderate
	StrengthThreshold    float64 // domain >= this is a strength
	GrowthThreshold      float64 // domain < this is a growth area
	IntervalStrongDays   int
	IntervalModerateDays int
	IntervalGrowthDays   int
}

// DefaultPolicy returns the standard report policy
func DefaultPolicy() Policy {
	return Policy{
		StrongThreshold:      80,
		ModerateThreshold:    60,
		StrengthThreshold:    75,
		GrowthThreshold:      60,
		IntervalStrongDays:   90,
		IntervalModerateDays: 60,
		IntervalGrowthDays:   45,
	}
}

var summaries = map[models.SummaryTier]string{
	models.TierStrong: "Overall score %s. This is a strong result: your answers show consistent, " +
		"well-established habits across the areas assessed.",
	models.TierModerate: "Overall score %s. This is a moderate result: a solid base is in place, " +
		"with specific areas that would benefit from deliberate attention.",
	models.TierGrowthOpportunity: "Overall score %s. This result points to a clear growth opportunity: " +
		"focusing on a few areas now is likely to make a noticeable difference.",
}

const (
	recommendationTemplate = "Focus on %s: pick one concrete behavior in this area, practice it " +
		"over the coming weeks and note what changes."
	retakeTemplate = "No growth areas stood out. Keep your current practices going and retake " +
		"this assessment in %d days to confirm your progress."
)

// Synthesizer turns scores into a qualitative report. It has no side effects.
type Synthesizer struct {
	policy Policy
}

// NewSynthesizer creates a synthesizer with the given policy
func NewSynthesizer(policy Policy) *Synthesizer {
	return &Synthesizer{policy: policy}
}

// Policy returns the synthesizer's policy
func (s *Synthesizer) Policy() Policy {
	return s.policy
}

// Tier classifies an overall score. Lower bounds are inclusive.
func (s *Synthesizer) Tier(overall float64) models.SummaryTier {
	switch {
	case overall >= s.policy.StrongThreshold:
		return models.TierStrong
	case overall >= s.policy.ModerateThreshold:
		return models.TierModerate
	default:
		return models.TierGrowthOpportunity
	}
}

// Interval returns the suggested number of days before a retake
func (s *Synthesizer) Interval(tier models.SummaryTier) int {
	switch tier {
	case models.TierStrong:
		return s.policy.IntervalStrongDays
	case models.TierModerate:
		return s.policy.IntervalModerateDays
	default:
		return s.policy.IntervalGrowthDays
	}
}

type domainScore struct {
	name  string
	score float64
}

// Synthesize builds the report for an overall score and per-domain scores
func (s *Synthesizer) Synthesize(overall float64, byDomain map[string]float64) models.Report {
	tier := s.Tier(overall)
	interval := s.Interval(tier)

	var strengths, growth []domainScore
	for name, score := range byDomain {
		if score >= s.policy.StrengthThreshold {
			strengths = append(strengths, domainScore{name, score})
		}
		if score < s.policy.GrowthThreshold {
			growth = append(growth, domainScore{name, score})
		}
	}

	sort.Slice(strengths, func(i, j int) bool {
		if strengths[i].score != strengths[j].score {
			return strengths[i].score > strengths[j].score
		}
		return strengths[i].name < strengths[j].name
	})
	sort.Slice(growth, func(i, j int) bool {
		if growth[i].score != growth[j].score {
			return growth[i].score < growth[j].score
		}
		return growth[i].name < growth[j].name
	})

	report := models.Report{
		Tier:               tier,
		Summary:            fmt.Sprintf(summaries[tier], formatPercent(overall)),
		Strengths:          names(strengths),
		GrowthAreas:        names(growth),
		NextActionInterval: interval,
	}

	if len(growth) == 0 {
		report.Recommendations = []string{fmt.Sprintf(retakeTemplate, interval)}
	} else {
		report.Recommendations = make([]string, 0, len(growth))
		for _, d := range growth {
			report.Recommendations = append(report.Recommendations, fmt.Sprintf(recommendationTemplate, d.name))
		}
	}

	return report
}

func names(scores []domainScore) []string {
	out := make([]string, 0, len(scores))
	for _, d := range scores {
		out = append(out, d.name)
	}
	return out
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%g%%", v)
}
