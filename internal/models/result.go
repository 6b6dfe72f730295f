package models

import "time"

// SummaryTier classifies the overall score for the executive summary
type SummaryTier string

const (
	TierStrong            SummaryTier = "strong"
	TierModerate          SummaryTier = "moderate"
	TierGrowthOpportunity SummaryTier = "growth_opportunity"
)

// Scores is the output of the scoring engine
type Scores struct {
	Overall  float64            `json:"overall"`
	ByDomain map[string]float64 `json:"by_domain"`
}

// Report is the qualitative interpretation of a set of scores
type Report struct {
	Tier               SummaryTier `json:"summary_tier"`
	Summary            string      `json:"executive_summary"`
	Strengths          []string    `json:"strengths"`
	GrowthAreas        []string    `json:"growth_areas"`
	Recommendations    []string    `json:"recommendations"`
	NextActionInterval int         `json:"next_action_interval_days"`
}

// Result belongs to exactly one completed session and is written once
type Result struct {
	SessionID    string             `json:"session_id"`
	AssessmentID string             `json:"assessment_id"`
	UserID       string             `json:"user_id"`
	Overall      float64            `json:"overall_score"`
	ByDomain     map[string]float64 `json:"domain_scores"`
	Report
	CreatedAt time.Time `json:"created_at"`
}

// NextActionAt returns the suggested retake date
func (r *Result) NextActionAt() time.Time {
	return r.CreatedAt.AddDate(0, 0, r.NextActionInterval)
}
