package models

// RecommendationCategory groups related recommendations.
type RecommendationCategory string

const (
	CategoryRightsizing   RecommendationCategory = "rightsizing"
	CategoryIdle          RecommendationCategory = "idle"
	CategoryConsolidation RecommendationCategory = "consolidation"
	CategoryScaling       RecommendationCategory = "scaling"
)

// Priority indicates how urgently a recommendation should be acted on.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Recommendation is an actionable savings suggestion. Like alerts,
// the ID is stable across evaluation cycles for the same workload.
type Recommendation struct {
	ID          string
	Title       string
	Description string
	Category    RecommendationCategory

	// USD per year, never negative
	EstimatedAnnualSavings float64

	Priority          Priority
	AffectedResources []string
	Implemented       bool
}
