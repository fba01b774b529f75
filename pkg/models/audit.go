package models

import "time"

// AuditEntry records an action taken on a recommendation.
type AuditEntry struct {
	ID               string
	RecommendationID string
	Action           string // IMPLEMENTED, DISMISSED
	ExecutedAt       time.Time
}
