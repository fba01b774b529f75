package storage

import (
	"context"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// Store defines the interface for the optional recommendation history.
// The engine's working set is process-local and rebuilt from the
// snapshot source on restart; history only records what was suggested
// and what was acted on.
type Store interface {
	SaveRecommendation(ctx context.Context, rec *models.Recommendation) error
	ListRecommendations(ctx context.Context, limit int) ([]*models.Recommendation, error)

	LogAction(ctx context.Context, entry *models.AuditEntry) error
	GetAuditLog(ctx context.Context, recommendationID string) ([]*models.AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
