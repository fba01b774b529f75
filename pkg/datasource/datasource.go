package datasource

import (
	"context"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// SnapshotSource defines the interface for fetching telemetry domains.
// Each method is an independently fetchable resource; callers poll them
// on their own cadence and tolerate per-domain failure.
type SnapshotSource interface {
	GetClusterStats(ctx context.Context) (models.ClusterSnapshot, error)
	GetPods(ctx context.Context, namespace string) ([]models.PodRecord, error)
	GetNodes(ctx context.Context) ([]models.NodeRecord, error)
	GetSavingsCandidates(ctx context.Context) ([]models.SavingsCandidate, error)
	GetEfficiencyMetrics(ctx context.Context) (models.EfficiencyMetrics, error)
	GetBudgets(ctx context.Context) ([]models.BudgetRecord, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}
