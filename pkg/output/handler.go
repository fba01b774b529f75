package output

import (
	"context"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// Handler defines the interface for output formatting
type Handler interface {
	DisplayAlerts(ctx context.Context, alerts []models.Alert) error
	DisplayRecommendations(ctx context.Context, recommendations []models.Recommendation) error
	DisplaySummary(ctx context.Context, summary models.Summary) error
	Format() string
}

// New returns the handler for the requested format, defaulting to text.
func New(format string) Handler {
	if format == "json" {
		return &JSONHandler{}
	}
	return &TextHandler{}
}
