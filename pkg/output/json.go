package output

import (
	"context"
	"encoding/json"
	"os"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// JSONHandler writes machine-readable output for piping into jq or
// dashboards.
type JSONHandler struct{}

func (h *JSONHandler) Format() string { return "json" }

func (h *JSONHandler) DisplayAlerts(_ context.Context, alerts []models.Alert) error {
	return encode(map[string]any{"alerts": alerts})
}

func (h *JSONHandler) DisplayRecommendations(_ context.Context, recommendations []models.Recommendation) error {
	return encode(map[string]any{"recommendations": recommendations})
}

func (h *JSONHandler) DisplaySummary(_ context.Context, summary models.Summary) error {
	return encode(summary)
}

func encode(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
