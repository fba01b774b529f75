package output

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// TextHandler renders aligned terminal tables.
type TextHandler struct{}

func (h *TextHandler) Format() string { return "text" }

func (h *TextHandler) DisplayAlerts(_ context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		fmt.Println("No active alerts")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tKIND\tVALUE\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Severity, a.Kind, a.Value, a.Message)
	}
	return w.Flush()
}

func (h *TextHandler) DisplayRecommendations(_ context.Context, recommendations []models.Recommendation) error {
	if len(recommendations) == 0 {
		fmt.Println("No recommendations")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tCATEGORY\tSAVINGS/YR\tTITLE")
	for _, rec := range recommendations {
		fmt.Fprintf(w, "%s\t%s\t%s\t$%.2f\t%s\n",
			rec.ID, rec.Priority, rec.Category, rec.EstimatedAnnualSavings, rec.Title)
	}
	return w.Flush()
}

func (h *TextHandler) DisplaySummary(_ context.Context, summary models.Summary) error {
	fmt.Printf("Alerts: %d total, %d unread, %d critical\n",
		summary.TotalAlerts, summary.UnreadCount, summary.CriticalCount)
	fmt.Printf("Potential savings: $%.2f/year\n", summary.TotalPotentialSavings)
	return nil
}
