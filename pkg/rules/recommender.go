package rules

import (
	"fmt"
	"sort"

	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/scoring"
)

// Idle usage floor: below this a workload is considered idle rather
// than merely over-provisioned.
const (
	idleCPUCores  = 0.001 // <1m CPU
	idleMemoryMiB = 5.0
)

// Recommender turns raw savings candidates into classified, prioritized
// recommendations. It is stateless between calls: the same candidate
// set always produces the same recommendations with the same ids.
type Recommender struct {
	rates scoring.UnitRates
}

// NewRecommender creates a recommender priced with the given unit rates.
func NewRecommender(rates scoring.UnitRates) *Recommender {
	return &Recommender{rates: rates}
}

// Build groups candidates by workload, classifies each group, and
// emits recommendations with stable per-workload identifiers. Workloads
// with adequate utilization or negligible savings emit nothing.
func (r *Recommender) Build(candidates []models.SavingsCandidate) []models.Recommendation {
	groups := make(map[string][]models.SavingsCandidate)
	for _, c := range candidates {
		key := c.Namespace + "/" + c.Workload
		groups[key] = append(groups[key], c)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var recommendations []models.Recommendation
	for _, key := range keys {
		if rec := r.analyzeWorkload(groups[key]); rec != nil {
			recommendations = append(recommendations, *rec)
		}
	}
	return recommendations
}

func (r *Recommender) analyzeWorkload(pods []models.SavingsCandidate) *models.Recommendation {
	if len(pods) == 0 {
		return nil
	}

	var monthlySavings float64
	var effSum float64
	idle := true
	affected := make([]string, 0, len(pods))

	for _, pod := range pods {
		monthlySavings += scoring.SavingsPotential(pod, r.rates)
		effSum += scoring.PodEfficiency(pod.CPUUsage, pod.CPURequested, pod.MemoryUsage, pod.MemoryRequested)
		if pod.CPUUsage >= idleCPUCores || pod.MemoryUsage >= idleMemoryMiB {
			idle = false
		}
		affected = append(affected, pod.Namespace+"/"+pod.Name)
	}
	sort.Strings(affected)

	efficiency := effSum / float64(len(pods))
	if !scoring.OverProvisioned(efficiency) {
		return nil
	}

	annual := monthlySavings * 12
	if annual < 12 {
		// Savings too small to justify a change
		return nil
	}

	namespace := pods[0].Namespace
	workload := pods[0].Workload

	rec := &models.Recommendation{
		EstimatedAnnualSavings: annual,
		Priority:               priorityFor(annual),
		AffectedResources:      affected,
	}

	if idle {
		rec.ID = "idle-" + namespace + "-" + workload
		rec.Category = models.CategoryIdle
		rec.Title = fmt.Sprintf("Scale down idle workload %s", workload)
		rec.Description = fmt.Sprintf(
			"Workload %s/%s shows near-zero resource usage and appears idle; scaling it to zero frees $%.2f/year",
			namespace, workload, annual)
		return rec
	}

	rec.ID = "rightsize-" + namespace + "-" + workload
	rec.Category = models.CategoryRightsizing
	rec.Title = fmt.Sprintf("Right-size workload %s", workload)
	rec.Description = fmt.Sprintf(
		"Workload %s/%s runs at %.0f%% efficiency; reducing requests to match usage frees $%.2f/year",
		namespace, workload, efficiency*100, annual)
	return rec
}

// priorityFor maps estimated annual savings to a priority band.
func priorityFor(annualSavings float64) models.Priority {
	switch {
	case annualSavings > 1200:
		return models.PriorityCritical
	case annualSavings > 600:
		return models.PriorityHigh
	case annualSavings > 240:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}
