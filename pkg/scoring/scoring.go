package scoring

import (
	"math"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// OverProvisionedThreshold is the pod efficiency below which a workload
// is classified as over-provisioned.
const OverProvisionedThreshold = 0.30

// UnitRates holds the monthly cost of one resource unit.
type UnitRates struct {
	CPUPerCore   float64 // USD per core-month
	MemoryPerMiB float64 // USD per MiB-month
}

// Efficiency returns used/requested. Zero or negative requested is a
// malformed input and yields the 0 sentinel rather than Inf/NaN.
func Efficiency(used, requested float64) float64 {
	if requested <= 0 {
		return 0
	}
	eff := used / requested
	if math.IsNaN(eff) || math.IsInf(eff, 0) {
		return 0
	}
	return eff
}

// PodEfficiency combines CPU and memory efficiency as an unweighted mean.
func PodEfficiency(cpuUsed, cpuRequested, memUsed, memRequested float64) float64 {
	return (Efficiency(cpuUsed, cpuRequested) + Efficiency(memUsed, memRequested)) / 2
}

// AggregateEfficiency is the mean pod efficiency over a namespace or
// cluster. Empty input yields the 0 sentinel.
func AggregateEfficiency(efficiencies []float64) float64 {
	if len(efficiencies) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range efficiencies {
		sum += e
	}
	return sum / float64(len(efficiencies))
}

// OverProvisioned reports whether a pod efficiency falls below the
// classification threshold.
func OverProvisioned(efficiency float64) bool {
	return efficiency < OverProvisionedThreshold
}

// SavingsPotential estimates the monthly spend freed by right-sizing a
// candidate. Over-utilized resources offset the surplus; the result is
// clamped so an over-utilized pod contributes zero, never negative
// savings.
func SavingsPotential(c models.SavingsCandidate, rates UnitRates) float64 {
	savings := (c.CPURequested-c.CPUUsage)*rates.CPUPerCore +
		(c.MemoryRequested-c.MemoryUsage)*rates.MemoryPerMiB
	if savings < 0 {
		return 0
	}
	return savings
}

// BudgetPercentage returns round(spent/budget*100) clamped to [0, 100].
// A zero or negative budget is malformed and yields the 0 sentinel.
func BudgetPercentage(spent, budget float64) int {
	if budget <= 0 {
		return 0
	}
	pct := int(math.Round(spent / budget * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// BudgetStatusFor maps a used percentage to a budget status.
func BudgetStatusFor(percentageUsed int) models.BudgetStatus {
	switch {
	case percentageUsed >= 90:
		return models.BudgetCritical
	case percentageUsed >= 75:
		return models.BudgetWarning
	default:
		return models.BudgetGood
	}
}

// EfficiencyGrade maps an overall efficiency score to a letter grade.
func EfficiencyGrade(score float64) string {
	switch {
	case score >= 0.85:
		return "A"
	case score >= 0.70:
		return "B"
	case score >= 0.50:
		return "C"
	case score >= OverProvisionedThreshold:
		return "D"
	default:
		return "F"
	}
}
