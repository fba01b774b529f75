package rules

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/scoring"
)

// Thresholds holds the tunable trigger points for alert rules.
type Thresholds struct {
	CPUHighRatio     float64 // usage/capacity ratio above which cpu-high fires
	MemHighRatio     float64
	RestartThreshold int // restarts above which a pod counts as crash-looping
}

// DefaultThresholds returns the standard rule configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUHighRatio:     0.8,
		MemHighRatio:     0.8,
		RestartThreshold: 3,
	}
}

// Evaluator maps a snapshot to a candidate alert set. Evaluation is
// deterministic and side-effect free: the same inputs always yield the
// same alerts with the same stable identifiers.
type Evaluator struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(thresholds Thresholds, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{thresholds: thresholds, logger: logger}
}

type ruleFunc func(models.ClusterSnapshot, []models.PodRecord) []models.Alert

// Evaluate runs every alert rule against the snapshot and pod
// population. Rules are independent and order-insensitive; a rule whose
// condition does not hold emits nothing for its identifier. A panicking
// rule is isolated: its output is skipped for the cycle and the
// remaining rules still run.
func (e *Evaluator) Evaluate(snap models.ClusterSnapshot, pods []models.PodRecord) []models.Alert {
	rules := []struct {
		name string
		fn   ruleFunc
	}{
		{"cpu-high", e.cpuHigh},
		{"mem-high", e.memHigh},
		{"pod-failures", e.podFailures},
		{"pod-restarts", e.podRestarts},
	}

	var alerts []models.Alert
	for _, rule := range rules {
		alerts = append(alerts, e.runRule(rule.name, rule.fn, snap, pods)...)
	}
	return alerts
}

// runRule isolates a single rule so one failure cannot suppress
// unrelated alerts.
func (e *Evaluator) runRule(name string, fn ruleFunc, snap models.ClusterSnapshot, pods []models.PodRecord) (out []models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation failed, skipping for this cycle",
				slog.String("rule", name), slog.Any("panic", r))
			out = nil
		}
	}()
	return fn(snap, pods)
}

func (e *Evaluator) cpuHigh(snap models.ClusterSnapshot, _ []models.PodRecord) []models.Alert {
	if snap.CPUCapacity <= 0 || snap.CPUUsage <= e.thresholds.CPUHighRatio*snap.CPUCapacity {
		return nil
	}
	pct := snap.CPUUsage / snap.CPUCapacity * 100
	return []models.Alert{{
		ID:         "cpu-high",
		Kind:       models.KindHealth,
		Severity:   models.SeverityWarning,
		Title:      "High CPU usage",
		Message:    fmt.Sprintf("Cluster CPU usage at %.1f%% of capacity", pct),
		Value:      formatUsage(snap.CPUUsage, snap.CPUCapacity),
		ObservedAt: snap.CollectedAt,
		Lifecycle:  models.LifecycleUnread,
	}}
}

func (e *Evaluator) memHigh(snap models.ClusterSnapshot, _ []models.PodRecord) []models.Alert {
	if snap.MemoryCapacity <= 0 || snap.MemoryUsage <= e.thresholds.MemHighRatio*snap.MemoryCapacity {
		return nil
	}
	pct := snap.MemoryUsage / snap.MemoryCapacity * 100
	return []models.Alert{{
		ID:         "mem-high",
		Kind:       models.KindHealth,
		Severity:   models.SeverityWarning,
		Title:      "High memory usage",
		Message:    fmt.Sprintf("Cluster memory usage at %.1f%% of capacity", pct),
		Value:      formatUsage(snap.MemoryUsage, snap.MemoryCapacity),
		ObservedAt: snap.CollectedAt,
		Lifecycle:  models.LifecycleUnread,
	}}
}

func (e *Evaluator) podFailures(snap models.ClusterSnapshot, pods []models.PodRecord) []models.Alert {
	count := 0
	for _, pod := range pods {
		if pod.Status != models.PodRunning {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return []models.Alert{{
		ID:         "pod-failures",
		Kind:       models.KindHealth,
		Severity:   models.SeverityHigh,
		Title:      "Pods not running",
		Message:    fmt.Sprintf("%d pods are not in Running state", count),
		Value:      strconv.Itoa(count),
		ObservedAt: snap.CollectedAt,
		Lifecycle:  models.LifecycleUnread,
	}}
}

func (e *Evaluator) podRestarts(snap models.ClusterSnapshot, pods []models.PodRecord) []models.Alert {
	count := 0
	for _, pod := range pods {
		if pod.RestartCount > e.thresholds.RestartThreshold {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return []models.Alert{{
		ID:         "pod-restarts",
		Kind:       models.KindHealth,
		Severity:   models.SeverityWarning,
		Title:      "Crash-looping pods",
		Message:    fmt.Sprintf("%d pods restarted more than %d times", count, e.thresholds.RestartThreshold),
		Value:      strconv.Itoa(count),
		ObservedAt: snap.CollectedAt,
		Lifecycle:  models.LifecycleUnread,
	}}
}

// EvaluateBudgets raises one budget alert per namespace at warning or
// critical spend. The identifier embeds the namespace, so each
// namespace maps to exactly one store entry across cycles.
func EvaluateBudgets(snap models.ClusterSnapshot, budgets []models.BudgetRecord) []models.Alert {
	var alerts []models.Alert
	for _, b := range budgets {
		var severity models.Severity
		switch b.Status {
		case models.BudgetCritical:
			severity = models.SeverityCritical
		case models.BudgetWarning:
			severity = models.SeverityWarning
		default:
			continue
		}
		alerts = append(alerts, models.Alert{
			ID:         "budget-" + b.Namespace,
			Kind:       models.KindBudget,
			Severity:   severity,
			Title:      "Budget threshold exceeded",
			Message:    fmt.Sprintf("Namespace %s has used %d%% of its budget", b.Namespace, b.PercentageUsed),
			Namespace:  b.Namespace,
			Value:      strconv.Itoa(b.PercentageUsed) + "%",
			ObservedAt: snap.CollectedAt,
			Lifecycle:  models.LifecycleUnread,
		})
	}
	return alerts
}

// EvaluateEfficiency raises a single low-efficiency alert when the
// cluster-wide score falls below the over-provisioning threshold.
func EvaluateEfficiency(snap models.ClusterSnapshot, eff models.EfficiencyMetrics) []models.Alert {
	if eff.OverallScore >= scoring.OverProvisionedThreshold {
		return nil
	}
	return []models.Alert{{
		ID:         "low-efficiency",
		Kind:       models.KindEfficiency,
		Severity:   models.SeverityWarning,
		Title:      "Low cluster efficiency",
		Message:    fmt.Sprintf("Overall resource efficiency at %.1f%% (grade %s)", eff.OverallScore*100, eff.Grade),
		Value:      fmt.Sprintf("%.2f", eff.OverallScore),
		ObservedAt: snap.CollectedAt,
		Lifecycle:  models.LifecycleUnread,
	}}
}

// formatUsage renders "9.0/10" style usage-over-capacity values.
func formatUsage(usage, capacity float64) string {
	return fmt.Sprintf("%.1f/%s", usage, strconv.FormatFloat(capacity, 'f', -1, 64))
}
