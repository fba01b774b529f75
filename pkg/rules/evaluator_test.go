package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/opsignal/k8s-insight/pkg/models"
)

func snapshotAt(cpuUsage, cpuCap, memUsage, memCap float64) models.ClusterSnapshot {
	return models.ClusterSnapshot{
		CPUUsage:       cpuUsage,
		CPUCapacity:    cpuCap,
		MemoryUsage:    memUsage,
		MemoryCapacity: memCap,
		CollectedAt:    time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func findAlert(alerts []models.Alert, id string) *models.Alert {
	for i := range alerts {
		if alerts[i].ID == id {
			return &alerts[i]
		}
	}
	return nil
}

func TestCPUHighAlert(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)

	alerts := e.Evaluate(snapshotAt(9.0, 10, 1, 64), nil)
	alert := findAlert(alerts, "cpu-high")
	if alert == nil {
		t.Fatal("Expected cpu-high alert at 90% usage")
	}
	if alert.Severity != models.SeverityWarning {
		t.Errorf("Expected warning severity, got %s", alert.Severity)
	}
	if alert.Value != "9.0/10" {
		t.Errorf("Expected value 9.0/10, got %s", alert.Value)
	}
	if !strings.Contains(alert.Message, "90.0%") {
		t.Errorf("Expected message to name 90.0%%, got %q", alert.Message)
	}
	if alert.Kind != models.KindHealth {
		t.Errorf("Expected health kind, got %s", alert.Kind)
	}
}

func TestCPUHighNotRaisedAtThreshold(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)

	// Exactly at threshold does not fire; strictly above does
	alerts := e.Evaluate(snapshotAt(8.0, 10, 1, 64), nil)
	if findAlert(alerts, "cpu-high") != nil {
		t.Error("cpu-high fired at exactly 80%")
	}

	alerts = e.Evaluate(snapshotAt(8.01, 10, 1, 64), nil)
	if findAlert(alerts, "cpu-high") == nil {
		t.Error("cpu-high did not fire just above 80%")
	}
}

func TestMemHighAlert(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)

	alerts := e.Evaluate(snapshotAt(1, 10, 60, 64), nil)
	alert := findAlert(alerts, "mem-high")
	if alert == nil {
		t.Fatal("Expected mem-high alert")
	}
	if alert.Value != "60.0/64" {
		t.Errorf("Expected value 60.0/64, got %s", alert.Value)
	}
}

func TestPodFailuresAlert(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)

	pods := []models.PodRecord{
		{Name: "a", Status: models.PodRunning},
		{Name: "b", Status: models.PodFailed},
		{Name: "c", Status: models.PodPending},
		{Name: "d", Status: models.PodFailed},
	}
	alerts := e.Evaluate(snapshotAt(1, 10, 1, 64), pods)
	alert := findAlert(alerts, "pod-failures")
	if alert == nil {
		t.Fatal("Expected pod-failures alert")
	}
	if alert.Value != "3" {
		t.Errorf("Expected 3 non-running pods, got %s", alert.Value)
	}
	if alert.Severity != models.SeverityHigh {
		t.Errorf("Expected high severity, got %s", alert.Severity)
	}
}

func TestPodRestartsAlert(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)

	pods := []models.PodRecord{
		{Name: "a", Status: models.PodRunning, RestartCount: 3},
		{Name: "b", Status: models.PodRunning, RestartCount: 4},
		{Name: "c", Status: models.PodRunning, RestartCount: 12},
	}
	alerts := e.Evaluate(snapshotAt(1, 10, 1, 64), pods)
	alert := findAlert(alerts, "pod-restarts")
	if alert == nil {
		t.Fatal("Expected pod-restarts alert")
	}
	// Threshold is exclusive: exactly 3 restarts does not count
	if alert.Value != "2" {
		t.Errorf("Expected 2 crash-looping pods, got %s", alert.Value)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)
	snap := snapshotAt(9.5, 10, 62, 64)
	pods := []models.PodRecord{{Name: "a", Status: models.PodFailed}}

	first := e.Evaluate(snap, pods)
	second := e.Evaluate(snap, pods)
	if len(first) != len(second) {
		t.Fatalf("Alert count changed between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Alert %d differs between identical evaluations", i)
		}
	}
}

func TestHealthySnapshotProducesNoAlerts(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)
	pods := []models.PodRecord{{Name: "a", Status: models.PodRunning}}

	alerts := e.Evaluate(snapshotAt(2, 10, 20, 64), pods)
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts for healthy snapshot, got %d", len(alerts))
	}
}

func TestEvaluateBudgets(t *testing.T) {
	snap := snapshotAt(1, 10, 1, 64)
	budgets := []models.BudgetRecord{
		{Namespace: "prod", PercentageUsed: 95, Status: models.BudgetCritical},
		{Namespace: "staging", PercentageUsed: 80, Status: models.BudgetWarning},
		{Namespace: "dev", PercentageUsed: 20, Status: models.BudgetGood},
	}

	alerts := EvaluateBudgets(snap, budgets)
	if len(alerts) != 2 {
		t.Fatalf("Expected 2 budget alerts, got %d", len(alerts))
	}

	prod := findAlert(alerts, "budget-prod")
	if prod == nil {
		t.Fatal("Expected budget-prod alert")
	}
	if prod.Severity != models.SeverityCritical {
		t.Errorf("Expected critical severity, got %s", prod.Severity)
	}
	if prod.Namespace != "prod" {
		t.Errorf("Expected namespace prod, got %s", prod.Namespace)
	}

	staging := findAlert(alerts, "budget-staging")
	if staging == nil || staging.Severity != models.SeverityWarning {
		t.Error("Expected budget-staging at warning severity")
	}

	if findAlert(alerts, "budget-dev") != nil {
		t.Error("Budget within limits raised an alert")
	}
}

func TestEvaluateEfficiency(t *testing.T) {
	snap := snapshotAt(1, 10, 1, 64)

	alerts := EvaluateEfficiency(snap, models.EfficiencyMetrics{OverallScore: 0.2, Grade: "F"})
	if findAlert(alerts, "low-efficiency") == nil {
		t.Fatal("Expected low-efficiency alert at score 0.2")
	}

	alerts = EvaluateEfficiency(snap, models.EfficiencyMetrics{OverallScore: 0.3, Grade: "D"})
	if len(alerts) != 0 {
		t.Error("low-efficiency fired at exactly the threshold")
	}
}

func TestPanickingRuleIsIsolated(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), nil)

	panicking := func(models.ClusterSnapshot, []models.PodRecord) []models.Alert {
		panic("boom")
	}
	out := e.runRule("test-rule", panicking, snapshotAt(1, 10, 1, 64), nil)
	if out != nil {
		t.Errorf("Expected nil output from panicking rule, got %v", out)
	}

	// The rest of the evaluation still works afterwards
	alerts := e.Evaluate(snapshotAt(9, 10, 1, 64), nil)
	if findAlert(alerts, "cpu-high") == nil {
		t.Error("Evaluation broken after isolated panic")
	}
}
