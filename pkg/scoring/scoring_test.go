package scoring

import (
	"testing"

	"github.com/opsignal/k8s-insight/pkg/models"
)

func TestEfficiency(t *testing.T) {
	if eff := Efficiency(0.5, 2.0); eff != 0.25 {
		t.Errorf("Expected 0.25, got %.2f", eff)
	}

	// Zero requested is malformed input, not division by zero
	if eff := Efficiency(0.5, 0); eff != 0 {
		t.Errorf("Expected 0 sentinel for zero requested, got %.2f", eff)
	}

	if eff := Efficiency(0.5, -1); eff != 0 {
		t.Errorf("Expected 0 sentinel for negative requested, got %.2f", eff)
	}

	if eff := Efficiency(0, 2.0); eff != 0 {
		t.Errorf("Expected 0 for zero usage, got %.2f", eff)
	}
}

func TestPodEfficiency(t *testing.T) {
	// CPU at 20%, memory at ~19.5%
	eff := PodEfficiency(0.4, 2.0, 200, 1024)
	if eff >= OverProvisionedThreshold {
		t.Errorf("Expected pod below threshold, got %.3f", eff)
	}
	if !OverProvisioned(eff) {
		t.Error("Expected pod classified as over-provisioned")
	}

	eff = PodEfficiency(1.6, 2.0, 900, 1024)
	if OverProvisioned(eff) {
		t.Errorf("Well-utilized pod classified as over-provisioned (%.3f)", eff)
	}
}

func TestAggregateEfficiency(t *testing.T) {
	if agg := AggregateEfficiency(nil); agg != 0 {
		t.Errorf("Expected 0 for empty input, got %.2f", agg)
	}
	if agg := AggregateEfficiency([]float64{0.2, 0.4, 0.6}); agg < 0.399 || agg > 0.401 {
		t.Errorf("Expected 0.4, got %.3f", agg)
	}
}

func TestSavingsPotential(t *testing.T) {
	rates := UnitRates{CPUPerCore: 23.0, MemoryPerMiB: 3.0 / 1024}

	candidate := models.SavingsCandidate{
		CPURequested:    2.0,
		CPUUsage:        0.4,
		MemoryRequested: 1024,
		MemoryUsage:     200,
	}
	savings := SavingsPotential(candidate, rates)
	if savings <= 0 {
		t.Errorf("Expected positive savings, got %.2f", savings)
	}

	// 1.6 cores + 824 MiB surplus
	expected := 1.6*23.0 + 824*3.0/1024
	if savings < expected-0.01 || savings > expected+0.01 {
		t.Errorf("Expected %.2f, got %.2f", expected, savings)
	}
}

func TestSavingsPotentialNeverNegative(t *testing.T) {
	rates := UnitRates{CPUPerCore: 23.0, MemoryPerMiB: 3.0 / 1024}

	// Over-utilized on both axes
	candidate := models.SavingsCandidate{
		CPURequested:    1.0,
		CPUUsage:        2.0,
		MemoryRequested: 512,
		MemoryUsage:     1024,
	}
	if savings := SavingsPotential(candidate, rates); savings != 0 {
		t.Errorf("Expected 0 for over-utilized pod, got %.2f", savings)
	}

	// Memory overrun larger than CPU surplus
	candidate = models.SavingsCandidate{
		CPURequested:    1.0,
		CPUUsage:        0.9,
		MemoryRequested: 512,
		MemoryUsage:     4096,
	}
	if savings := SavingsPotential(candidate, rates); savings < 0 {
		t.Errorf("Savings went negative: %.2f", savings)
	}
}

func TestBudgetPercentage(t *testing.T) {
	if pct := BudgetPercentage(4750, 5000); pct != 95 {
		t.Errorf("Expected 95, got %d", pct)
	}
	if pct := BudgetPercentage(6000, 5000); pct != 100 {
		t.Errorf("Expected clamp to 100, got %d", pct)
	}
	if pct := BudgetPercentage(100, 0); pct != 0 {
		t.Errorf("Expected 0 sentinel for zero budget, got %d", pct)
	}
	if pct := BudgetPercentage(374, 1000); pct != 37 {
		t.Errorf("Expected 37, got %d", pct)
	}
	if pct := BudgetPercentage(375, 1000); pct != 38 {
		t.Errorf("Expected rounding to 38, got %d", pct)
	}
}

func TestBudgetStatusFor(t *testing.T) {
	cases := []struct {
		pct      int
		expected models.BudgetStatus
	}{
		{0, models.BudgetGood},
		{74, models.BudgetGood},
		{75, models.BudgetWarning},
		{89, models.BudgetWarning},
		{90, models.BudgetCritical},
		{100, models.BudgetCritical},
	}
	for _, c := range cases {
		if status := BudgetStatusFor(c.pct); status != c.expected {
			t.Errorf("BudgetStatusFor(%d): expected %s, got %s", c.pct, c.expected, status)
		}
	}
}

func TestEfficiencyGrade(t *testing.T) {
	cases := []struct {
		score    float64
		expected string
	}{
		{0.90, "A"},
		{0.85, "A"},
		{0.75, "B"},
		{0.55, "C"},
		{0.35, "D"},
		{0.30, "D"},
		{0.10, "F"},
	}
	for _, c := range cases {
		if grade := EfficiencyGrade(c.score); grade != c.expected {
			t.Errorf("EfficiencyGrade(%.2f): expected %s, got %s", c.score, c.expected, grade)
		}
	}
}
