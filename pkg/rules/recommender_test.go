package rules

import (
	"testing"

	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/scoring"
)

var testRates = scoring.UnitRates{CPUPerCore: 23.0, MemoryPerMiB: 3.0 / 1024}

func TestBuildRightsizingRecommendation(t *testing.T) {
	r := NewRecommender(testRates)

	candidates := []models.SavingsCandidate{
		{
			Name: "web-abc", Namespace: "prod", Workload: "web",
			CPURequested: 2.0, CPUUsage: 0.4,
			MemoryRequested: 2048, MemoryUsage: 300,
		},
		{
			Name: "web-def", Namespace: "prod", Workload: "web",
			CPURequested: 2.0, CPUUsage: 0.3,
			MemoryRequested: 2048, MemoryUsage: 250,
		},
	}

	recs := r.Build(candidates)
	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation, got %d", len(recs))
	}

	rec := recs[0]
	if rec.ID != "rightsize-prod-web" {
		t.Errorf("Expected id rightsize-prod-web, got %s", rec.ID)
	}
	if rec.Category != models.CategoryRightsizing {
		t.Errorf("Expected rightsizing category, got %s", rec.Category)
	}
	if rec.EstimatedAnnualSavings <= 0 {
		t.Errorf("Expected positive savings, got %.2f", rec.EstimatedAnnualSavings)
	}
	if len(rec.AffectedResources) != 2 {
		t.Errorf("Expected 2 affected pods, got %d", len(rec.AffectedResources))
	}
}

func TestBuildIdleRecommendation(t *testing.T) {
	r := NewRecommender(testRates)

	candidates := []models.SavingsCandidate{
		{
			Name: "batch-xyz", Namespace: "jobs", Workload: "batch",
			CPURequested: 4.0, CPUUsage: 0.0,
			MemoryRequested: 4096, MemoryUsage: 2,
		},
	}

	recs := r.Build(candidates)
	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation, got %d", len(recs))
	}
	if recs[0].ID != "idle-jobs-batch" {
		t.Errorf("Expected idle id, got %s", recs[0].ID)
	}
	if recs[0].Category != models.CategoryIdle {
		t.Errorf("Expected idle category, got %s", recs[0].Category)
	}
}

func TestBuildSkipsWellUtilizedWorkloads(t *testing.T) {
	r := NewRecommender(testRates)

	candidates := []models.SavingsCandidate{
		{
			Name: "api-1", Namespace: "prod", Workload: "api",
			CPURequested: 2.0, CPUUsage: 1.8,
			MemoryRequested: 1024, MemoryUsage: 900,
		},
	}
	if recs := r.Build(candidates); len(recs) != 0 {
		t.Errorf("Well-utilized workload produced %d recommendations", len(recs))
	}
}

func TestBuildSkipsNegligibleSavings(t *testing.T) {
	// Tiny surplus: over-provisioned but under a dollar a month
	r := NewRecommender(scoring.UnitRates{CPUPerCore: 0.1, MemoryPerMiB: 0.0001})

	candidates := []models.SavingsCandidate{
		{
			Name: "tiny-1", Namespace: "dev", Workload: "tiny",
			CPURequested: 0.5, CPUUsage: 0.05,
			MemoryRequested: 128, MemoryUsage: 10,
		},
	}
	if recs := r.Build(candidates); len(recs) != 0 {
		t.Errorf("Negligible savings produced %d recommendations", len(recs))
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	r := NewRecommender(testRates)

	candidates := []models.SavingsCandidate{
		{Name: "b-1", Namespace: "ns2", Workload: "b", CPURequested: 2, CPUUsage: 0.1, MemoryRequested: 2048, MemoryUsage: 100},
		{Name: "a-1", Namespace: "ns1", Workload: "a", CPURequested: 2, CPUUsage: 0.1, MemoryRequested: 2048, MemoryUsage: 100},
	}

	first := r.Build(candidates)
	second := r.Build(candidates)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("Expected 2 recommendations, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID || first[1].ID != second[1].ID {
		t.Error("Recommendation order differs between identical builds")
	}
}

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		annual   float64
		expected models.Priority
	}{
		{100, models.PriorityLow},
		{500, models.PriorityMedium},
		{1000, models.PriorityHigh},
		{5000, models.PriorityCritical},
	}
	for _, c := range cases {
		if p := priorityFor(c.annual); p != c.expected {
			t.Errorf("priorityFor(%.0f): expected %s, got %s", c.annual, c.expected, p)
		}
	}
}
