package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsignal/k8s-insight/pkg/datasource"
	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/poller"
	"github.com/opsignal/k8s-insight/pkg/rules"
	"github.com/opsignal/k8s-insight/pkg/scoring"
	"github.com/opsignal/k8s-insight/pkg/store"
)

// fakeHistory is an in-memory storage.Store for audit assertions.
type fakeHistory struct {
	mu      sync.Mutex
	saved   []*models.Recommendation
	actions []*models.AuditEntry
	fail    bool
}

func (f *fakeHistory) SaveRecommendation(_ context.Context, rec *models.Recommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeHistory) ListRecommendations(context.Context, int) ([]*models.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Recommendation(nil), f.saved...), nil
}

func (f *fakeHistory) LogAction(_ context.Context, entry *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.actions = append(f.actions, entry)
	return nil
}

func (f *fakeHistory) GetAuditLog(context.Context, string) ([]*models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.AuditEntry(nil), f.actions...), nil
}

func (f *fakeHistory) Ping(context.Context) error { return nil }
func (f *fakeHistory) Close() error               { return nil }

var testRates = scoring.UnitRates{CPUPerCore: 23.0, MemoryPerMiB: 3.0 / 1024}

func unhealthyData() datasource.StaticData {
	return datasource.StaticData{
		Stats: models.ClusterSnapshot{
			CPUUsage: 9.0, CPUCapacity: 10,
			MemoryUsage: 20, MemoryCapacity: 64,
			CollectedAt: time.Now(),
		},
		Pods: []models.PodRecord{
			{Name: "web-1", Namespace: "prod", Status: models.PodRunning, CPULimitSet: true, MemoryRequestSet: true},
			{Name: "job-1", Namespace: "jobs", Status: models.PodFailed},
		},
		Candidates: []models.SavingsCandidate{
			{
				Name: "web-1", Namespace: "prod", Workload: "web",
				CPURequested: 2.0, CPUUsage: 0.4,
				MemoryRequested: 2048, MemoryUsage: 300,
			},
		},
		Efficiency: models.EfficiencyMetrics{OverallScore: 0.2, Grade: "F"},
		Budgets: []models.BudgetRecord{
			{Namespace: "prod", PercentageUsed: 95, Status: models.BudgetCritical},
		},
	}
}

func newTestEngine(source datasource.SnapshotSource, history *fakeHistory) *Engine {
	opts := Options{
		Thresholds: rules.DefaultThresholds(),
		Rates:      testRates,
	}
	if history != nil {
		opts.History = history
	}
	return New(source, opts)
}

func TestFullCycle(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	eng := newTestEngine(source, nil)
	eng.Start()
	defer eng.Stop()

	require.NoError(t, eng.RefreshNow(context.Background()))

	alerts := eng.ListAlerts("")
	ids := make(map[string]models.Alert)
	for _, a := range alerts {
		ids[a.ID] = a
	}
	assert.Contains(t, ids, "cpu-high")
	assert.Contains(t, ids, "pod-failures")
	assert.Contains(t, ids, "budget-prod")
	assert.Contains(t, ids, "low-efficiency")
	assert.NotContains(t, ids, "mem-high")

	recs := eng.ListRecommendations(store.RecommendationFilter{})
	require.Len(t, recs, 1)
	assert.Equal(t, "rightsize-prod-web", recs[0].ID)

	budgets := eng.Budgets()
	require.Len(t, budgets, 1)
	assert.Equal(t, "prod", budgets[0].Namespace)

	policies := eng.Policies()
	require.NotEmpty(t, policies)
	for _, p := range policies {
		if p.ID == rules.PolicyCPULimitMissing {
			assert.Equal(t, 1, p.ViolationCount)
		}
	}

	summary := eng.Summary()
	assert.Equal(t, len(alerts), summary.TotalAlerts)
	assert.Positive(t, summary.TotalPotentialSavings)
}

func TestNoEfficiencyAlertBeforeFirstFetch(t *testing.T) {
	data := unhealthyData()
	source := datasource.NewStaticSource(data)
	// Efficiency never fetched successfully: the zero score must not be
	// mistaken for a real reading.
	source.FailDomain("efficiency", errors.New("not ready"))

	eng := newTestEngine(source, nil)
	eng.Start()
	defer eng.Stop()

	_ = eng.RefreshNow(context.Background())

	for _, a := range eng.ListAlerts("") {
		assert.NotEqual(t, "low-efficiency", a.ID)
	}

	// Once the domain recovers, the alert appears
	source.FailDomain("efficiency", nil)
	require.NoError(t, eng.RefreshNow(context.Background()))
	found := false
	for _, a := range eng.ListAlerts("") {
		if a.ID == "low-efficiency" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConditionClearedOnNextCycle(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	eng := newTestEngine(source, nil)
	eng.Start()
	defer eng.Stop()

	require.NoError(t, eng.RefreshNow(context.Background()))
	require.NotEmpty(t, eng.ListAlerts(""))

	healthy := unhealthyData()
	healthy.Stats.CPUUsage = 2.0
	healthy.Pods = []models.PodRecord{
		{Name: "web-1", Namespace: "prod", Status: models.PodRunning, CPULimitSet: true, MemoryRequestSet: true},
	}
	healthy.Budgets = []models.BudgetRecord{{Namespace: "prod", PercentageUsed: 20, Status: models.BudgetGood}}
	healthy.Efficiency = models.EfficiencyMetrics{OverallScore: 0.8, Grade: "B"}
	healthy.Candidates = nil
	source.SetData(healthy)

	require.NoError(t, eng.RefreshNow(context.Background()))
	assert.Empty(t, eng.ListAlerts(""))
	assert.Empty(t, eng.ListRecommendations(store.RecommendationFilter{}))
}

func TestDomainHealthReportsFailures(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	source.FailDomain("pods", errors.New("apiserver timeout"))

	eng := newTestEngine(source, nil)
	eng.Start()
	defer eng.Stop()
	_ = eng.RefreshNow(context.Background())

	statuses := eng.DomainHealth()
	require.Len(t, statuses, 6)
	byDomain := make(map[poller.Domain]DomainStatus)
	for _, s := range statuses {
		byDomain[s.Domain] = s
	}
	assert.NotEmpty(t, byDomain[poller.DomainPods].Error)
	assert.Empty(t, byDomain[poller.DomainCluster].Error)
	assert.False(t, byDomain[poller.DomainCluster].LastUpdated.IsZero())
}

func TestHistoryRecordsNewRecommendationsOnce(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	history := &fakeHistory{}
	eng := newTestEngine(source, history)
	eng.Start()
	defer eng.Stop()

	require.NoError(t, eng.RefreshNow(context.Background()))
	require.NoError(t, eng.RefreshNow(context.Background()))

	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.saved, 1)
	assert.Equal(t, "rightsize-prod-web", history.saved[0].ID)
}

func TestImplementAndDismissAudit(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	history := &fakeHistory{}
	eng := newTestEngine(source, history)
	eng.Start()
	defer eng.Stop()
	require.NoError(t, eng.RefreshNow(context.Background()))

	require.True(t, eng.Implement("rightsize-prod-web"))
	assert.False(t, eng.Implement("missing"))
	require.True(t, eng.DismissRecommendation("rightsize-prod-web"))

	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.actions, 2)
	assert.Equal(t, "IMPLEMENTED", history.actions[0].Action)
	assert.Equal(t, "DISMISSED", history.actions[1].Action)
}

func TestHistoryFailureDoesNotBreakCycle(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	history := &fakeHistory{fail: true}
	eng := newTestEngine(source, history)
	eng.Start()
	defer eng.Stop()

	require.NoError(t, eng.RefreshNow(context.Background()))
	// The working set is intact despite persistence failures
	assert.NotEmpty(t, eng.ListRecommendations(store.RecommendationFilter{}))
	assert.True(t, eng.Implement("rightsize-prod-web"))
}

func TestMarkReadAndDismissAlert(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	eng := newTestEngine(source, nil)
	eng.Start()
	defer eng.Stop()
	require.NoError(t, eng.RefreshNow(context.Background()))

	require.True(t, eng.MarkRead("cpu-high"))
	assert.False(t, eng.MarkRead("cpu-high"))

	// Read status survives the next cycle while the condition holds
	require.NoError(t, eng.RefreshNow(context.Background()))
	for _, a := range eng.ListAlerts("") {
		if a.ID == "cpu-high" {
			assert.Equal(t, models.LifecycleRead, a.Lifecycle)
		}
	}

	require.True(t, eng.Dismiss("pod-failures"))
	// Dismissal is not sticky: the condition re-raises it
	require.NoError(t, eng.RefreshNow(context.Background()))
	found := false
	for _, a := range eng.ListAlerts("") {
		if a.ID == "pod-failures" {
			found = true
			assert.Equal(t, models.LifecycleUnread, a.Lifecycle)
		}
	}
	assert.True(t, found)
}

func TestStopDiscardsLateCycles(t *testing.T) {
	source := datasource.NewStaticSource(unhealthyData())
	eng := newTestEngine(source, nil)
	eng.Start()
	require.NoError(t, eng.RefreshNow(context.Background()))

	eng.Stop()
	eng.Stop()

	// Evaluation after Stop is a no-op; reads still work
	eng.evaluateCycle()
	assert.NotEmpty(t, eng.ListAlerts(""))
}
