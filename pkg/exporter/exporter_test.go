package exporter

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsignal/k8s-insight/pkg/datasource"
	"github.com/opsignal/k8s-insight/pkg/engine"
	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/rules"
	"github.com/opsignal/k8s-insight/pkg/scoring"
)

func scrape(t *testing.T, e *PrometheusExporter) string {
	t.Helper()
	server := httptest.NewServer(e.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestUpdatePublishesEngineState(t *testing.T) {
	source := datasource.NewStaticSource(datasource.StaticData{
		Stats: models.ClusterSnapshot{
			CPUUsage: 9.0, CPUCapacity: 10,
			CollectedAt: time.Now(),
		},
		Candidates: []models.SavingsCandidate{
			{
				Name: "web-1", Namespace: "prod", Workload: "web",
				CPURequested: 2.0, CPUUsage: 0.4,
				MemoryRequested: 2048, MemoryUsage: 300,
			},
		},
		Budgets: []models.BudgetRecord{
			{Namespace: "prod", PercentageUsed: 95, Status: models.BudgetCritical},
		},
	})
	eng := engine.New(source, engine.Options{
		Thresholds: rules.DefaultThresholds(),
		Rates:      scoring.UnitRates{CPUPerCore: 23.0, MemoryPerMiB: 3.0 / 1024},
	})
	eng.Start()
	defer eng.Stop()
	require.NoError(t, eng.RefreshNow(context.Background()))

	exporter := NewPrometheusExporter()
	exporter.Update(eng)

	body := scrape(t, exporter)
	assert.Contains(t, body, `insight_alerts{severity="warning"}`)
	assert.Contains(t, body, `insight_alerts{severity="critical"} 1`)
	assert.Contains(t, body, `insight_recommendations{category="rightsizing"} 1`)
	assert.Contains(t, body, `insight_domain_up{domain="cluster"} 1`)
	assert.Contains(t, body, `insight_budget_used_percent{namespace="prod"} 95`)
	assert.Contains(t, body, "insight_potential_savings_annual_usd")
	assert.True(t, strings.Contains(body, "insight_alerts_unread"))
}

func TestUpdateResetsStaleSeries(t *testing.T) {
	source := datasource.NewStaticSource(datasource.StaticData{
		Stats:      models.ClusterSnapshot{CPUUsage: 9.0, CPUCapacity: 10, CollectedAt: time.Now()},
		Efficiency: models.EfficiencyMetrics{OverallScore: 0.8, Grade: "B"},
	})
	eng := engine.New(source, engine.Options{Thresholds: rules.DefaultThresholds()})
	eng.Start()
	defer eng.Stop()
	require.NoError(t, eng.RefreshNow(context.Background()))

	exporter := NewPrometheusExporter()
	exporter.Update(eng)
	require.Contains(t, scrape(t, exporter), `insight_alerts{severity="warning"} 1`)

	// Condition clears: the series drops back to zero
	healthy := datasource.StaticData{
		Stats:      models.ClusterSnapshot{CPUUsage: 2.0, CPUCapacity: 10, CollectedAt: time.Now()},
		Efficiency: models.EfficiencyMetrics{OverallScore: 0.8, Grade: "B"},
	}
	source.SetData(healthy)
	require.NoError(t, eng.RefreshNow(context.Background()))
	exporter.Update(eng)

	assert.Contains(t, scrape(t, exporter), `insight_alerts{severity="warning"} 0`)
}
