// Package exporter exposes engine state as Prometheus metrics.
package exporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsignal/k8s-insight/pkg/engine"
	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/store"
)

// PrometheusExporter publishes alert, recommendation, and poll-health
// gauges on a private registry.
type PrometheusExporter struct {
	registry *prometheus.Registry

	alertsBySeverity *prometheus.GaugeVec
	unreadAlerts     prometheus.Gauge
	recommendations  *prometheus.GaugeVec
	potentialSavings prometheus.Gauge
	domainUp         *prometheus.GaugeVec
	budgetUsed       *prometheus.GaugeVec
	policyViolations *prometheus.GaugeVec
}

// NewPrometheusExporter initializes metric collectors.
func NewPrometheusExporter() *PrometheusExporter {
	reg := prometheus.NewRegistry()

	alertsGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_alerts",
		Help: "Current alerts in the working set by severity",
	}, []string{"severity"})

	unreadGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "insight_alerts_unread",
		Help: "Alerts not yet marked read",
	})

	recGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_recommendations",
		Help: "Current recommendations by category",
	}, []string{"category"})

	savingsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "insight_potential_savings_annual_usd",
		Help: "Estimated annual savings across open recommendations",
	})

	domainGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_domain_up",
		Help: "1 when the domain's last poll succeeded, 0 when it is serving stale data",
	}, []string{"domain"})

	budgetGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_budget_used_percent",
		Help: "Namespace budget consumption percentage",
	}, []string{"namespace"})

	policyGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_policy_violations",
		Help: "Current violation count per policy",
	}, []string{"policy"})

	reg.MustRegister(alertsGauge, unreadGauge, recGauge, savingsGauge, domainGauge, budgetGauge, policyGauge)

	return &PrometheusExporter{
		registry:         reg,
		alertsBySeverity: alertsGauge,
		unreadAlerts:     unreadGauge,
		recommendations:  recGauge,
		potentialSavings: savingsGauge,
		domainUp:         domainGauge,
		budgetUsed:       budgetGauge,
		policyViolations: policyGauge,
	}
}

// Handler returns the HTTP handler for /metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Update copies the engine's current working set into the gauges.
func (p *PrometheusExporter) Update(eng *engine.Engine) {
	p.alertsBySeverity.Reset()
	p.recommendations.Reset()
	p.domainUp.Reset()
	p.budgetUsed.Reset()
	p.policyViolations.Reset()

	for _, severity := range []models.Severity{
		models.SeverityCritical, models.SeverityHigh, models.SeverityWarning, models.SeverityInfo,
	} {
		p.alertsBySeverity.WithLabelValues(string(severity)).Set(0)
	}
	for _, alert := range eng.ListAlerts("") {
		p.alertsBySeverity.WithLabelValues(string(alert.Severity)).Inc()
	}

	summary := eng.Summary()
	p.unreadAlerts.Set(float64(summary.UnreadCount))
	p.potentialSavings.Set(summary.TotalPotentialSavings)

	for _, rec := range eng.ListRecommendations(store.RecommendationFilter{}) {
		p.recommendations.WithLabelValues(string(rec.Category)).Inc()
	}

	for _, status := range eng.DomainHealth() {
		up := 1.0
		if status.Error != "" {
			up = 0
		}
		p.domainUp.WithLabelValues(string(status.Domain)).Set(up)
	}

	for _, budget := range eng.Budgets() {
		p.budgetUsed.WithLabelValues(budget.Namespace).Set(float64(budget.PercentageUsed))
	}

	for _, policy := range eng.Policies() {
		p.policyViolations.WithLabelValues(policy.ID).Set(float64(policy.ViolationCount))
	}
}
