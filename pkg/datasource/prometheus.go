package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/scoring"
)

// PrometheusSource fetches telemetry from a Prometheus server scraping
// cAdvisor and kube-state-metrics.
type PrometheusSource struct {
	client        v1.API
	url           string
	rates         scoring.UnitRates
	defaultBudget float64
}

// NewPrometheusSource creates a source backed by the given Prometheus URL.
func NewPrometheusSource(url string, rates scoring.UnitRates, defaultBudget float64) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &PrometheusSource{
		client:        v1.NewAPI(client),
		url:           url,
		rates:         rates,
		defaultBudget: defaultBudget,
	}, nil
}

func (p *PrometheusSource) Name() string {
	return "prometheus"
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

// GetClusterStats assembles a cluster snapshot from instant queries.
func (p *PrometheusSource) GetClusterStats(ctx context.Context) (models.ClusterSnapshot, error) {
	snap := models.ClusterSnapshot{CollectedAt: time.Now()}

	queries := []struct {
		dest  *float64
		query string
	}{
		{&snap.CPUUsage, `sum(rate(container_cpu_usage_seconds_total{container!=""}[5m]))`},
		{&snap.CPUCapacity, `sum(machine_cpu_cores)`},
		{&snap.MemoryUsage, `sum(container_memory_working_set_bytes{container!=""}) / 2^30`},
		{&snap.MemoryCapacity, `sum(machine_memory_bytes) / 2^30`},
		{&snap.NetworkIO, `sum(rate(container_network_transmit_bytes_total[5m]) + rate(container_network_receive_bytes_total[5m])) / 2^20`},
	}
	for _, q := range queries {
		value, err := p.querySingle(ctx, q.query)
		if err != nil {
			return snap, err
		}
		*q.dest = value
	}

	active, err := p.querySingle(ctx, `sum(kube_pod_status_phase{phase="Running"})`)
	if err != nil {
		return snap, err
	}
	total, err := p.querySingle(ctx, `count(kube_pod_info)`)
	if err != nil {
		return snap, err
	}
	snap.ActivePods = int(active)
	snap.TotalPods = int(total)

	return snap, nil
}

// GetPods reconstructs pod records from kube-state-metrics series.
func (p *PrometheusSource) GetPods(ctx context.Context, namespace string) ([]models.PodRecord, error) {
	selector := ""
	if namespace != "" {
		selector = fmt.Sprintf(`{namespace=%q}`, namespace)
	}

	phases, err := p.queryVector(ctx, fmt.Sprintf(`kube_pod_status_phase%s == 1`, selector))
	if err != nil {
		return nil, err
	}

	byPod := make(map[string]*models.PodRecord)
	var order []string
	for _, sample := range phases {
		key := string(sample.Metric["namespace"]) + "/" + string(sample.Metric["pod"])
		record := &models.PodRecord{
			Name:      string(sample.Metric["pod"]),
			Namespace: string(sample.Metric["namespace"]),
			Status:    models.PodStatus(sample.Metric["phase"]),
		}
		byPod[key] = record
		order = append(order, key)
	}

	restarts, err := p.queryVector(ctx, fmt.Sprintf(`sum by (namespace, pod) (kube_pod_container_status_restarts_total%s)`, selector))
	if err != nil {
		return nil, err
	}
	for _, sample := range restarts {
		key := string(sample.Metric["namespace"]) + "/" + string(sample.Metric["pod"])
		if record, ok := byPod[key]; ok {
			record.RestartCount = int(sample.Value)
		}
	}

	cpuLimits, err := p.queryVector(ctx, fmt.Sprintf(`count by (namespace, pod) (kube_pod_container_resource_limits{resource="cpu"}%s)`, selector))
	if err != nil {
		return nil, err
	}
	limited := make(map[string]bool, len(cpuLimits))
	for _, sample := range cpuLimits {
		limited[string(sample.Metric["namespace"])+"/"+string(sample.Metric["pod"])] = true
	}

	memRequests, err := p.queryVector(ctx, fmt.Sprintf(`count by (namespace, pod) (kube_pod_container_resource_requests{resource="memory"}%s)`, selector))
	if err != nil {
		return nil, err
	}
	requested := make(map[string]bool, len(memRequests))
	for _, sample := range memRequests {
		requested[string(sample.Metric["namespace"])+"/"+string(sample.Metric["pod"])] = true
	}

	records := make([]models.PodRecord, 0, len(order))
	for _, key := range order {
		record := byPod[key]
		record.CPULimitSet = limited[key]
		record.MemoryRequestSet = requested[key]
		records = append(records, *record)
	}
	return records, nil
}

// GetNodes returns per-node capacity and usage from node-level series.
func (p *PrometheusSource) GetNodes(ctx context.Context) ([]models.NodeRecord, error) {
	capacity, err := p.queryVector(ctx, `kube_node_status_allocatable{resource="cpu"}`)
	if err != nil {
		return nil, err
	}

	byNode := make(map[string]*models.NodeRecord)
	var order []string
	for _, sample := range capacity {
		name := string(sample.Metric["node"])
		byNode[name] = &models.NodeRecord{Name: name, CPUCapacity: float64(sample.Value)}
		order = append(order, name)
	}

	fill := []struct {
		query string
		apply func(*models.NodeRecord, float64)
	}{
		{`kube_node_status_allocatable{resource="memory"} / 2^30`, func(n *models.NodeRecord, v float64) { n.MemoryCapacity = v }},
		{`sum by (node) (rate(container_cpu_usage_seconds_total{container!=""}[5m]))`, func(n *models.NodeRecord, v float64) { n.CPUUsage = v }},
		{`sum by (node) (container_memory_working_set_bytes{container!=""}) / 2^30`, func(n *models.NodeRecord, v float64) { n.MemoryUsage = v }},
		{`kube_node_status_condition{condition="Ready",status="true"}`, func(n *models.NodeRecord, v float64) { n.Ready = v == 1 }},
	}
	for _, f := range fill {
		vector, err := p.queryVector(ctx, f.query)
		if err != nil {
			return nil, err
		}
		for _, sample := range vector {
			if record, ok := byNode[string(sample.Metric["node"])]; ok {
				f.apply(record, float64(sample.Value))
			}
		}
	}

	records := make([]models.NodeRecord, 0, len(order))
	for _, name := range order {
		records = append(records, *byNode[name])
	}
	return records, nil
}

// GetSavingsCandidates joins request and usage series per pod.
func (p *PrometheusSource) GetSavingsCandidates(ctx context.Context) ([]models.SavingsCandidate, error) {
	reqCPU, err := p.queryVector(ctx, `sum by (namespace, pod) (kube_pod_container_resource_requests{resource="cpu"})`)
	if err != nil {
		return nil, err
	}

	byPod := make(map[string]*models.SavingsCandidate)
	var order []string
	for _, sample := range reqCPU {
		key := string(sample.Metric["namespace"]) + "/" + string(sample.Metric["pod"])
		byPod[key] = &models.SavingsCandidate{
			Name:         string(sample.Metric["pod"]),
			Namespace:    string(sample.Metric["namespace"]),
			CPURequested: float64(sample.Value),
		}
		order = append(order, key)
	}

	fill := []struct {
		query string
		apply func(*models.SavingsCandidate, float64)
	}{
		{`sum by (namespace, pod) (kube_pod_container_resource_requests{resource="memory"}) / 2^20`, func(c *models.SavingsCandidate, v float64) { c.MemoryRequested = v }},
		{`sum by (namespace, pod) (rate(container_cpu_usage_seconds_total{container!=""}[5m]))`, func(c *models.SavingsCandidate, v float64) { c.CPUUsage = v }},
		{`sum by (namespace, pod) (container_memory_working_set_bytes{container!=""}) / 2^20`, func(c *models.SavingsCandidate, v float64) { c.MemoryUsage = v }},
	}
	for _, f := range fill {
		vector, err := p.queryVector(ctx, f.query)
		if err != nil {
			return nil, err
		}
		for _, sample := range vector {
			key := string(sample.Metric["namespace"]) + "/" + string(sample.Metric["pod"])
			if candidate, ok := byPod[key]; ok {
				f.apply(candidate, float64(sample.Value))
			}
		}
	}

	owners, err := p.queryVector(ctx, `kube_pod_info`)
	if err != nil {
		return nil, err
	}
	for _, sample := range owners {
		key := string(sample.Metric["namespace"]) + "/" + string(sample.Metric["pod"])
		if candidate, ok := byPod[key]; ok {
			if owner := string(sample.Metric["created_by_name"]); owner != "" && owner != "<none>" {
				candidate.Workload = trimReplicaSetSuffix(owner)
			} else {
				candidate.Workload = candidate.Name
			}
		}
	}

	candidates := make([]models.SavingsCandidate, 0, len(order))
	for _, key := range order {
		candidate := byPod[key]
		if candidate.Workload == "" {
			candidate.Workload = candidate.Name
		}
		candidates = append(candidates, *candidate)
	}
	return candidates, nil
}

// GetEfficiencyMetrics computes cluster efficiency from aggregate
// usage-over-request ratios.
func (p *PrometheusSource) GetEfficiencyMetrics(ctx context.Context) (models.EfficiencyMetrics, error) {
	usedCPU, err := p.querySingle(ctx, `sum(rate(container_cpu_usage_seconds_total{container!=""}[5m]))`)
	if err != nil {
		return models.EfficiencyMetrics{}, err
	}
	reqCPU, err := p.querySingle(ctx, `sum(kube_pod_container_resource_requests{resource="cpu"})`)
	if err != nil {
		return models.EfficiencyMetrics{}, err
	}
	usedMem, err := p.querySingle(ctx, `sum(container_memory_working_set_bytes{container!=""})`)
	if err != nil {
		return models.EfficiencyMetrics{}, err
	}
	reqMem, err := p.querySingle(ctx, `sum(kube_pod_container_resource_requests{resource="memory"})`)
	if err != nil {
		return models.EfficiencyMetrics{}, err
	}

	metrics := models.EfficiencyMetrics{
		CPUEfficiency:    scoring.Efficiency(usedCPU, reqCPU),
		MemoryEfficiency: scoring.Efficiency(usedMem, reqMem),
	}
	metrics.OverallScore = (metrics.CPUEfficiency + metrics.MemoryEfficiency) / 2
	metrics.Grade = scoring.EfficiencyGrade(metrics.OverallScore)
	return metrics, nil
}

// GetBudgets derives per-namespace budgets from request costs.
func (p *PrometheusSource) GetBudgets(ctx context.Context) ([]models.BudgetRecord, error) {
	cpu, err := p.queryVector(ctx, `sum by (namespace) (kube_pod_container_resource_requests{resource="cpu"})`)
	if err != nil {
		return nil, err
	}
	mem, err := p.queryVector(ctx, `sum by (namespace) (kube_pod_container_resource_requests{resource="memory"}) / 2^20`)
	if err != nil {
		return nil, err
	}

	spend := make(map[string]float64)
	var order []string
	for _, sample := range cpu {
		ns := string(sample.Metric["namespace"])
		if _, ok := spend[ns]; !ok {
			order = append(order, ns)
		}
		spend[ns] += float64(sample.Value) * p.rates.CPUPerCore
	}
	for _, sample := range mem {
		ns := string(sample.Metric["namespace"])
		if _, ok := spend[ns]; !ok {
			order = append(order, ns)
		}
		spend[ns] += float64(sample.Value) * p.rates.MemoryPerMiB
	}

	records := make([]models.BudgetRecord, 0, len(order))
	for _, ns := range order {
		pct := scoring.BudgetPercentage(spend[ns], p.defaultBudget)
		records = append(records, models.BudgetRecord{
			Namespace:      ns,
			BudgetAmount:   p.defaultBudget,
			SpentAmount:    spend[ns],
			PercentageUsed: pct,
			Status:         scoring.BudgetStatusFor(pct),
		})
	}
	return records, nil
}

func (p *PrometheusSource) querySingle(ctx context.Context, query string) (float64, error) {
	vector, err := p.queryVector(ctx, query)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, sample := range vector {
		sum += float64(sample.Value)
	}
	return sum, nil
}

func (p *PrometheusSource) queryVector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", query, err)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for query %q", result, query)
	}
	return vector, nil
}

func trimReplicaSetSuffix(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '-' {
			return name[:i]
		}
	}
	return name
}
