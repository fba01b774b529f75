package datasource

import (
	"context"
	"sync"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// StaticData is one consistent set of telemetry served by a StaticSource.
type StaticData struct {
	Stats      models.ClusterSnapshot
	Pods       []models.PodRecord
	Nodes      []models.NodeRecord
	Candidates []models.SavingsCandidate
	Efficiency models.EfficiencyMetrics
	Budgets    []models.BudgetRecord
}

// StaticSource serves fixed telemetry. It backs tests and offline demo
// runs; per-domain failures can be injected to exercise partial-failure
// handling.
type StaticSource struct {
	mu   sync.Mutex
	data StaticData
	errs map[string]error
}

// NewStaticSource creates a source serving the given data.
func NewStaticSource(data StaticData) *StaticSource {
	return &StaticSource{data: data, errs: make(map[string]error)}
}

// SetData swaps the served telemetry atomically.
func (s *StaticSource) SetData(data StaticData) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

// FailDomain makes one domain's fetches return err; nil clears the
// injected failure. Domain names: cluster, pods, nodes, savings,
// efficiency, budgets.
func (s *StaticSource) FailDomain(domain string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.errs, domain)
	} else {
		s.errs[domain] = err
	}
	s.mu.Unlock()
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) IsAvailable(context.Context) bool { return true }

func (s *StaticSource) GetClusterStats(context.Context) (models.ClusterSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["cluster"]; err != nil {
		return models.ClusterSnapshot{}, err
	}
	return s.data.Stats, nil
}

func (s *StaticSource) GetPods(_ context.Context, namespace string) ([]models.PodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["pods"]; err != nil {
		return nil, err
	}
	if namespace == "" {
		out := make([]models.PodRecord, len(s.data.Pods))
		copy(out, s.data.Pods)
		return out, nil
	}
	var out []models.PodRecord
	for _, pod := range s.data.Pods {
		if pod.Namespace == namespace {
			out = append(out, pod)
		}
	}
	return out, nil
}

func (s *StaticSource) GetNodes(context.Context) ([]models.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["nodes"]; err != nil {
		return nil, err
	}
	out := make([]models.NodeRecord, len(s.data.Nodes))
	copy(out, s.data.Nodes)
	return out, nil
}

func (s *StaticSource) GetSavingsCandidates(context.Context) ([]models.SavingsCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["savings"]; err != nil {
		return nil, err
	}
	out := make([]models.SavingsCandidate, len(s.data.Candidates))
	copy(out, s.data.Candidates)
	return out, nil
}

func (s *StaticSource) GetEfficiencyMetrics(context.Context) (models.EfficiencyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["efficiency"]; err != nil {
		return models.EfficiencyMetrics{}, err
	}
	return s.data.Efficiency, nil
}

func (s *StaticSource) GetBudgets(context.Context) ([]models.BudgetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["budgets"]; err != nil {
		return nil, err
	}
	out := make([]models.BudgetRecord, len(s.data.Budgets))
	copy(out, s.data.Budgets)
	return out, nil
}
