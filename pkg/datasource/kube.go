package datasource

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/scoring"
)

const (
	bytesPerGiB = 1024.0 * 1024.0 * 1024.0
	bytesPerMiB = 1024.0 * 1024.0
)

// KubeSource fetches telemetry straight from the API server and
// metrics-server.
type KubeSource struct {
	clientset     kubernetes.Interface
	metricsClient metricsv.Interface
	rates         scoring.UnitRates
	defaultBudget float64
}

// NewClients builds the API server and metrics clientsets from a
// kubeconfig path, falling back to ~/.kube/config.
func NewClients(kubeconfig string) (kubernetes.Interface, metricsv.Interface, error) {
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClient, err := metricsv.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics client: %w", err)
	}
	return clientset, metricsClient, nil
}

// NewKubeSource builds a source from a kubeconfig path plus the unit
// rates and per-namespace monthly budget used to derive budget records.
func NewKubeSource(kubeconfig string, rates scoring.UnitRates, defaultBudget float64) (*KubeSource, error) {
	clientset, metricsClient, err := NewClients(kubeconfig)
	if err != nil {
		return nil, err
	}
	return NewKubeSourceFromClients(clientset, metricsClient, rates, defaultBudget), nil
}

// NewKubeSourceFromClients wraps pre-built clientsets; callers that need
// the clientset for provider detection build it once and share it.
func NewKubeSourceFromClients(clientset kubernetes.Interface, metricsClient metricsv.Interface, rates scoring.UnitRates, defaultBudget float64) *KubeSource {
	return &KubeSource{
		clientset:     clientset,
		metricsClient: metricsClient,
		rates:         rates,
		defaultBudget: defaultBudget,
	}
}

func (k *KubeSource) Name() string {
	return "kubernetes"
}

func (k *KubeSource) IsAvailable(ctx context.Context) bool {
	_, err := k.clientset.Discovery().ServerVersion()
	return err == nil
}

// GetClusterStats sums node allocatable capacity and live node usage
// into one cluster-wide snapshot.
func (k *KubeSource) GetClusterStats(ctx context.Context) (models.ClusterSnapshot, error) {
	snap := models.ClusterSnapshot{CollectedAt: time.Now()}

	nodes, err := k.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return snap, fmt.Errorf("failed to list nodes: %w", err)
	}
	for _, node := range nodes.Items {
		cpu := node.Status.Allocatable[corev1.ResourceCPU]
		mem := node.Status.Allocatable[corev1.ResourceMemory]
		snap.CPUCapacity += float64(cpu.MilliValue()) / 1000.0
		snap.MemoryCapacity += float64(mem.Value()) / bytesPerGiB
	}

	nodeMetrics, err := k.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return snap, fmt.Errorf("failed to get node metrics: %w", err)
	}
	for _, nm := range nodeMetrics.Items {
		cpu := nm.Usage[corev1.ResourceCPU]
		mem := nm.Usage[corev1.ResourceMemory]
		snap.CPUUsage += float64(cpu.MilliValue()) / 1000.0
		snap.MemoryUsage += float64(mem.Value()) / bytesPerGiB
	}

	pods, err := k.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return snap, fmt.Errorf("failed to list pods: %w", err)
	}
	snap.TotalPods = len(pods.Items)
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning {
			snap.ActivePods++
		}
	}

	return snap, nil
}

// GetPods lists pods in the namespace (all namespaces when empty) as
// flat records carrying only what the rule evaluator reads.
func (k *KubeSource) GetPods(ctx context.Context, namespace string) ([]models.PodRecord, error) {
	if namespace == "" {
		namespace = metav1.NamespaceAll
	}
	pods, err := k.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	records := make([]models.PodRecord, 0, len(pods.Items))
	for _, pod := range pods.Items {
		records = append(records, podRecord(pod))
	}
	return records, nil
}

func podRecord(pod corev1.Pod) models.PodRecord {
	record := models.PodRecord{
		Name:             pod.Name,
		Namespace:        pod.Namespace,
		Status:           podStatus(pod.Status.Phase),
		CPULimitSet:      true,
		MemoryRequestSet: true,
		RunsAsRoot:       runsAsRoot(pod),
	}
	for _, container := range pod.Spec.Containers {
		if _, ok := container.Resources.Limits[corev1.ResourceCPU]; !ok {
			record.CPULimitSet = false
		}
		if _, ok := container.Resources.Requests[corev1.ResourceMemory]; !ok {
			record.MemoryRequestSet = false
		}
	}
	for _, status := range pod.Status.ContainerStatuses {
		record.RestartCount += int(status.RestartCount)
	}
	return record
}

func podStatus(phase corev1.PodPhase) models.PodStatus {
	switch phase {
	case corev1.PodRunning:
		return models.PodRunning
	case corev1.PodPending:
		return models.PodPending
	case corev1.PodSucceeded:
		return models.PodSucceeded
	default:
		return models.PodFailed
	}
}

// runsAsRoot reports whether any container may run as uid 0: nothing at
// pod or container level asserts non-root and no explicit non-zero uid
// is set.
func runsAsRoot(pod corev1.Pod) bool {
	podNonRoot := false
	if sc := pod.Spec.SecurityContext; sc != nil {
		if sc.RunAsNonRoot != nil && *sc.RunAsNonRoot {
			podNonRoot = true
		}
		if sc.RunAsUser != nil && *sc.RunAsUser != 0 {
			podNonRoot = true
		}
	}
	for _, container := range pod.Spec.Containers {
		containerNonRoot := podNonRoot
		if sc := container.SecurityContext; sc != nil {
			if sc.RunAsNonRoot != nil && *sc.RunAsNonRoot {
				containerNonRoot = true
			}
			if sc.RunAsUser != nil && *sc.RunAsUser != 0 {
				containerNonRoot = true
			}
		}
		if !containerNonRoot {
			return true
		}
	}
	return false
}

// GetNodes returns per-node capacity and usage.
func (k *KubeSource) GetNodes(ctx context.Context) ([]models.NodeRecord, error) {
	nodes, err := k.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	usage := make(map[string][2]float64) // cores, GiB
	nodeMetrics, err := k.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get node metrics: %w", err)
	}
	for _, nm := range nodeMetrics.Items {
		cpu := nm.Usage[corev1.ResourceCPU]
		mem := nm.Usage[corev1.ResourceMemory]
		usage[nm.Name] = [2]float64{
			float64(cpu.MilliValue()) / 1000.0,
			float64(mem.Value()) / bytesPerGiB,
		}
	}

	records := make([]models.NodeRecord, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		cpu := node.Status.Allocatable[corev1.ResourceCPU]
		mem := node.Status.Allocatable[corev1.ResourceMemory]
		record := models.NodeRecord{
			Name:           node.Name,
			CPUCapacity:    float64(cpu.MilliValue()) / 1000.0,
			MemoryCapacity: float64(mem.Value()) / bytesPerGiB,
			CPUUsage:       usage[node.Name][0],
			MemoryUsage:    usage[node.Name][1],
		}
		for _, cond := range node.Status.Conditions {
			if cond.Type == corev1.NodeReady {
				record.Ready = cond.Status == corev1.ConditionTrue
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// GetSavingsCandidates joins pod specs with live metrics, emitting one
// candidate per pod that declares resource requests.
func (k *KubeSource) GetSavingsCandidates(ctx context.Context) ([]models.SavingsCandidate, error) {
	pods, err := k.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	podMetrics, err := k.metricsClient.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod metrics: %w", err)
	}
	usage := make(map[string][2]float64) // cores, MiB
	for _, pm := range podMetrics.Items {
		var cpu, mem float64
		for _, container := range pm.Containers {
			c := container.Usage[corev1.ResourceCPU]
			m := container.Usage[corev1.ResourceMemory]
			cpu += float64(c.MilliValue()) / 1000.0
			mem += float64(m.Value()) / bytesPerMiB
		}
		usage[pm.Namespace+"/"+pm.Name] = [2]float64{cpu, mem}
	}

	var candidates []models.SavingsCandidate
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}
		var reqCPU, reqMem float64
		for _, container := range pod.Spec.Containers {
			if cpu, ok := container.Resources.Requests[corev1.ResourceCPU]; ok {
				reqCPU += float64(cpu.MilliValue()) / 1000.0
			}
			if mem, ok := container.Resources.Requests[corev1.ResourceMemory]; ok {
				reqMem += float64(mem.Value()) / bytesPerMiB
			}
		}
		if reqCPU == 0 && reqMem == 0 {
			continue
		}
		used := usage[pod.Namespace+"/"+pod.Name]
		candidates = append(candidates, models.SavingsCandidate{
			Name:            pod.Name,
			Namespace:       pod.Namespace,
			Workload:        workloadName(pod),
			CPURequested:    reqCPU,
			CPUUsage:        used[0],
			MemoryRequested: reqMem,
			MemoryUsage:     used[1],
		})
	}
	return candidates, nil
}

// workloadName extracts the top-level workload from owner references.
// ReplicaSet owners are collapsed to their Deployment name.
func workloadName(pod corev1.Pod) string {
	if len(pod.OwnerReferences) == 0 {
		return pod.Name
	}
	owner := pod.OwnerReferences[0]
	if owner.Kind == "ReplicaSet" {
		if idx := strings.LastIndex(owner.Name, "-"); idx > 0 {
			return owner.Name[:idx]
		}
	}
	return owner.Name
}

// GetEfficiencyMetrics derives cluster efficiency from the current
// request-vs-usage ratios.
func (k *KubeSource) GetEfficiencyMetrics(ctx context.Context) (models.EfficiencyMetrics, error) {
	candidates, err := k.GetSavingsCandidates(ctx)
	if err != nil {
		return models.EfficiencyMetrics{}, err
	}

	var reqCPU, usedCPU, reqMem, usedMem float64
	for _, c := range candidates {
		reqCPU += c.CPURequested
		usedCPU += c.CPUUsage
		reqMem += c.MemoryRequested
		usedMem += c.MemoryUsage
	}

	metrics := models.EfficiencyMetrics{
		CPUEfficiency:    scoring.Efficiency(usedCPU, reqCPU),
		MemoryEfficiency: scoring.Efficiency(usedMem, reqMem),
	}
	metrics.OverallScore = (metrics.CPUEfficiency + metrics.MemoryEfficiency) / 2
	metrics.Grade = scoring.EfficiencyGrade(metrics.OverallScore)
	return metrics, nil
}

// GetBudgets derives per-namespace budget records from the monthly cost
// of currently requested resources, against the configured budget.
func (k *KubeSource) GetBudgets(ctx context.Context) ([]models.BudgetRecord, error) {
	candidates, err := k.GetSavingsCandidates(ctx)
	if err != nil {
		return nil, err
	}

	spend := make(map[string]float64)
	for _, c := range candidates {
		spend[c.Namespace] += c.CPURequested*k.rates.CPUPerCore + c.MemoryRequested*k.rates.MemoryPerMiB
	}

	namespaces := make([]string, 0, len(spend))
	for ns := range spend {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	records := make([]models.BudgetRecord, 0, len(namespaces))
	for _, ns := range namespaces {
		pct := scoring.BudgetPercentage(spend[ns], k.defaultBudget)
		records = append(records, models.BudgetRecord{
			Namespace:      ns,
			BudgetAmount:   k.defaultBudget,
			SpentAmount:    spend[ns],
			PercentageUsed: pct,
			Status:         scoring.BudgetStatusFor(pct),
		})
	}
	return records, nil
}
