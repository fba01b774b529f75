package rules

import "github.com/opsignal/k8s-insight/pkg/models"

// Policy identifiers. Each maps to one violation-counting check; the
// checks feed PolicyRecord.ViolationCount, not the alert set.
const (
	PolicyCPULimitMissing      = "cpu-limit-missing"
	PolicyMemoryRequestMissing = "memory-request-missing"
	PolicyRootSecurityContext  = "root-security-context"
)

// DefaultPolicies returns the built-in policy set. The cpu-limit check
// is scoped to the given namespaces; the other two are cluster-wide.
func DefaultPolicies(cpuLimitNamespaces ...string) []models.PolicyRecord {
	return []models.PolicyRecord{
		{
			ID:          PolicyCPULimitMissing,
			Name:        "CPU limits required",
			Description: "Containers must declare a CPU limit",
			Status:      models.PolicyActive,
			Severity:    models.SeverityWarning,
			Namespaces:  cpuLimitNamespaces,
		},
		{
			ID:          PolicyMemoryRequestMissing,
			Name:        "Memory requests required",
			Description: "Containers must declare a memory request",
			Status:      models.PolicyActive,
			Severity:    models.SeverityWarning,
		},
		{
			ID:          PolicyRootSecurityContext,
			Name:        "No root containers",
			Description: "Containers must not run as root",
			Status:      models.PolicyActive,
			Severity:    models.SeverityHigh,
		},
	}
}

// EvaluatePolicies recomputes each policy's violation count from the
// current pod population. Counts are rebuilt from scratch every cycle,
// never accumulated. Inactive policies keep a zero count.
func EvaluatePolicies(policies []models.PolicyRecord, pods []models.PodRecord) []models.PolicyRecord {
	out := make([]models.PolicyRecord, len(policies))
	for i, policy := range policies {
		record := policy
		record.ViolationCount = 0
		if policy.Status == models.PolicyActive {
			record.ViolationCount = countViolations(policy, pods)
		}
		out[i] = record
	}
	return out
}

func countViolations(policy models.PolicyRecord, pods []models.PodRecord) int {
	count := 0
	for _, pod := range pods {
		if len(policy.Namespaces) > 0 && !containsNamespace(policy.Namespaces, pod.Namespace) {
			continue
		}
		switch policy.ID {
		case PolicyCPULimitMissing:
			if !pod.CPULimitSet {
				count++
			}
		case PolicyMemoryRequestMissing:
			if !pod.MemoryRequestSet {
				count++
			}
		case PolicyRootSecurityContext:
			if pod.RunsAsRoot {
				count++
			}
		}
	}
	return count
}

func containsNamespace(namespaces []string, namespace string) bool {
	for _, ns := range namespaces {
		if ns == namespace {
			return true
		}
	}
	return false
}
