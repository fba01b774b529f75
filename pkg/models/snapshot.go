package models

import "time"

// ClusterSnapshot is a point-in-time read of cluster-wide telemetry.
// Immutable once fetched; superseded wholesale by the next poll.
type ClusterSnapshot struct {
	// CPU in cores
	CPUUsage    float64
	CPUCapacity float64

	// Memory in GiB
	MemoryUsage    float64
	MemoryCapacity float64

	ActivePods int
	TotalPods  int

	// Network throughput in MiB/s
	NetworkIO float64

	CollectedAt time.Time
}

// PodStatus is the lifecycle phase of a pod as reported by the cluster.
type PodStatus string

const (
	PodRunning   PodStatus = "Running"
	PodPending   PodStatus = "Pending"
	PodFailed    PodStatus = "Failed"
	PodSucceeded PodStatus = "Succeeded"
)

// PodRecord is a per-pod observation used for rule evaluation.
// Records are sourced fresh each poll and not retained across cycles.
type PodRecord struct {
	Name             string
	Namespace        string
	Status           PodStatus
	CPULimitSet      bool
	MemoryRequestSet bool
	RestartCount     int
	RunsAsRoot       bool
}

// NodeRecord is a per-node observation.
type NodeRecord struct {
	Name string

	// Allocatable capacity
	CPUCapacity    float64 // cores
	MemoryCapacity float64 // GiB

	// Current usage
	CPUUsage    float64
	MemoryUsage float64

	Ready bool
}

// SavingsCandidate is a raw over-provisioning record from the snapshot
// source, before scoring and recommendation building.
type SavingsCandidate struct {
	Name      string
	Namespace string
	Workload  string

	// CPU in cores
	CPURequested float64
	CPUUsage     float64

	// Memory in MiB
	MemoryRequested float64
	MemoryUsage     float64
}

// EfficiencyMetrics is the cluster-level efficiency read.
type EfficiencyMetrics struct {
	CPUEfficiency    float64 // 0..1
	MemoryEfficiency float64 // 0..1
	OverallScore     float64 // 0..1
	Grade            string  // A, B, C, D, F
}
