package models

// BudgetStatus classifies how close a namespace is to its budget.
type BudgetStatus string

const (
	BudgetGood     BudgetStatus = "good"
	BudgetWarning  BudgetStatus = "warning"
	BudgetCritical BudgetStatus = "critical"
)

// BudgetRecord is a per-namespace spend figure derived from cluster
// usage ratios. It is recomputed each cycle, never persisted.
type BudgetRecord struct {
	Namespace    string
	BudgetAmount float64
	SpentAmount  float64

	// 0-100, clamped
	PercentageUsed int

	Status BudgetStatus
}

// PolicyStatus enables or disables a policy definition.
type PolicyStatus string

const (
	PolicyActive   PolicyStatus = "active"
	PolicyInactive PolicyStatus = "inactive"
)

// PolicyRecord is a governance rule evaluated against the pod
// population. ViolationCount is recomputed from scratch each cycle.
type PolicyRecord struct {
	ID             string
	Name           string
	Description    string
	Status         PolicyStatus
	Severity       Severity
	Namespaces     []string
	ViolationCount int
}
