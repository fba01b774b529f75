package models

import "time"

// AlertKind classifies what an alert is about. The set is closed:
// adding a kind means updating every exhaustive switch over it.
type AlertKind string

const (
	KindHealth     AlertKind = "health"
	KindEfficiency AlertKind = "efficiency"
	KindPolicy     AlertKind = "policy"
	KindBudget     AlertKind = "budget"
	KindAnomaly    AlertKind = "anomaly"
)

// Severity orders alerts by urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Lifecycle is the per-alert read status, orthogonal to whether the
// underlying condition still holds.
type Lifecycle string

const (
	LifecycleUnread Lifecycle = "unread"
	LifecycleRead   Lifecycle = "read"
)

// Alert is one actionable item derived from a snapshot. The ID is
// deterministic for a given condition (e.g. "cpu-high"), so repeated
// evaluation of the same condition always yields the same identifier.
type Alert struct {
	ID         string
	Kind       AlertKind
	Severity   Severity
	Title      string
	Message    string
	Namespace  string
	Value      string
	ObservedAt time.Time
	Lifecycle  Lifecycle
}

// Summary is the aggregate view consumed by dashboard headers.
type Summary struct {
	TotalAlerts           int
	UnreadCount           int
	CriticalCount         int
	TotalPotentialSavings float64
}
