// Package store holds the current working set of alerts and
// recommendations, keyed by stable identifier. The store is the only
// owner of lifecycle state: rule evaluation produces candidates, the
// store decides what survives reconciliation.
package store

import (
	"sort"
	"sync"

	"github.com/opsignal/k8s-insight/pkg/models"
)

// severityRank orders alerts for display, most urgent first.
var severityRank = map[models.Severity]int{
	models.SeverityCritical: 0,
	models.SeverityHigh:     1,
	models.SeverityWarning:  2,
	models.SeverityInfo:     3,
}

// RecommendationFilter is a pure read-side projection; empty fields
// match everything.
type RecommendationFilter struct {
	Category models.RecommendationCategory
	Priority models.Priority
}

// Store is the reconciling alert/recommendation working set. All
// mutations go through one mutex: evaluation-driven reconciliation and
// user commands are committed one at a time, never interleaved.
type Store struct {
	mu              sync.RWMutex
	alerts          map[string]*models.Alert
	recommendations map[string]*models.Recommendation
	budgets         []models.BudgetRecord
	policies        []models.PolicyRecord
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		alerts:          make(map[string]*models.Alert),
		recommendations: make(map[string]*models.Recommendation),
	}
}

// Reconcile merges a fresh candidate set into the working set by
// stable identifier:
//   - new identifiers are inserted as unread
//   - persisting identifiers are updated in place, keeping their
//     lifecycle (a condition that stays up does not reset read status)
//   - identifiers absent from the candidates are removed (condition
//     cleared)
func (s *Store) Reconcile(candidates []models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*models.Alert, len(candidates))
	for _, candidate := range candidates {
		alert := candidate
		alert.Lifecycle = models.LifecycleUnread
		if previous, ok := s.alerts[alert.ID]; ok {
			alert.Lifecycle = previous.Lifecycle
		}
		next[alert.ID] = &alert
	}
	s.alerts = next
}

// MarkRead transitions an alert from unread to read. No-op if the
// alert is already read or absent.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || alert.Lifecycle == models.LifecycleRead {
		return false
	}
	alert.Lifecycle = models.LifecycleRead
	return true
}

// Dismiss removes an alert immediately, regardless of lifecycle state.
// The identifier reappears only if the evaluator re-raises it on a
// later cycle.
func (s *Store) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[id]; !ok {
		return false
	}
	delete(s.alerts, id)
	return true
}

// ListAlerts returns the working set ordered by severity then id.
// A non-empty kind filters the result; filtering never mutates state.
func (s *Store) ListAlerts(kind models.AlertKind) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]models.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		if kind != "" && alert.Kind != kind {
			continue
		}
		alerts = append(alerts, *alert)
	}
	sort.Slice(alerts, func(i, j int) bool {
		if severityRank[alerts[i].Severity] != severityRank[alerts[j].Severity] {
			return severityRank[alerts[i].Severity] < severityRank[alerts[j].Severity]
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts
}

// ReconcileRecommendations merges fresh recommendations the same way
// alerts are merged; the implemented flag survives for identifiers
// present in both sets.
func (s *Store) ReconcileRecommendations(candidates []models.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*models.Recommendation, len(candidates))
	for _, candidate := range candidates {
		rec := candidate
		if previous, ok := s.recommendations[rec.ID]; ok {
			rec.Implemented = previous.Implemented
		}
		next[rec.ID] = &rec
	}
	s.recommendations = next
}

// Implement marks a recommendation as implemented. No-op if absent.
func (s *Store) Implement(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recommendations[id]
	if !ok || rec.Implemented {
		return false
	}
	rec.Implemented = true
	return true
}

// DismissRecommendation removes a recommendation from the working set.
func (s *Store) DismissRecommendation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recommendations[id]; !ok {
		return false
	}
	delete(s.recommendations, id)
	return true
}

// ListRecommendations returns recommendations matching the filter,
// ordered by estimated savings descending then id.
func (s *Store) ListRecommendations(filter RecommendationFilter) []models.Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]models.Recommendation, 0, len(s.recommendations))
	for _, rec := range s.recommendations {
		if filter.Category != "" && rec.Category != filter.Category {
			continue
		}
		if filter.Priority != "" && rec.Priority != filter.Priority {
			continue
		}
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].EstimatedAnnualSavings != recs[j].EstimatedAnnualSavings {
			return recs[i].EstimatedAnnualSavings > recs[j].EstimatedAnnualSavings
		}
		return recs[i].ID < recs[j].ID
	})
	return recs
}

// SetBudgets replaces the displayed budget records.
func (s *Store) SetBudgets(budgets []models.BudgetRecord) {
	s.mu.Lock()
	s.budgets = budgets
	s.mu.Unlock()
}

// Budgets returns the current budget records.
func (s *Store) Budgets() []models.BudgetRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BudgetRecord, len(s.budgets))
	copy(out, s.budgets)
	return out
}

// SetPolicies replaces the displayed policy records.
func (s *Store) SetPolicies(policies []models.PolicyRecord) {
	s.mu.Lock()
	s.policies = policies
	s.mu.Unlock()
}

// Policies returns the current policy records.
func (s *Store) Policies() []models.PolicyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PolicyRecord, len(s.policies))
	copy(out, s.policies)
	return out
}

// Summary aggregates the working set for dashboard headers. Potential
// savings counts only recommendations not yet implemented.
func (s *Store) Summary() models.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := models.Summary{TotalAlerts: len(s.alerts)}
	for _, alert := range s.alerts {
		if alert.Lifecycle == models.LifecycleUnread {
			summary.UnreadCount++
		}
		if alert.Severity == models.SeverityCritical {
			summary.CriticalCount++
		}
	}
	for _, rec := range s.recommendations {
		if !rec.Implemented {
			summary.TotalPotentialSavings += rec.EstimatedAnnualSavings
		}
	}
	return summary
}
