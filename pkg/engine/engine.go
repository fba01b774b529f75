// Package engine wires the poller, rule evaluator, and store into the
// derived-alert and recommendation engine exposed to the presentation
// layer.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opsignal/k8s-insight/pkg/datasource"
	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/poller"
	"github.com/opsignal/k8s-insight/pkg/rules"
	"github.com/opsignal/k8s-insight/pkg/scoring"
	"github.com/opsignal/k8s-insight/pkg/store"
	"github.com/opsignal/k8s-insight/pkg/storage"
)

// Options configures an Engine.
type Options struct {
	Thresholds rules.Thresholds
	Rates      scoring.UnitRates
	Policies   []models.PolicyRecord
	Logger     *slog.Logger

	// History, when non-nil, receives recommendation history and an
	// audit trail of implement/dismiss actions. Best-effort: failures
	// are logged, never surfaced.
	History storage.Store

	HealthInterval time.Duration
	CostInterval   time.Duration
}

// DomainStatus is the per-domain staleness view for the presentation
// layer: last-known-good data plus an explicit error flag, never a
// blanked view.
type DomainStatus struct {
	Domain      poller.Domain
	LastUpdated time.Time
	Error       string
}

// Engine runs the evaluation loop. No two evaluation cycles for the
// same store run concurrently: timer ticks and manual refreshes
// serialize on one cycle mutex, so the store never reconciles against
// a half-updated candidate set.
type Engine struct {
	poller      *poller.Poller
	evaluator   *rules.Evaluator
	recommender *rules.Recommender
	store       *store.Store
	policies    []models.PolicyRecord
	logger      *slog.Logger
	history     storage.Store

	cycleMu sync.Mutex
	mu      sync.Mutex
	seen    map[string]bool // recommendation ids already persisted
	closed  bool

	healthInterval time.Duration
	costInterval   time.Duration
}

// New creates an engine over the given snapshot source.
func New(source datasource.SnapshotSource, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = poller.DefaultHealthInterval
	}
	if opts.CostInterval <= 0 {
		opts.CostInterval = poller.DefaultCostInterval
	}
	policies := opts.Policies
	if policies == nil {
		policies = rules.DefaultPolicies()
	}

	e := &Engine{
		evaluator:      rules.NewEvaluator(opts.Thresholds, logger),
		recommender:    rules.NewRecommender(opts.Rates),
		store:          store.New(),
		policies:       policies,
		logger:         logger,
		history:        opts.History,
		seen:           make(map[string]bool),
		healthInterval: opts.HealthInterval,
		costInterval:   opts.CostInterval,
	}
	e.poller = poller.New(source, logger, func(poller.Domain) { e.evaluateCycle() })
	return e
}

// Start registers the recurring poll schedule: health-relevant domains
// on the fast cadence, cost aggregates on the slow one.
func (e *Engine) Start() {
	e.poller.Schedule(poller.DomainCluster, e.healthInterval)
	e.poller.Schedule(poller.DomainPods, e.healthInterval)
	e.poller.Schedule(poller.DomainNodes, e.healthInterval)
	e.poller.Schedule(poller.DomainBudgets, e.costInterval)
	e.poller.Schedule(poller.DomainSavings, e.costInterval)
	e.poller.Schedule(poller.DomainEfficiency, e.costInterval)
}

// Stop cancels all timers. Fetches already in flight complete but
// their evaluation cycles are discarded. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.poller.Cancel()
}

// RefreshNow triggers an out-of-band fetch of all domains and returns
// once every fetch has settled and the resulting evaluation cycle has
// been committed. Per-domain failures are reflected in DomainHealth,
// not returned: a partial refresh still succeeds.
func (e *Engine) RefreshNow(ctx context.Context) error {
	if err := e.poller.RefreshNow(ctx); err != nil {
		e.logger.Warn("refresh completed with domain errors", slog.String("error", err.Error()))
	}
	e.evaluateCycle()
	return ctx.Err()
}

// evaluateCycle joins a consistent view of all domains, runs every
// rule, and reconciles the store. Synchronous and non-blocking: only
// the fetches suspend, never evaluation.
func (e *Engine) evaluateCycle() {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	view := e.poller.Snapshot()

	alerts := e.evaluator.Evaluate(view.Stats, view.Pods)
	alerts = append(alerts, rules.EvaluateBudgets(view.Stats, view.Budgets)...)
	if !view.Updated[poller.DomainEfficiency].IsZero() {
		alerts = append(alerts, rules.EvaluateEfficiency(view.Stats, view.Efficiency)...)
	}
	e.store.Reconcile(alerts)

	e.store.SetBudgets(view.Budgets)
	e.store.SetPolicies(rules.EvaluatePolicies(e.policies, view.Pods))

	recommendations := e.recommender.Build(view.Candidates)
	e.store.ReconcileRecommendations(recommendations)
	e.recordHistory(recommendations)
}

// recordHistory persists newly surfaced recommendations, best-effort.
func (e *Engine) recordHistory(recommendations []models.Recommendation) {
	if e.history == nil {
		return
	}
	for i := range recommendations {
		rec := recommendations[i]
		e.mu.Lock()
		already := e.seen[rec.ID]
		e.seen[rec.ID] = true
		e.mu.Unlock()
		if already {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.history.SaveRecommendation(ctx, &rec); err != nil {
			e.logger.Warn("failed to persist recommendation",
				slog.String("id", rec.ID), slog.String("error", err.Error()))
		}
		cancel()
	}
}

// ListAlerts returns the working set, optionally filtered by kind.
func (e *Engine) ListAlerts(kind models.AlertKind) []models.Alert {
	return e.store.ListAlerts(kind)
}

// MarkRead transitions an alert to read.
func (e *Engine) MarkRead(id string) bool {
	return e.store.MarkRead(id)
}

// Dismiss removes an alert until its condition is re-raised.
func (e *Engine) Dismiss(id string) bool {
	return e.store.Dismiss(id)
}

// ListRecommendations returns recommendations matching the filter.
func (e *Engine) ListRecommendations(filter store.RecommendationFilter) []models.Recommendation {
	return e.store.ListRecommendations(filter)
}

// Implement marks a recommendation implemented and audits the action.
func (e *Engine) Implement(id string) bool {
	if !e.store.Implement(id) {
		return false
	}
	e.audit(id, "IMPLEMENTED")
	return true
}

// DismissRecommendation removes a recommendation and audits the action.
func (e *Engine) DismissRecommendation(id string) bool {
	if !e.store.DismissRecommendation(id) {
		return false
	}
	e.audit(id, "DISMISSED")
	return true
}

func (e *Engine) audit(id, action string) {
	if e.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entry := &models.AuditEntry{RecommendationID: id, Action: action}
	if err := e.history.LogAction(ctx, entry); err != nil {
		e.logger.Warn("failed to record audit entry",
			slog.String("id", id), slog.String("error", err.Error()))
	}
}

// Summary aggregates the working set.
func (e *Engine) Summary() models.Summary {
	return e.store.Summary()
}

// Budgets returns the latest budget records.
func (e *Engine) Budgets() []models.BudgetRecord {
	return e.store.Budgets()
}

// Policies returns the latest policy evaluation.
func (e *Engine) Policies() []models.PolicyRecord {
	return e.store.Policies()
}

// DomainHealth reports per-domain staleness so the presentation layer
// can show last-known-good data with an explicit error indicator.
func (e *Engine) DomainHealth() []DomainStatus {
	view := e.poller.Snapshot()
	domains := []poller.Domain{
		poller.DomainCluster, poller.DomainPods, poller.DomainNodes,
		poller.DomainBudgets, poller.DomainSavings, poller.DomainEfficiency,
	}
	statuses := make([]DomainStatus, 0, len(domains))
	for _, domain := range domains {
		status := DomainStatus{Domain: domain, LastUpdated: view.Updated[domain]}
		if err := view.Errors[domain]; err != nil {
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}
