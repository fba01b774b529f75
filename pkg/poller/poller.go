// Package poller schedules periodic and on-demand refreshes of the
// snapshot source, one independent cadence per telemetry domain. A
// failed fetch keeps the previously cached data for that domain and
// raises a domain-scoped error flag; it never halts other domains.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opsignal/k8s-insight/pkg/datasource"
	"github.com/opsignal/k8s-insight/pkg/models"
)

// Domain identifies one independently fetchable telemetry resource.
type Domain string

const (
	DomainCluster    Domain = "cluster"
	DomainPods       Domain = "pods"
	DomainNodes      Domain = "nodes"
	DomainBudgets    Domain = "budgets"
	DomainSavings    Domain = "savings"
	DomainEfficiency Domain = "efficiency"
)

// Default cadences: health-relevant domains poll fast, cost aggregates
// slowly.
const (
	DefaultHealthInterval = 30 * time.Second
	DefaultCostInterval   = 60 * time.Second
)

// FetchError wraps one domain's poll failure. It is non-fatal: the
// domain retries on its next scheduled tick.
type FetchError struct {
	Domain Domain
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Domain, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// View is a consistent joined read of every domain's last-known-good
// data, taken under one lock so the rule evaluator never sees a
// half-updated cycle. Errors carries the current per-domain error
// flags; Updated the time of each domain's last successful fetch.
type View struct {
	Stats      models.ClusterSnapshot
	Pods       []models.PodRecord
	Nodes      []models.NodeRecord
	Candidates []models.SavingsCandidate
	Efficiency models.EfficiencyMetrics
	Budgets    []models.BudgetRecord

	Errors  map[Domain]error
	Updated map[Domain]time.Time
}

// Poller runs the refresh schedule. Construct with New, register
// domains with Schedule, tear down with Cancel.
type Poller struct {
	source   datasource.SnapshotSource
	logger   *slog.Logger
	onUpdate func(Domain)

	mu      sync.Mutex
	view    View
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	domains []Domain
}

// New creates a poller over the given source. onUpdate, if non-nil, is
// invoked after every settled fetch (success or failure) with the
// domain that was polled; the engine uses it to trigger evaluation
// cycles.
func New(source datasource.SnapshotSource, logger *slog.Logger, onUpdate func(Domain)) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		logger:   logger,
		onUpdate: onUpdate,
		view: View{
			Errors:  make(map[Domain]error),
			Updated: make(map[Domain]time.Time),
		},
		stopCh: make(chan struct{}),
	}
}

// Schedule registers a recurring fetch for one domain. The domain is
// fetched once immediately, then on every interval tick until Cancel.
func (p *Poller) Schedule(domain Domain, interval time.Duration) {
	p.mu.Lock()
	p.domains = append(p.domains, domain)
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			p.fetch(context.Background(), domain)
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// RefreshNow fetches all registered domains concurrently and returns
// once every fetch has settled. Individual failures are flagged per
// domain and joined into the returned error; they never abort the
// remaining fetches.
func (p *Poller) RefreshNow(ctx context.Context) error {
	p.mu.Lock()
	domains := make([]Domain, len(p.domains))
	copy(domains, p.domains)
	p.mu.Unlock()

	var (
		group   errgroup.Group
		errMu   sync.Mutex
		settled []error
	)
	for _, domain := range domains {
		domain := domain
		group.Go(func() error {
			if err := p.fetch(ctx, domain); err != nil {
				errMu.Lock()
				settled = append(settled, err)
				errMu.Unlock()
			}
			// Never fail the group: all domains must settle.
			return nil
		})
	}
	_ = group.Wait()
	return errors.Join(settled...)
}

// Cancel stops all recurring timers and waits for in-flight loops to
// exit. Idempotent.
func (p *Poller) Cancel() {
	p.stop.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Snapshot returns a consistent copy of the cached view.
func (p *Poller) Snapshot() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := View{
		Stats:      p.view.Stats,
		Pods:       append([]models.PodRecord(nil), p.view.Pods...),
		Nodes:      append([]models.NodeRecord(nil), p.view.Nodes...),
		Candidates: append([]models.SavingsCandidate(nil), p.view.Candidates...),
		Efficiency: p.view.Efficiency,
		Budgets:    append([]models.BudgetRecord(nil), p.view.Budgets...),
		Errors:     make(map[Domain]error, len(p.view.Errors)),
		Updated:    make(map[Domain]time.Time, len(p.view.Updated)),
	}
	for domain, err := range p.view.Errors {
		view.Errors[domain] = err
	}
	for domain, at := range p.view.Updated {
		view.Updated[domain] = at
	}
	return view
}

// fetch polls one domain and commits the result. On failure the stale
// cache entry stays in place and only the error flag changes.
func (p *Poller) fetch(ctx context.Context, domain Domain) error {
	var (
		commit func()
		err    error
	)

	switch domain {
	case DomainCluster:
		var stats models.ClusterSnapshot
		stats, err = p.source.GetClusterStats(ctx)
		commit = func() { p.view.Stats = stats }
	case DomainPods:
		var pods []models.PodRecord
		pods, err = p.source.GetPods(ctx, "")
		commit = func() { p.view.Pods = pods }
	case DomainNodes:
		var nodes []models.NodeRecord
		nodes, err = p.source.GetNodes(ctx)
		commit = func() { p.view.Nodes = nodes }
	case DomainBudgets:
		var budgets []models.BudgetRecord
		budgets, err = p.source.GetBudgets(ctx)
		commit = func() { p.view.Budgets = budgets }
	case DomainSavings:
		var candidates []models.SavingsCandidate
		candidates, err = p.source.GetSavingsCandidates(ctx)
		commit = func() { p.view.Candidates = candidates }
	case DomainEfficiency:
		var efficiency models.EfficiencyMetrics
		efficiency, err = p.source.GetEfficiencyMetrics(ctx)
		commit = func() { p.view.Efficiency = efficiency }
	default:
		err = fmt.Errorf("unknown domain %q", domain)
	}

	p.mu.Lock()
	if err != nil {
		fetchErr := &FetchError{Domain: domain, Err: err}
		p.view.Errors[domain] = fetchErr
		p.mu.Unlock()
		p.logger.Warn("poll failed, keeping stale data",
			slog.String("domain", string(domain)), slog.String("error", err.Error()))
		p.notify(domain)
		return fetchErr
	}
	commit()
	p.view.Errors[domain] = nil
	p.view.Updated[domain] = time.Now()
	p.mu.Unlock()
	p.notify(domain)
	return nil
}

func (p *Poller) notify(domain Domain) {
	if p.onUpdate != nil {
		p.onUpdate(domain)
	}
}
