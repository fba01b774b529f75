package pricing

import (
	"context"

	"github.com/opsignal/k8s-insight/pkg/scoring"
)

// Provider supplies the unit rates that price savings estimates and
// budget spend. Rates are monthly USD figures.
type Provider interface {
	Rates(ctx context.Context) (scoring.UnitRates, error)
	Name() string
}

type Config struct {
	Provider      string // aws, azure, gcp, default; auto-detect when empty
	Region        string
	DefaultCPU    float64 // USD per core-month
	DefaultMemory float64 // USD per GiB-month
}
