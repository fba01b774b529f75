package pricing

import (
	"context"

	"github.com/opsignal/k8s-insight/pkg/scoring"
)

const mibPerGiB = 1024.0

// DefaultProvider provides fallback pricing for on-prem or unknown
// clouds.
type DefaultProvider struct {
	cpuCost    float64 // USD per core-month
	memoryCost float64 // USD per GiB-month
}

func NewDefaultProvider(cpuCost, memoryCost float64) *DefaultProvider {
	if cpuCost == 0 {
		cpuCost = 23.0 // Conservative default
	}
	if memoryCost == 0 {
		memoryCost = 3.0
	}
	return &DefaultProvider{
		cpuCost:    cpuCost,
		memoryCost: memoryCost,
	}
}

func (d *DefaultProvider) Name() string {
	return "default"
}

func (d *DefaultProvider) Rates(ctx context.Context) (scoring.UnitRates, error) {
	return scoring.UnitRates{
		CPUPerCore:   d.cpuCost,
		MemoryPerMiB: d.memoryCost / mibPerGiB,
	}, nil
}
