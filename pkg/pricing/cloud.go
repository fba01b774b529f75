package pricing

import (
	"context"

	"github.com/opsignal/k8s-insight/pkg/scoring"
)

// Baseline on-demand rates in USD per month, derived from general
// purpose instance families amortized per core / per GiB.
var cloudBaseRates = map[string]struct {
	cpu    float64 // per core-month
	memory float64 // per GiB-month
}{
	"aws":   {24.82, 3.38},
	"azure": {23.65, 3.20},
	"gcp":   {21.90, 2.94},
}

// Regional multipliers over the base (us-east style) rate. Unlisted
// regions use 1.0.
var regionMultipliers = map[string]float64{
	"us-east-1":       1.00,
	"us-west-2":       1.00,
	"eu-west-1":       1.08,
	"eu-central-1":    1.12,
	"ap-southeast-1":  1.15,
	"eastus":          1.00,
	"westeurope":      1.09,
	"southeastasia":   1.14,
	"us-central1":     1.00,
	"europe-west1":    1.07,
	"asia-southeast1": 1.13,
}

// CloudProvider prices against a static per-cloud rate table with a
// regional multiplier.
type CloudProvider struct {
	provider string
	region   string
}

func NewCloudProvider(provider, region string) *CloudProvider {
	return &CloudProvider{provider: provider, region: region}
}

func (c *CloudProvider) Name() string {
	return c.provider
}

func (c *CloudProvider) Rates(ctx context.Context) (scoring.UnitRates, error) {
	base, ok := cloudBaseRates[c.provider]
	if !ok {
		base = cloudBaseRates["aws"]
	}
	multiplier := 1.0
	if m, ok := regionMultipliers[c.region]; ok {
		multiplier = m
	}
	return scoring.UnitRates{
		CPUPerCore:   base.cpu * multiplier,
		MemoryPerMiB: base.memory * multiplier / mibPerGiB,
	}, nil
}
