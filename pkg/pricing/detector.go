package pricing

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// DetectProvider inspects node provider IDs and labels to identify the
// hosting cloud and region.
func DetectProvider(ctx context.Context, clientset kubernetes.Interface) (provider, region string, err error) {
	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return "", "", fmt.Errorf("failed to list nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return "", "", fmt.Errorf("no nodes found")
	}

	node := nodes.Items[0]
	switch {
	case strings.HasPrefix(node.Spec.ProviderID, "aws://"):
		provider = "aws"
	case strings.HasPrefix(node.Spec.ProviderID, "azure://"):
		provider = "azure"
	case strings.HasPrefix(node.Spec.ProviderID, "gce://"):
		provider = "gcp"
	default:
		return "", "", fmt.Errorf("unknown provider id %q", node.Spec.ProviderID)
	}

	region = node.Labels["topology.kubernetes.io/region"]
	if region == "" {
		region = node.Labels["failure-domain.beta.kubernetes.io/region"]
	}
	return provider, region, nil
}

// NewProvider creates a pricing provider from config, falling back to
// cluster auto-detection and then to default rates.
func NewProvider(ctx context.Context, clientset kubernetes.Interface, config *Config) Provider {
	provider := config.Provider
	region := config.Region

	if provider == "" && clientset != nil {
		detected, detectedRegion, err := DetectProvider(ctx, clientset)
		if err == nil {
			provider = detected
			if region == "" {
				region = detectedRegion
			}
		}
	}

	switch provider {
	case "aws", "azure", "gcp":
		return NewCloudProvider(provider, region)
	default:
		return NewDefaultProvider(config.DefaultCPU, config.DefaultMemory)
	}
}
