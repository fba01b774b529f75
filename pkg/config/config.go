package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	// Snapshot source
	Source        string // kube, prometheus
	PrometheusURL string
	Kubeconfig    string

	// Poll cadence per domain group
	HealthInterval time.Duration // cluster stats, pods, nodes
	CostInterval   time.Duration // budgets, savings, efficiency

	// Rule thresholds
	CPUHighRatio     float64 // usage/capacity ratio that raises cpu-high
	MemHighRatio     float64
	RestartThreshold int // restarts above which a pod counts as crash-looping

	// Budget
	DefaultBudgetUSD float64 // monthly budget assumed per namespace

	// Storage (recommendation history, optional)
	StorageEnabled bool
	DatabaseURL    string

	// HTTP
	ListenAddr  string
	MetricsAddr string

	// Output
	OutputFormat string // text, json
	LogLevel     string
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		Source:           getEnv("INSIGHT_SOURCE", "kube"),
		PrometheusURL:    getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		Kubeconfig:       getEnv("KUBECONFIG", ""),
		HealthInterval:   getEnvDuration("HEALTH_INTERVAL", 30*time.Second),
		CostInterval:     getEnvDuration("COST_INTERVAL", 60*time.Second),
		CPUHighRatio:     getEnvFloat("CPU_HIGH_RATIO", 0.8),
		MemHighRatio:     getEnvFloat("MEM_HIGH_RATIO", 0.8),
		RestartThreshold: getEnvInt("RESTART_THRESHOLD", 3),
		DefaultBudgetUSD: getEnvFloat("DEFAULT_BUDGET_USD", 5000),
		StorageEnabled:   getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:      getEnv("DATABASE_URL", "host=localhost port=5432 user=insight password=devpassword dbname=insight sslmode=disable"),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:      getEnv("METRICS_ADDR", ":9095"),
		OutputFormat:     getEnv("OUTPUT_FORMAT", "text"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Source != "kube" && c.Source != "prometheus" {
		return fmt.Errorf("source must be kube or prometheus, got %q", c.Source)
	}
	if c.Source == "prometheus" && c.PrometheusURL == "" {
		return fmt.Errorf("PROMETHEUS_URL must be set when source is prometheus")
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	if c.HealthInterval < time.Second {
		return fmt.Errorf("health interval must be at least 1s")
	}
	if c.CostInterval < time.Second {
		return fmt.Errorf("cost interval must be at least 1s")
	}
	if c.CPUHighRatio <= 0 || c.CPUHighRatio > 1 {
		return fmt.Errorf("cpu high ratio must be in (0, 1]")
	}
	if c.MemHighRatio <= 0 || c.MemHighRatio > 1 {
		return fmt.Errorf("mem high ratio must be in (0, 1]")
	}
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("output format must be text or json")
	}
	return nil
}
