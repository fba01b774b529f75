package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/opsignal/k8s-insight/pkg/api"
	"github.com/opsignal/k8s-insight/pkg/config"
	"github.com/opsignal/k8s-insight/pkg/datasource"
	"github.com/opsignal/k8s-insight/pkg/engine"
	"github.com/opsignal/k8s-insight/pkg/exporter"
	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/output"
	"github.com/opsignal/k8s-insight/pkg/pricing"
	"github.com/opsignal/k8s-insight/pkg/rules"
	"github.com/opsignal/k8s-insight/pkg/scoring"
	"github.com/opsignal/k8s-insight/pkg/storage"
	"github.com/opsignal/k8s-insight/pkg/store"
)

var version = "dev"

var (
	// Scan flags
	outputFormat string
	kindFilter   string
	provider     string
	region       string

	// History command vars
	historyLimit int

	// Global config
	cfg *config.Config
)

func main() {
	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()
	cfg = config.NewConfig()

	var rootCmd = &cobra.Command{
		Use:   "insight",
		Short: "Kubernetes cost and health insight engine",
		Long:  `Derive alerts and savings recommendations from live cluster telemetry.`,
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one evaluation cycle and print the results",
		Run:   runScan,
	}
	scanCmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: text, json")
	scanCmd.Flags().StringVar(&kindFilter, "kind", "", "Alert kind filter: health, efficiency, policy, budget")
	scanCmd.Flags().StringVar(&provider, "provider", "", "Cloud provider: aws, azure, gcp (auto-detect if empty)")
	scanCmd.Flags().StringVar(&region, "region", "", "Cloud region (e.g., us-east-1, eastus)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the HTTP API and metrics endpoint",
		Run:   runServe,
	}
	serveCmd.Flags().StringVar(&provider, "provider", "", "Cloud provider: aws, azure, gcp (auto-detect if empty)")
	serveCmd.Flags().StringVar(&region, "region", "", "Cloud region")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View past recommendations from storage",
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of recommendations to show")

	auditCmd := &cobra.Command{
		Use:   "audit <recommendation-id>",
		Short: "View the audit log for a recommendation",
		Args:  cobra.ExactArgs(1),
		Run:   runAudit,
	}

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildSource constructs the configured snapshot source and the unit
// rates resolved from cloud pricing.
func buildSource(ctx context.Context, logger *slog.Logger) (datasource.SnapshotSource, scoring.UnitRates, error) {
	pricingCfg := &pricing.Config{Provider: provider, Region: region}

	if cfg.Source == "prometheus" {
		rates, err := pricing.NewProvider(ctx, nil, pricingCfg).Rates(ctx)
		if err != nil {
			return nil, scoring.UnitRates{}, fmt.Errorf("failed to resolve pricing: %w", err)
		}
		source, err := datasource.NewPrometheusSource(cfg.PrometheusURL, rates, cfg.DefaultBudgetUSD)
		if err != nil {
			return nil, scoring.UnitRates{}, err
		}
		return source, rates, nil
	}

	clientset, metricsClient, err := datasource.NewClients(cfg.Kubeconfig)
	if err != nil {
		return nil, scoring.UnitRates{}, err
	}
	pricingProvider := pricing.NewProvider(ctx, clientset, pricingCfg)
	rates, err := pricingProvider.Rates(ctx)
	if err != nil {
		return nil, scoring.UnitRates{}, fmt.Errorf("failed to resolve pricing: %w", err)
	}
	logger.Info("pricing resolved",
		slog.String("provider", pricingProvider.Name()),
		slog.Float64("cpu_per_core_month", rates.CPUPerCore),
	)
	return datasource.NewKubeSourceFromClients(clientset, metricsClient, rates, cfg.DefaultBudgetUSD), rates, nil
}

func newEngine(ctx context.Context, logger *slog.Logger, history storage.Store) (*engine.Engine, error) {
	source, rates, err := buildSource(ctx, logger)
	if err != nil {
		return nil, err
	}
	return engine.New(source, engine.Options{
		Thresholds: rules.Thresholds{
			CPUHighRatio:     cfg.CPUHighRatio,
			MemHighRatio:     cfg.MemHighRatio,
			RestartThreshold: cfg.RestartThreshold,
		},
		Rates:          rates,
		Logger:         logger,
		History:        history,
		HealthInterval: cfg.HealthInterval,
		CostInterval:   cfg.CostInterval,
	}), nil
}

func runScan(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	format := cfg.OutputFormat
	if outputFormat != "" {
		format = outputFormat
	}

	logger := newLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eng, err := newEngine(ctx, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := eng.RefreshNow(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	handler := output.New(format)
	if err := handler.DisplayAlerts(ctx, eng.ListAlerts(models.AlertKind(kindFilter))); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := handler.DisplayRecommendations(ctx, eng.ListRecommendations(store.RecommendationFilter{})); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := handler.DisplaySummary(ctx, eng.Summary()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history storage.Store
	if cfg.StorageEnabled {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize storage: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		history = pg
	}

	eng, err := newEngine(ctx, logger, history)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	eng.Start()
	defer eng.Stop()

	promExporter := exporter.NewPrometheusExporter()
	go func() {
		ticker := time.NewTicker(cfg.HealthInterval)
		defer ticker.Stop()
		for {
			promExporter.Update(eng)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	apiMux := http.NewServeMux()
	api.NewHandler(eng, version).Register(apiMux)
	apiServer := &http.Server{Addr: cfg.ListenAddr, Handler: apiMux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promExporter.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("api listening", slog.String("addr", cfg.ListenAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", slog.String("error", err.Error()))
			stop()
		}
	}()
	go func() {
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

func runHistory(cmd *cobra.Command, args []string) {
	pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize storage: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := pg.ListRecommendations(ctx, historyLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("No stored recommendations")
		return
	}
	for i, rec := range recs {
		status := "open"
		if rec.Implemented {
			status = "implemented"
		}
		fmt.Printf("%d. [%s] %s ($%.2f/yr, %s)\n", i+1, rec.Priority, rec.Title, rec.EstimatedAnnualSavings, status)
	}
}

func runAudit(cmd *cobra.Command, args []string) {
	pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize storage: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := pg.GetAuditLog(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries")
		return
	}
	for _, entry := range entries {
		fmt.Printf("%s  %s  %s\n", entry.ExecutedAt.Format(time.RFC3339), entry.Action, entry.RecommendationID)
	}
}
