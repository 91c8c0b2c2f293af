package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ETFQuant/internal/config"
	"ETFQuant/internal/logging"
	"ETFQuant/internal/pipeline"
	"ETFQuant/internal/recorder"
	"ETFQuant/internal/scheduler"
	"ETFQuant/internal/updater"
)

var versionString = "0.3.0"

var (
	configFile string
	logLevel   string
	codesFlag  string
	sourceFlag string
	noRemote   bool
	quiet      bool
	runsLimit  int
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	defaultConfig := "configs/config.yaml"
	if v := os.Getenv("ETFQ_CONFIG"); v != "" {
		defaultConfig = v
	}

	rootCmd := &cobra.Command{
		Use:           "etfquant",
		Short:         "Daily ETF moving-average and weekly MACD statistics",
		Long:          `etfquant fetches the daily history of a fixed ETF universe, computes the 60-day SMA relation and weekly MACD signals, and merges one row per fund per trading day into a CSV dataset kept in a GitHub repository.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfig, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Run one daily update now",
		RunE:  runUpdate,
	}
	updateCmd.Flags().StringVar(&codesFlag, "codes", "", "Comma-separated codes overriding the configured universe")
	updateCmd.Flags().StringVar(&sourceFlag, "source", "", "Quote source (sina, yahoo)")
	updateCmd.Flags().BoolVar(&noRemote, "no-remote", false, "Only update the local cache")
	updateCmd.Flags().BoolVar(&quiet, "quiet", false, "Do not draw the progress bar")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily update on the configured schedule",
		RunE:  runServe,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent run history",
		RunE:  runRuns,
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Number of runs to show")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("etfquant version %s\n", versionString)
		},
	}

	rootCmd.AddCommand(updateCmd, serveCmd, runsCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if codesFlag != "" {
		cfg.Universe.Codes = strings.Split(codesFlag, ",")
		cfg.Universe.File = ""
	}
	if sourceFlag != "" {
		cfg.Source.Kind = sourceFlag
	}
	if noRemote {
		cfg.GitHub.Token = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink pipeline.Sink
	if !quiet {
		sink = progressBar(os.Stderr)
	}
	rep, err := a.updater.Run(ctx, sink)
	if sink != nil {
		fmt.Fprintln(os.Stderr)
	}
	fmt.Print(updater.FormatSummary(rep))
	if err != nil {
		return err
	}
	switch rep.Outcome {
	case updater.OutcomeConflict, updater.OutcomeTransportFailure:
		return fmt.Errorf("dataset not persisted: %s", rep.Outcome)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info("etfquant starting...")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, loc, func(ctx context.Context) {
		rep, err := a.updater.Run(ctx, nil)
		if err != nil {
			logger.WithError(err).Error("daily update aborted")
			return
		}
		logger.Info("\n" + updater.FormatSummary(rep))
	}, logger)
	if err := sched.RegisterDaily(cfg.Schedule.DailyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, executing daily update now")
		go sched.RunNow()
	}

	logger.WithField("next", sched.Next().Format(time.RFC3339)).Info("etfquant is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping...")
	cancel()
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger := logging.New("warn", cfg.Log.Format)

	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer rec.Close()

	runs, err := rec.RecentRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	fmt.Printf("%-19s  %-10s  %-9s  %-17s  %-8s  %s\n", "STARTED", "AS OF", "COVERED", "OUTCOME", "ATTEMPTS", "DURATION")
	for _, r := range runs {
		fmt.Printf("%-19s  %-10s  %4d/%-4d  %-17s  %-8d  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.AsOf, r.Covered, r.Total,
			r.Outcome, r.Attempts, r.Duration().Round(time.Second))
	}

	counts, err := rec.FailureCounts()
	if err != nil {
		return err
	}
	codes := topFailures(counts, runsLimit)
	if len(codes) == 0 {
		return nil
	}
	fmt.Printf("\n%-8s  %s\n", "CODE", "FAILED RUNS")
	for _, code := range codes {
		fmt.Printf("%-8s  %d\n", code, counts[code])
	}
	return nil
}

// topFailures orders codes by failed-run count, most first, ties by code.
func topFailures(counts map[string]int, limit int) []string {
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})
	if limit > 0 && len(codes) > limit {
		codes = codes[:limit]
	}
	return codes
}
