package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cfbotcore/pipeline/internal/config"
	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/notifier"
	"github.com/cfbotcore/pipeline/internal/pipeline"
	"github.com/cfbotcore/pipeline/internal/pipeline/localdrivers"
	"github.com/cfbotcore/pipeline/internal/storage/sqlite"
	"github.com/cfbotcore/pipeline/internal/telemetry"
	"github.com/cfbotcore/pipeline/internal/ticker"
)

var (
	serveTracing bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ticker loop that drains the queue and steps branches",
	Long: `serve is the long-running daemon: it loads the ring queue and every
branch's state from sqlite, then ticks on an interval, advancing the queue's
cursor and stepping the Engine for every in-flight branch.

Example:
  cfbotcore serve
  cfbotcore serve --trace`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveTracing, "trace", false, "emit OpenTelemetry spans to stdout for every engine step")
}

func runServe(_ *cobra.Command, _ []string) error {
	cleanup, err := initLogging("cfbotcore-serve")
	if err != nil {
		return err
	}
	defer cleanup()

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := sqlite.NewDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	queueRepo := sqlite.NewQueueRepo(db)
	ledgerRepo := sqlite.NewLedgerRepo(db)
	branchRepo := sqlite.NewBranchRepo(db)

	ctx := context.Background()
	q, err := queueRepo.Load(ctx, "default")
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}

	var branchStore pipeline.Store = pipeline.NewCachedStore(branchRepo)

	driverCfg := localdrivers.Config{
		BaseDir:          cfg.LocalPatchBurnerDir,
		TemplateDir:      cfg.TemplateRepoDir,
		FileFetchURLBase: cfg.FileFetchURLBase,
		ApplyScriptSrc:   cfg.ApplyScriptPath,
		Ledger:           ledgerRepo,
	}

	n := &notifier.Notifier{
		Queue:    q,
		Branches: branchStore,
		Ledger:   ledgerRepo,
		Sink:     buildSink(cfg.Notify),
	}

	engine := &pipeline.Engine{
		Applier:  localdrivers.NewApplier(driverCfg),
		Compiler: localdrivers.NewCompiler(driverCfg),
		Tester:   localdrivers.NewTester(driverCfg),
		Notifier: n,
		Ledger:   ledgerRepo,
	}

	var stepper ticker.Stepper = engine
	var shutdownTracing func(context.Context) error
	if serveTracing {
		provider, err := telemetry.NewProvider(telemetry.Config{
			Enabled:     true,
			Exporter:    "stdout",
			ServiceName: "cfbotcore",
		})
		if err != nil {
			return fmt.Errorf("starting tracer: %w", err)
		}
		stepper = pipeline.NewTracedEngine(engine, provider.Tracer())
		shutdownTracing = provider.Shutdown
	}

	tck := ticker.New(q, branchStore, ledgerRepo, stepper, cfg.TickInterval)

	var reloader *config.Reloader
	if viper.ConfigFileUsed() != "" {
		reloader, err = config.NewReloader(viper)
		if err != nil {
			log.Warn(log.CatConfig, "config hot-reload disabled", "error", err.Error())
		} else if err := reloader.Start(); err != nil {
			log.Warn(log.CatConfig, "config hot-reload disabled", "error", err.Error())
			reloader = nil
		} else {
			tck.WatchConfig(ctx, reloader)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go tck.Run(runCtx)

	fmt.Printf("cfbotcore serve started, ticking every %s\n", cfg.TickInterval)
	fmt.Println("Press Ctrl+C to stop")

	sig := <-sigCh
	fmt.Printf("\nreceived %s, shutting down...\n", sig)

	tck.Stop()
	cancel()
	if reloader != nil {
		_ = reloader.Stop()
	}
	if err := queueRepo.Save(context.Background(), q, "default"); err != nil {
		log.ErrorErr(log.CatDB, "failed to persist queue on shutdown", err)
	}
	if shutdownTracing != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdownTracing(shutdownCtx)
	}

	fmt.Println("cfbotcore serve stopped")
	return nil
}

func buildSink(nc config.NotifyConfig) notifier.Sink {
	sinks := []notifier.Sink{notifier.LogSink{}}
	if nc.WebhookURL != "" {
		sinks = append(sinks, &notifier.WebhookSink{URL: nc.WebhookURL})
	}
	if nc.SlackToken != "" && nc.SlackChannel != "" {
		sinks = append(sinks, notifier.NewSlackSink(nc.SlackToken, nc.SlackChannel))
	}
	return notifier.MultiSink{Sinks: sinks}
}
