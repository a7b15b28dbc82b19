package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cfbotcore/pipeline/internal/config"
	"github.com/cfbotcore/pipeline/internal/notifier"
	"github.com/cfbotcore/pipeline/internal/pipeline"
	"github.com/cfbotcore/pipeline/internal/pipeline/localdrivers"
	"github.com/cfbotcore/pipeline/internal/storage/sqlite"
	"github.com/cfbotcore/pipeline/internal/ticker"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single queue-advance-and-step cycle, then exit",
	Long: `tick runs exactly one iteration of what serve loops on: advance the
queue cursor, create any missing branches, and step the Engine once for every
in-flight branch. Useful for cron-driven deployments that don't want a
resident process.`,
	RunE: runTick,
}

func init() {
	rootCmd.AddCommand(tickCmd)
}

func runTick(_ *cobra.Command, _ []string) error {
	cleanup, err := initLogging("cfbotcore-tick")
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

	driverCfg := localdrivers.Config{
		BaseDir:          cfg.LocalPatchBurnerDir,
		TemplateDir:      cfg.TemplateRepoDir,
		FileFetchURLBase: cfg.FileFetchURLBase,
		ApplyScriptSrc:   cfg.ApplyScriptPath,
		Ledger:           ledgerRepo,
	}

	n := &notifier.Notifier{
		Queue:    q,
		Branches: branchRepo,
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

	tck := ticker.New(q, branchRepo, ledgerRepo, engine, cfg.TickInterval)
	tck.TickOnce(ctx)

	if err := queueRepo.Save(ctx, q, "default"); err != nil {
		return fmt.Errorf("persisting queue: %w", err)
	}

	fmt.Println("tick complete")
	return nil
}
