package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cfbotcore/pipeline/internal/storage/sqlite"
)

var enqueueMessageID string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <patch-id>",
	Short: "Insert a patch set into the ring queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringVar(&enqueueMessageID, "message-id", "", "mail-archive message ID for the submission (required)")
	_ = enqueueCmd.MarkFlagRequired("message-id")
}

func runEnqueue(_ *cobra.Command, args []string) error {
	patchID := args[0]

	db, err := sqlite.NewDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	queueRepo := sqlite.NewQueueRepo(db)
	ctx := context.Background()
	q, err := queueRepo.Load(ctx, "default")
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}

	item, err := q.Insert(patchID, enqueueMessageID)
	if err != nil {
		return fmt.Errorf("inserting patch %s: %w", patchID, err)
	}

	if err := queueRepo.Save(ctx, q, "default"); err != nil {
		return fmt.Errorf("persisting queue: %w", err)
	}

	fmt.Printf("enqueued patch %s as queue item %d\n", item.PatchID, item.ID)
	return nil
}
