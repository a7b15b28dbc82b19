package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cfbotcore/pipeline/internal/storage/sqlite"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Dump the ring queue's current order as YAML",
	RunE:  runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

// queueItemView is the YAML-friendly projection of a queue.Item; it
// drops the internal Prev/Next link fields since the dump's ordering
// already conveys ring position.
type queueItemView struct {
	PatchID   string `yaml:"patch_id"`
	MessageID string `yaml:"message_id"`
	Ignored   bool   `yaml:"ignored"`
	Processed bool   `yaml:"processed"`
}

func runQueue(_ *cobra.Command, _ []string) error {
	db, err := sqlite.NewDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	queueRepo := sqlite.NewQueueRepo(db)
	q, err := queueRepo.Load(context.Background(), "default")
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}

	items := q.All()
	views := make([]queueItemView, 0, len(items))
	for _, item := range items {
		views = append(views, queueItemView{
			PatchID:   item.PatchID,
			MessageID: item.MessageID,
			Ignored:   item.IgnoredAt != nil,
			Processed: item.ProcessedAt != nil,
		})
	}

	out, err := yaml.Marshal(views)
	if err != nil {
		return fmt.Errorf("rendering queue as yaml: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
