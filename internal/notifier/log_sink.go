package notifier

import (
	"context"

	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/pipeline"
)

// LogSink simply records the tested event to the structured logger —
// the default sink when no webhook/Slack configuration is present.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, b *pipeline.Branch) error {
	log.Info(log.CatNotifier, "branch tested", "patch_id", b.PatchID, "branch_id", b.BranchID, "status", b.Status, "commit_id", b.CommitID)
	return nil
}
