package notifier

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/cfbotcore/pipeline/internal/pipeline"
)

// SlackSink posts a message to a Slack channel when a branch reaches
// `tested`.
type SlackSink struct {
	Client  *slack.Client
	Channel string
}

// NewSlackSink constructs a sink posting to channel using token.
func NewSlackSink(token, channel string) *SlackSink {
	return &SlackSink{Client: slack.New(token), Channel: channel}
}

func (s *SlackSink) Notify(ctx context.Context, b *pipeline.Branch) error {
	if s.Client == nil || s.Channel == "" {
		return nil
	}

	text := fmt.Sprintf("patch %s (branch %s) reached `%s`", b.PatchID, b.BranchID, b.Status)
	if b.CommitID != "" {
		text += fmt.Sprintf(" — commit %s", b.CommitID)
	}

	_, _, err := s.Client.PostMessageContext(ctx, s.Channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack sink: post message: %w", err)
	}
	return nil
}
