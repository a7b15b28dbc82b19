package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cfbotcore/pipeline/internal/pipeline"
)

// WebhookSink posts a JSON payload describing the tested branch to a
// configured URL — the generic half of the abstract "hook for
// outbound notification (email/webhook)".
type WebhookSink struct {
	URL    string
	Client *http.Client
}

type webhookPayload struct {
	PatchID  string `json:"patch_id"`
	BranchID string `json:"branch_id"`
	Status   string `json:"status"`
	CommitID string `json:"commit_id"`
}

func (w *WebhookSink) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (w *WebhookSink) Notify(ctx context.Context, b *pipeline.Branch) error {
	if w.URL == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		PatchID:  b.PatchID,
		BranchID: b.BranchID,
		Status:   string(b.Status),
		CommitID: b.CommitID,
	})
	if err != nil {
		return fmt.Errorf("webhook sink: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client().Do(req)
	if err != nil {
		return fmt.Errorf("webhook sink: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook sink: unexpected status %d", resp.StatusCode)
	}
	return nil
}
