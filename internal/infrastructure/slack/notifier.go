package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	slackapi "github.com/slack-go/slack"

	"NoteSalesTracker/internal/ports"
)

// Notifier posts operator messages to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the webhook; client may be nil.
func NewNotifier(webhookURL string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{webhookURL: webhookURL, client: client}
}

// Notify posts the message prefixed with the level emoji.
func (n *Notifier) Notify(ctx context.Context, level ports.Level, message string) error {
	if n.webhookURL == "" {
		return errors.New("slack webhook not configured")
	}

	msg := &slackapi.WebhookMessage{Text: level.Emoji() + " " + message}
	if err := slackapi.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}
