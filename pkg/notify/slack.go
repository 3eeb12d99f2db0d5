// Package notify is the ops notification adapter: it posts to Slack
// when a job reaches a terminal FAILED state, the one ambient concern
// SPEC_FULL.md adds beyond the core pipeline (spec's per-job history
// is otherwise just the job record itself — see spec.md §8).
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/stewart-y/photopipeline/pkg/state"
)

// Notifier posts job lifecycle events to an ops channel.
type Notifier interface {
	JobFailed(ctx context.Context, job state.Job) error
}

// SlackNotifier posts terminal job failures to a Slack channel via an
// incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	logger     *zap.Logger
}

// NewSlackNotifier builds a SlackNotifier. webhookURL is the Slack
// incoming-webhook URL; channel overrides the webhook's default
// channel when non-empty.
func NewSlackNotifier(webhookURL, channel string, logger *zap.Logger) *SlackNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackNotifier{webhookURL: webhookURL, channel: channel, logger: logger}
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) JobFailed(ctx context.Context, job state.Job) error {
	if n.webhookURL == "" {
		return nil // notification is best-effort; an unconfigured webhook is not an error
	}

	msg := &slack.WebhookMessage{
		Channel: n.channel,
		Text: fmt.Sprintf("Job %s for SKU %s failed: %s (%s) after %d attempt(s)",
			job.ID, job.SKU, job.ErrorMessage, job.ErrorCode, job.Attempt),
	}

	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		n.logger.Warn("slack notification failed", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}

// NoopNotifier discards every event, used when no webhook is
// configured and the caller still wants a non-nil Notifier.
type NoopNotifier struct{}

func (NoopNotifier) JobFailed(ctx context.Context, job state.Job) error { return nil }

var _ Notifier = NoopNotifier{}
