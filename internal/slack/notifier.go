package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
)

type Notifier struct {
	client    *slack.Client
	channelID string
	timeout   time.Duration
}

func NewNotifier(client *slack.Client, channelID string, timeout time.Duration) *Notifier {
	return &Notifier{client: client, channelID: channelID, timeout: timeout}
}

// NotifyDispatch posts a dispatch alert and returns the thread timestamp of the new incident thread.
func (n *Notifier) NotifyDispatch(ctx context.Context, in *DispatchAlertBlocksInput) (string, error) {
	ts, err := n.send(ctx, slack.MsgOptionBlocks(BuildDispatchAlertBlocks(in)...))
	if err != nil {
		return "", fmt.Errorf("failed to post dispatch alert: %w", err)
	}
	return ts, nil
}

func (n *Notifier) PostFollowUp(ctx context.Context, threadTS string, in *FollowUpBlocksInput) error {
	_, err := n.send(ctx,
		slack.MsgOptionBlocks(BuildFollowUpBlocks(in)...),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return fmt.Errorf("failed to post follow-up to thread %s: %w", threadTS, err)
	}
	return nil
}

func (n *Notifier) PostIncidentClosed(ctx context.Context, threadTS string, in *IncidentClosedBlocksInput) error {
	_, err := n.send(ctx,
		slack.MsgOptionBlocks(BuildIncidentClosedBlocks(in)...),
		slack.MsgOptionTS(threadTS),
		slack.MsgOptionBroadcast(),
	)
	if err != nil {
		return fmt.Errorf("failed to post incident closed to thread %s: %w", threadTS, err)
	}
	return nil
}

// send posts once and, when Slack rate limits the call, waits for RetryAfter and posts again.
func (n *Notifier) send(ctx context.Context, options ...slack.MsgOption) (string, error) {
	ts, err := n.post(ctx, options...)
	if err == nil {
		return ts, nil
	}

	var rateLimited *slack.RateLimitedError
	if !errors.As(err, &rateLimited) || !rateLimited.Retryable() {
		return "", err
	}

	slog.Warn("slack rate limited, retrying", slog.String("error", err.Error()), slog.Duration("retry_after", rateLimited.RetryAfter))
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(rateLimited.RetryAfter):
	}

	return n.post(ctx, options...)
}

func (n *Notifier) post(ctx context.Context, options ...slack.MsgOption) (string, error) {
	sendMessageCtx, sendMessageCancel := context.WithTimeout(ctx, n.timeout)
	defer sendMessageCancel()

	_, ts, _, err := n.client.SendMessageContext(sendMessageCtx, n.channelID, options...)
	return ts, err
}
