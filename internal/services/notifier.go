package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"lead-console/internal/models"
	"lead-console/internal/utils"
	"lead-console/internal/wsnotify"
)

// Notifier delivers a message, with an optional action button, to an opaque
// target. Errors are reported, never retried by the caller.
type Notifier interface {
	Notify(ctx context.Context, target, message string, action *models.Button) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, target, message string, action *models.Button) error

func (f NotifierFunc) Notify(ctx context.Context, target, message string, action *models.Button) error {
	return f(ctx, target, message, action)
}

var ErrNoRoute = errors.New("no notifier for target")

// NotifierRouter picks a sink from the shape of the target: an http(s) URL
// goes to the webhook notifier, "ws:<channel>" to the live feed and anything
// else to the chat transport.
type NotifierRouter struct {
	Webhook Notifier
	Feed    Notifier
	Chat    Notifier
}

func (r *NotifierRouter) Notify(ctx context.Context, target, message string, action *models.Button) error {
	var sink Notifier
	switch {
	case utils.IsURL(target):
		sink = r.Webhook
	case utils.IsWebSocketTarget(target):
		sink = r.Feed
	default:
		sink = r.Chat
	}
	if sink == nil {
		return fmt.Errorf("%w: %q", ErrNoRoute, target)
	}
	return sink.Notify(ctx, target, message, action)
}

type webhookPayload struct {
	Message string         `json:"message"`
	Action  *models.Button `json:"action,omitempty"`
	SentAt  string         `json:"sent_at"`
}

// WebhookNotifier posts reminders as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	client *resty.Client
	logger *zap.Logger
}

func NewWebhookNotifier(timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &WebhookNotifier{client: client, logger: logger}
}

func (n *WebhookNotifier) Notify(ctx context.Context, target, message string, action *models.Button) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			Message: message,
			Action:  action,
			SentAt:  time.Now().UTC().Format(time.RFC3339),
		}).
		Post(target)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		n.logger.Warn("webhook rejected notification",
			zap.String("target", target),
			zap.Int("status_code", resp.StatusCode()))
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// FeedNotifier broadcasts notices to websocket dashboards.
type FeedNotifier struct{}

func (FeedNotifier) Notify(_ context.Context, target, message string, action *models.Button) error {
	channel := strings.TrimPrefix(target, utils.WebSocketTargetPrefix)
	label, token := "", ""
	if action != nil {
		label, token = action.Label, action.Action
	}
	wsnotify.SendNotice(channel, message, label, token)
	return nil
}
