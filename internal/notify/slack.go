package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier delivers intents to Slack. Kind-to-channel routing:
// NEW_MESSAGE to the support channel, ESCALATION to the alerting channel,
// CLOSURE to the logging channel. Deliveries are retried with exponential
// backoff; a rate-limited response waits the server-provided interval.
type SlackNotifier struct {
	client     slackClient
	cfg        config.SlackConfig
	logger     *zap.Logger
	sleep      func(time.Duration)
	maxRetries int
}

// NewSlackNotifier creates the notifier from configuration.
func NewSlackNotifier(cfg config.SlackConfig, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		client:     slackapi.New(cfg.BotToken),
		cfg:        cfg,
		logger:     logger,
		sleep:      time.Sleep,
		maxRetries: cfg.MaxRetries,
	}
}

// newSlackNotifierWithClient injects a mock client for tests.
func newSlackNotifierWithClient(client slackClient, cfg config.SlackConfig, logger *zap.Logger) *SlackNotifier {
	n := NewSlackNotifier(cfg, logger)
	n.client = client
	n.sleep = func(time.Duration) {}
	return n
}

// Notify formats and posts the intent to its target channel.
func (n *SlackNotifier) Notify(ctx context.Context, intent Intent) error {
	channel := n.channelFor(intent.Kind)
	if channel == "" {
		n.logger.Error("no slack channel configured for notification kind",
			zap.String("kind", string(intent.Kind)))
		return fmt.Errorf("slack: no channel configured for kind %s", intent.Kind)
	}

	text := formatIntent(intent)

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		_, _, err := n.client.PostMessageContext(ctx, channel, slackapi.MsgOptionText(text, false))
		if err == nil {
			if attempt > 0 {
				n.logger.Info("slack delivery succeeded after retry",
					zap.String("kind", string(intent.Kind)), zap.Int("attempts", attempt+1))
			}
			return nil
		}
		lastErr = err

		var rateErr *slackapi.RateLimitedError
		if errors.As(err, &rateErr) {
			delay := rateErr.RetryAfter
			if delay <= 0 || delay > n.cfg.RetryMaxDelay {
				delay = n.cfg.RetryMaxDelay
			}
			n.logger.Warn("slack rate limited", zap.Duration("retry_after", delay))
			n.sleep(delay)
			continue
		}

		if attempt < n.maxRetries {
			delay := n.cfg.RetryBaseDelay << attempt
			if delay > n.cfg.RetryMaxDelay {
				delay = n.cfg.RetryMaxDelay
			}
			n.logger.Warn("slack delivery failed, retrying",
				zap.String("kind", string(intent.Kind)),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			n.sleep(delay)
		}
	}

	n.logger.Error("slack delivery failed",
		zap.String("kind", string(intent.Kind)),
		zap.String("case_id", intent.CaseID),
		zap.Error(lastErr))
	return lastErr
}

func (n *SlackNotifier) channelFor(kind IntentKind) string {
	switch kind {
	case IntentNewMessage:
		return n.cfg.SupportChannel
	case IntentEscalation:
		return n.cfg.AlertingChannel
	case IntentClosure:
		return n.cfg.LoggingChannel
	default:
		return ""
	}
}

func formatIntent(intent Intent) string {
	switch intent.Kind {
	case IntentEscalation:
		return fmt.Sprintf("🚨 *ESCALATION ALERT*\nCase #%s for %s\nReason: %s",
			intent.CaseID, intent.CustomerIdentity, triggerReason(intent.Trigger))
	case IntentClosure:
		return fmt.Sprintf("Case #%s for %s closed at %s",
			intent.CaseID, intent.CustomerIdentity, intent.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	default:
		return fmt.Sprintf("*%s* (Case #%s):\n%s",
			intent.CustomerIdentity, shortID(intent.CaseID), intent.Excerpt)
	}
}

func triggerReason(trigger domain.EscalationTrigger) string {
	switch trigger {
	case domain.TriggerTime:
		return "customer message unanswered beyond the time threshold"
	case domain.TriggerCount:
		return "repeated customer follow-ups without an admin reply"
	case domain.TriggerKeyword:
		return "urgent keywords detected in message"
	default:
		return string(trigger)
	}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
