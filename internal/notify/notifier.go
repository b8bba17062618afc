// Package notify defines the notification intents the lifecycle engine
// emits and the dispatchers that deliver them. Delivery failure is the
// dispatcher's own failure domain; it is never surfaced to the engine.
package notify

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
)

// IntentKind enumerates the notification kinds the engine raises.
type IntentKind string

const (
	IntentNewMessage IntentKind = "NEW_MESSAGE"
	IntentEscalation IntentKind = "ESCALATION"
	IntentClosure    IntentKind = "CLOSURE"
)

// Intent is a notification the engine asks the dispatcher to deliver.
// Trigger is set only for ESCALATION intents.
type Intent struct {
	Kind             IntentKind
	CaseID           string
	CustomerIdentity string
	Trigger          domain.EscalationTrigger
	Excerpt          string
	Timestamp        time.Time
}

// Notifier delivers notification intents to their target channel.
type Notifier interface {
	Notify(ctx context.Context, intent Intent) error
}

// LogNotifier writes intents to the structured log. Used when no Slack
// token is configured and as the delivery target for environments without
// external channels.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the intent.
func (n *LogNotifier) Notify(_ context.Context, intent Intent) error {
	n.logger.Info("notification",
		zap.String("kind", string(intent.Kind)),
		zap.String("case_id", intent.CaseID),
		zap.String("customer", intent.CustomerIdentity),
		zap.String("trigger", string(intent.Trigger)),
		zap.String("excerpt", intent.Excerpt))
	return nil
}

const excerptLimit = 200

// Excerpt shortens a message body for notification payloads. The cut backs
// off to a rune boundary so the excerpt stays valid UTF-8.
func Excerpt(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= excerptLimit {
		return body
	}
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
