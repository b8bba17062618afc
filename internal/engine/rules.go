package engine

import (
	"strings"
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// Rule is a single stateless escalation predicate. Rules never track
// whether they fired before; dedup happens on the case's EscalatedReasons.
// latest is the message that triggered the evaluation and is nil on
// periodic ticks.
type Rule interface {
	Trigger() domain.EscalationTrigger
	Fires(c *domain.Case, latest *domain.Message, now time.Time) bool
}

// timeRule fires when the most recent customer message has been waiting
// beyond the threshold with no administrator reply.
type timeRule struct {
	threshold time.Duration
}

func (r timeRule) Trigger() domain.EscalationTrigger { return domain.TriggerTime }

func (r timeRule) Fires(c *domain.Case, _ *domain.Message, now time.Time) bool {
	if c.LastCustomerMessageAt.IsZero() {
		return false
	}
	// ConsecutiveCustomerMessages == 0 means an admin already replied to
	// the latest customer message.
	if c.ConsecutiveCustomerMessages == 0 {
		return false
	}
	return now.Sub(c.LastCustomerMessageAt) >= r.threshold
}

// countRule fires once the customer has sent the threshold number of
// consecutive messages with no administrator reply in between.
type countRule struct {
	threshold int
}

func (r countRule) Trigger() domain.EscalationTrigger { return domain.TriggerCount }

func (r countRule) Fires(c *domain.Case, _ *domain.Message, _ time.Time) bool {
	return c.ConsecutiveCustomerMessages >= r.threshold
}

// keywordRule fires when the triggering customer message contains any
// configured keyword, case-insensitively. Only the triggering message is
// inspected so old messages never fire retroactively.
type keywordRule struct {
	keywords []string
}

func (r keywordRule) Trigger() domain.EscalationTrigger { return domain.TriggerKeyword }

func (r keywordRule) Fires(_ *domain.Case, latest *domain.Message, _ time.Time) bool {
	if latest == nil || latest.SenderRole != domain.RoleCustomer {
		return false
	}
	body := strings.ToLower(latest.Body)
	for _, keyword := range r.keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(body, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// newRuleSet builds the full rule set from engine configuration.
func newRuleSet(cfg Config) []Rule {
	return []Rule{
		timeRule{threshold: cfg.EscalationAfter},
		countRule{threshold: cfg.FollowupThreshold},
		keywordRule{keywords: cfg.Keywords},
	}
}
