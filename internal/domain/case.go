package domain

import "time"

// CaseStatus enumerates lifecycle states for support cases.
type CaseStatus string

const (
	CaseStatusOpen      CaseStatus = "OPEN"
	CaseStatusEscalated CaseStatus = "ESCALATED"
	CaseStatusClosed    CaseStatus = "CLOSED"
)

// Active reports whether a case in this status still accepts threading
// and escalation. ESCALATED is a flagged sub-state of open; CLOSED is terminal.
func (s CaseStatus) Active() bool {
	return s == CaseStatusOpen || s == CaseStatusEscalated
}

// EscalationTrigger identifies which escalation rule fired for a case.
type EscalationTrigger string

const (
	TriggerTime    EscalationTrigger = "TIME"
	TriggerCount   EscalationTrigger = "COUNT"
	TriggerKeyword EscalationTrigger = "KEYWORD"
)

// Case is the aggregate for a customer support conversation.
type Case struct {
	ID                          string
	CustomerIdentity            string
	Status                      CaseStatus
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
	LastCustomerMessageAt       time.Time
	ConsecutiveCustomerMessages int
	EscalatedReasons            []EscalationTrigger
	EscalatedAt                 *time.Time
	ClosedAt                    *time.Time
	ClosedBy                    *string
}

// HasReason reports whether the trigger already fired for this case.
// Fired triggers never re-notify; EscalatedReasons only grows.
func (c *Case) HasReason(trigger EscalationTrigger) bool {
	for _, r := range c.EscalatedReasons {
		if r == trigger {
			return true
		}
	}
	return false
}
