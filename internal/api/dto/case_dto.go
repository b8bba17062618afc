package dto

import (
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// CaseSummary is the listing representation of a case.
type CaseSummary struct {
	ID                          string                     `json:"id"`
	CustomerIdentity            string                     `json:"customer_identity"`
	Status                      domain.CaseStatus          `json:"status"`
	ConsecutiveCustomerMessages int                        `json:"consecutive_customer_messages"`
	EscalatedReasons            []domain.EscalationTrigger `json:"escalated_reasons"`
	CreatedAt                   time.Time                  `json:"created_at"`
	UpdatedAt                   time.Time                  `json:"updated_at"`
	LastCustomerMessageAt       time.Time                  `json:"last_customer_message_at"`
	EscalatedAt                 *time.Time                 `json:"escalated_at,omitempty"`
	ClosedAt                    *time.Time                 `json:"closed_at,omitempty"`
	ClosedBy                    *string                    `json:"closed_by,omitempty"`
}

// CaseDetailResponse adds the message history to the summary.
type CaseDetailResponse struct {
	CaseSummary
	Messages []MessageResponse `json:"messages"`
}

// MessageResponse is the wire representation of a stored message.
type MessageResponse struct {
	ID             string            `json:"id"`
	SenderIdentity string            `json:"sender_identity"`
	SenderRole     domain.SenderRole `json:"sender_role"`
	Channel        domain.Channel    `json:"channel"`
	Body           string            `json:"body"`
	Truncated      bool              `json:"truncated"`
	ReceivedAt     time.Time         `json:"received_at"`
}

// InboundAck acknowledges a processed webhook delivery.
type InboundAck struct {
	CaseID      string                     `json:"case_id,omitempty"`
	Status      domain.CaseStatus          `json:"status,omitempty"`
	CreatedCase bool                       `json:"created_case"`
	Closed      bool                       `json:"closed"`
	NewReasons  []domain.EscalationTrigger `json:"new_reasons,omitempty"`
	Duplicate   bool                       `json:"duplicate,omitempty"`
	Ignored     bool                       `json:"ignored,omitempty"`
}
