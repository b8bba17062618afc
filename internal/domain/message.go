package domain

import "time"

// SenderRole indicates who authored a message.
type SenderRole string

const (
	RoleCustomer SenderRole = "CUSTOMER"
	RoleAdmin    SenderRole = "ADMIN"
)

// Channel identifies the source a message arrived from.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelChat  Channel = "CHAT"
)

// Message is a single communication stored on a case thread.
// A message belongs to exactly one case and is never reassigned.
type Message struct {
	ID             string
	CaseID         string
	SenderIdentity string
	SenderRole     SenderRole
	Channel        Channel
	Body           string
	Truncated      bool
	ReceivedAt     time.Time
}

// InboundMessage is the canonical value the normalizer produces from a
// channel-specific payload. SourceID is the raw channel message id (email
// Message-ID or chat event id) used by adapters for deduplication.
// CustomerIdentity is the threading key; adapters may leave it empty, in
// which case the engine derives it from the sender.
type InboundMessage struct {
	SourceID         string
	SenderIdentity   string
	CustomerIdentity string
	Channel          Channel
	Body             string
	Truncated        bool
	ReceivedAt       time.Time
}
