// Package normalizer converts channel-specific inbound payloads into the
// canonical domain.InboundMessage consumed by the lifecycle engine. Parsing
// is side-effect free; oversized bodies are truncated, never rejected.
package normalizer

import (
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/case-service/internal/domain"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// ChatPayload is the chat webhook event shape (Slack events style).
type ChatPayload struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user"`
	Text      string `json:"text"`
	BotID     string `json:"bot_id,omitempty"`
	EventTS   string `json:"ts,omitempty"`
	ChannelID string `json:"channel,omitempty"`
}

// EmailPayload is the inbound-email webhook shape. Providers either post
// parsed fields or the raw RFC 822 message; Raw wins when both are set.
type EmailPayload struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`
	Raw       []byte `json:"raw,omitempty"`
}

// Normalizer applies body sanitation and the stored-length cap.
type Normalizer struct {
	maxBodyBytes int
	now          func() time.Time
}

// New creates a normalizer with the given maximum stored body length.
func New(maxBodyBytes int) *Normalizer {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 10240
	}
	return &Normalizer{maxBodyBytes: maxBodyBytes, now: time.Now}
}

// NormalizeChat converts a chat event into the canonical inbound message.
func (n *Normalizer) NormalizeChat(p ChatPayload) (*domain.InboundMessage, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, apperrors.NewMalformedPayload("chat event missing user id", nil)
	}
	body, truncated := n.sanitize(p.Text)
	if body == "" {
		return nil, apperrors.NewMalformedPayload("chat event missing message text", nil)
	}

	receivedAt := n.now()
	if ts := parseSlackTS(p.EventTS); !ts.IsZero() {
		receivedAt = ts
	}

	return &domain.InboundMessage{
		SourceID:       p.EventID,
		SenderIdentity: p.UserID,
		Channel:        domain.ChannelChat,
		Body:           body,
		Truncated:      truncated,
		ReceivedAt:     receivedAt,
	}, nil
}

// NormalizeEmail converts an inbound-email payload into the canonical
// inbound message. Subject and body are joined so escalation keywords in
// the subject line are not lost.
func (n *Normalizer) NormalizeEmail(p EmailPayload) (*domain.InboundMessage, error) {
	if len(p.Raw) > 0 {
		parsed, err := parseRawEmail(p.Raw)
		if err != nil {
			return nil, apperrors.NewMalformedPayload("unparseable raw email", map[string]any{
				"error": err.Error(),
			})
		}
		if p.MessageID == "" {
			p.MessageID = parsed.MessageID
		}
		p.From = parsed.From
		p.Subject = parsed.Subject
		p.Body = parsed.Body
	}

	sender := strings.ToLower(strings.TrimSpace(p.From))
	if addr, err := mail.ParseAddress(p.From); err == nil {
		sender = strings.ToLower(addr.Address)
	}
	if sender == "" {
		return nil, apperrors.NewMalformedPayload("email missing sender address", nil)
	}

	full := p.Body
	if subject := strings.TrimSpace(p.Subject); subject != "" {
		full = subject + "\n\n" + p.Body
	}
	body, truncated := n.sanitize(full)
	if body == "" {
		return nil, apperrors.NewMalformedPayload("email missing body", nil)
	}

	return &domain.InboundMessage{
		SourceID:       strings.Trim(p.MessageID, "<>"),
		SenderIdentity: sender,
		Channel:        domain.ChannelEmail,
		Body:           body,
		Truncated:      truncated,
		ReceivedAt:     n.now(),
	}, nil
}

// sanitize strips NUL bytes and control noise, trims whitespace and caps
// the stored length. Truncation is the recovery path for oversized input.
// The cut backs off to a rune boundary; a mid-rune slice would produce
// invalid UTF-8 and the store rejects that.
func (n *Normalizer) sanitize(body string) (string, bool) {
	cleaned := strings.ReplaceAll(body, "\x00", "")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) <= n.maxBodyBytes {
		return cleaned, false
	}
	cut := n.maxBodyBytes
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return cleaned[:cut], true
}

type rawEmail struct {
	MessageID string
	From      string
	Subject   string
	Body      string
}

func parseRawEmail(raw []byte) (*rawEmail, error) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, err
	}

	return &rawEmail{
		MessageID: strings.Trim(msg.Header.Get("Message-ID"), "<>"),
		From:      msg.Header.Get("From"),
		Subject:   msg.Header.Get("Subject"),
		Body:      string(body),
	}, nil
}

// parseSlackTS converts a Slack "seconds.fraction" timestamp.
func parseSlackTS(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	secs := ts
	if idx := strings.IndexByte(ts, '.'); idx >= 0 {
		secs = ts[:idx]
	}
	parsed, err := strconv.ParseInt(secs, 10, 64)
	if err != nil || parsed <= 0 {
		return time.Time{}
	}
	return time.Unix(parsed, 0).UTC()
}
