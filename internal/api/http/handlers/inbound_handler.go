package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/engine"
	"github.com/spec-kit/case-service/internal/normalizer"
	"github.com/spec-kit/case-service/internal/repository"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// chatEnvelope is the outer shape of a chat event delivery. Verification
// handshakes carry a challenge instead of an event.
type chatEnvelope struct {
	Type      string                 `json:"type"`
	Challenge string                 `json:"challenge,omitempty"`
	EventID   string                 `json:"event_id,omitempty"`
	Event     normalizer.ChatPayload `json:"event"`
}

// InboundHandler receives channel webhooks and feeds them to the engine.
type InboundHandler struct {
	normalizer *normalizer.Normalizer
	engine     *engine.Engine
	processed  repository.ProcessedMessageRepository
	logger     *zap.Logger
}

// NewInboundHandler constructs handler.
func NewInboundHandler(n *normalizer.Normalizer, eng *engine.Engine, processed repository.ProcessedMessageRepository, logger *zap.Logger) *InboundHandler {
	return &InboundHandler{normalizer: n, engine: eng, processed: processed, logger: logger}
}

// ChatWebhook POST /webhooks/chat.
func (h *InboundHandler) ChatWebhook(c *fiber.Ctx) error {
	var env chatEnvelope
	if err := c.BodyParser(&env); err != nil {
		return apperrors.NewMalformedPayload("invalid chat payload", nil)
	}
	if env.Type == "url_verification" {
		return c.JSON(fiber.Map{"challenge": env.Challenge})
	}
	// Messages posted by the notifier itself come back through this
	// webhook; dropping bot events breaks the loop.
	if env.Event.BotID != "" {
		return c.SendStatus(http.StatusOK)
	}

	dedupKey := env.EventID
	if dedupKey == "" {
		dedupKey = env.Event.EventID
	}
	if env.Event.EventID == "" {
		env.Event.EventID = dedupKey
	}

	if dup, err := h.checkDuplicate(c, dedupKey, domain.ChannelChat); err != nil || dup {
		return err
	}

	in, err := h.normalizer.NormalizeChat(env.Event)
	if err != nil {
		return err
	}
	return h.process(c, *in, dedupKey)
}

// EmailWebhook POST /webhooks/email.
func (h *InboundHandler) EmailWebhook(c *fiber.Ctx) error {
	var payload normalizer.EmailPayload
	if err := c.BodyParser(&payload); err != nil {
		return apperrors.NewMalformedPayload("invalid email payload", nil)
	}

	if dup, err := h.checkDuplicate(c, payload.MessageID, domain.ChannelEmail); err != nil || dup {
		return err
	}

	in, err := h.normalizer.NormalizeEmail(payload)
	if err != nil {
		return err
	}
	return h.process(c, *in, payload.MessageID)
}

// checkDuplicate answers true when the delivery was already handled; the
// duplicate gets an acknowledging 200 so the sender stops retrying.
func (h *InboundHandler) checkDuplicate(c *fiber.Ctx, messageID string, channel domain.Channel) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	seen, err := h.processed.Seen(c.Context(), messageID, channel)
	if err != nil {
		return false, apperrors.NewStoreError(err)
	}
	if !seen {
		return false, nil
	}
	h.logger.Debug("duplicate delivery acknowledged",
		zap.String("message_id", messageID), zap.String("channel", string(channel)))
	return true, c.JSON(fiber.Map{"data": dto.InboundAck{Duplicate: true}})
}

func (h *InboundHandler) process(c *fiber.Ctx, in domain.InboundMessage, dedupKey string) error {
	result, err := h.engine.HandleInbound(c.Context(), in)
	if err != nil {
		return err
	}

	if dedupKey != "" {
		var caseID *string
		if result.Case != nil {
			caseID = &result.Case.ID
		}
		if err := h.processed.Record(c.Context(), dedupKey, in.Channel, caseID); err != nil {
			h.logger.Warn("recording processed delivery failed",
				zap.String("message_id", dedupKey), zap.Error(err))
		}
	}

	ack := dto.InboundAck{
		CreatedCase: result.CreatedCase,
		Closed:      result.Closed,
		NewReasons:  result.NewReasons,
		Ignored:     result.Ignored,
	}
	if result.Case != nil {
		ack.CaseID = result.Case.ID
		ack.Status = result.Case.Status
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": ack})
}
