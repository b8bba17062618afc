package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/repository"
)

// CasesHandler serves the read-only case inspection endpoints.
type CasesHandler struct {
	cases    repository.CaseRepository
	messages repository.MessageRepository
}

// NewCasesHandler constructs handler.
func NewCasesHandler(cases repository.CaseRepository, messages repository.MessageRepository) *CasesHandler {
	return &CasesHandler{cases: cases, messages: messages}
}

// ListCases GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	filter := parseCaseQuery(c)
	cases, err := h.cases.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.CaseSummary, 0, len(cases))
	for i := range cases {
		items = append(items, caseSummary(&cases[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetCase GET /cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	found, err := h.cases.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	msgs, err := h.messages.ListByCase(c.Context(), found.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(found, msgs)})
}

func parseCaseQuery(c *fiber.Ctx) repository.CaseFilter {
	filter := repository.CaseFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.CaseStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	filter.CustomerIdentity = c.Query("customer")
	page := parsePositiveInt(c.Query("page"), 1)
	pageSize := parsePositiveInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parsePositiveInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func caseSummary(c *domain.Case) dto.CaseSummary {
	return dto.CaseSummary{
		ID:                          c.ID,
		CustomerIdentity:            c.CustomerIdentity,
		Status:                      c.Status,
		ConsecutiveCustomerMessages: c.ConsecutiveCustomerMessages,
		EscalatedReasons:            c.EscalatedReasons,
		CreatedAt:                   c.CreatedAt,
		UpdatedAt:                   c.UpdatedAt,
		LastCustomerMessageAt:       c.LastCustomerMessageAt,
		EscalatedAt:                 c.EscalatedAt,
		ClosedAt:                    c.ClosedAt,
		ClosedBy:                    c.ClosedBy,
	}
}

func caseDetail(c *domain.Case, messages []domain.Message) dto.CaseDetailResponse {
	msgs := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, messageResponse(&messages[i]))
	}
	return dto.CaseDetailResponse{
		CaseSummary: caseSummary(c),
		Messages:    msgs,
	}
}

func messageResponse(m *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:             m.ID,
		SenderIdentity: m.SenderIdentity,
		SenderRole:     m.SenderRole,
		Channel:        m.Channel,
		Body:           m.Body,
		Truncated:      m.Truncated,
		ReceivedAt:     m.ReceivedAt,
	}
}
