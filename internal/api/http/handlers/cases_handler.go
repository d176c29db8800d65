package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/consult-case-service/internal/api/dto"
	"github.com/spec-kit/consult-case-service/internal/auth"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/service"
	"github.com/spec-kit/consult-case-service/internal/workflow"
	apperrors "github.com/spec-kit/consult-case-service/pkg/util/errorutil"
)

// CasesHandler manages consultation case endpoints.
type CasesHandler struct {
	service *service.CaseService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(caseService *service.CaseService) *CasesHandler {
	return &CasesHandler{service: caseService}
}

// CreateCase POST /cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kase, err := h.service.CreateCase(c.Context(), principal, service.CaseCreateInput{
		BusinessType: req.BusinessType,
		CaseType:     req.CaseType,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": caseSummary(kase)})
}

// ListCases GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter := parseCaseQuery(c)
	cases, err := h.service.ListCases(c.Context(), principal, filter)
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
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	kase, err := h.service.GetCase(c.Context(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(kase, principal.Role)})
}

// Review POST /cases/:id/review.
func (h *CasesHandler) Review(c *fiber.Ctx) error {
	return h.simpleTransition(c, h.service.ReviewCase)
}

// AssignExpert POST /cases/:id/assign.
func (h *CasesHandler) AssignExpert(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AssignExpertRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.ExpertID) == "" {
		return apperrors.NewValidationError("expert_id required", nil)
	}
	kase, err := h.service.AssignExpert(c.Context(), principal, c.Params("id"), req.ExpertID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(kase, principal.Role)})
}

// BookMeeting POST /cases/:id/meeting.
func (h *CasesHandler) BookMeeting(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.BookMeetingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ScheduledAt.IsZero() {
		return apperrors.NewValidationError("scheduled_at required", nil)
	}
	kase, err := h.service.BookMeeting(c.Context(), principal, c.Params("id"), req.ScheduledAt, req.MeetingLink)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(kase, principal.Role)})
}

// CompleteMeeting POST /cases/:id/meeting/complete.
func (h *CasesHandler) CompleteMeeting(c *fiber.Ctx) error {
	return h.simpleTransition(c, h.service.CompleteMeeting)
}

// MarkNoShow POST /cases/:id/meeting/no-show.
func (h *CasesHandler) MarkNoShow(c *fiber.Ctx) error {
	return h.simpleTransition(c, h.service.MarkNoShow)
}

// UpdateAdvice PUT /cases/:id/advice.
func (h *CasesHandler) UpdateAdvice(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AdviceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kase, err := h.service.UpdateAdvice(c.Context(), principal, c.Params("id"), service.AdviceInput{
		InternalNotes:     req.InternalNotes,
		Recommendation:    req.Recommendation,
		SuggestedServices: req.SuggestedServices,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(kase, principal.Role)})
}

// SendRecommendations POST /cases/:id/recommendations/send.
func (h *CasesHandler) SendRecommendations(c *fiber.Ctx) error {
	return h.simpleTransition(c, h.service.SendRecommendations)
}

// CloseCase POST /cases/:id/close.
func (h *CasesHandler) CloseCase(c *fiber.Ctx) error {
	return h.simpleTransition(c, h.service.CloseCase)
}

// CancelCase POST /cases/:id/cancel.
func (h *CasesHandler) CancelCase(c *fiber.Ctx) error {
	return h.simpleTransition(c, h.service.CancelCase)
}

// OrderCreated POST /cases/:id/order converts a case after a recommended
// service was purchased. Called by the commerce integration.
func (h *CasesHandler) OrderCreated(c *fiber.Ctx) error {
	kase, err := h.service.OrderCreated(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseSummary(kase)})
}

// ListHistory GET /cases/:id/history.
func (h *CasesHandler) ListHistory(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	history, err := h.service.ListHistory(c.Context(), principal, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.CaseEventResponse, 0, len(history))
	for _, event := range history {
		items = append(items, dto.CaseEventResponse{
			ID:        event.ID,
			ActorRole: event.ActorRole,
			ActorID:   event.ActorID,
			EventType: event.EventType,
			OldValue:  event.OldValue,
			NewValue:  event.NewValue,
			CreatedAt: event.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *CasesHandler) simpleTransition(c *fiber.Ctx, fn func(ctx context.Context, actor *domain.Participant, caseID string) (*domain.Case, error)) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	kase, err := fn(c.Context(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(kase, principal.Role)})
}

func parseCaseQuery(c *fiber.Ctx) service.CaseListFilter {
	filter := service.CaseListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.CaseStatus(strings.TrimSpace(part)))
		}
	}
	if typeStr := c.Query("case_type"); typeStr != "" {
		for _, part := range strings.Split(typeStr, ",") {
			filter.CaseTypes = append(filter.CaseTypes, domain.CaseType(strings.TrimSpace(part)))
		}
	}
	if expertID := c.Query("expert_id"); expertID != "" {
		filter.ExpertID = &expertID
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset", "0"))
	return filter
}

func caseSummary(kase *domain.Case) dto.CaseSummary {
	return dto.CaseSummary{
		ID:           kase.ID,
		CaseNumber:   kase.CaseNumber,
		BusinessType: kase.BusinessType,
		CaseType:     kase.CaseType,
		Status:       kase.Status,
		ScheduledAt:  kase.ScheduledAt,
		CreatedAt:    kase.CreatedAt,
		UpdatedAt:    kase.UpdatedAt,
	}
}

// caseDetail renders a case for one role. Internal notes never reach
// customers; advice fields reach them only once the lifecycle has published
// them.
func caseDetail(kase *domain.Case, role domain.ParticipantRole) dto.CaseDetailResponse {
	resp := dto.CaseDetailResponse{
		ID:                     kase.ID,
		CaseNumber:             kase.CaseNumber,
		BusinessType:           kase.BusinessType,
		CaseType:               kase.CaseType,
		Status:                 kase.Status,
		ScheduledAt:            kase.ScheduledAt,
		MeetingLink:            kase.MeetingLink,
		CustomerName:           kase.CustomerName,
		CustomerEmail:          kase.CustomerEmail,
		ExpertID:               kase.ExpertID,
		ChatEnabled:            workflow.ChatEnabled(kase.Status),
		RecommendationsVisible: workflow.RecommendationsVisible(kase.Status),
		MeetingActionable:      workflow.MeetingActionable(kase.ScheduledAt, time.Now()),
		CreatedAt:              kase.CreatedAt,
		UpdatedAt:              kase.UpdatedAt,
		ClosedAt:               kase.ClosedAt,
	}

	staff := role == domain.RoleExpert || role == domain.RoleAdmin
	if staff {
		notes := kase.InternalNotes
		resp.InternalNotes = &notes
	}
	if staff || workflow.RecommendationsVisible(kase.Status) {
		resp.Recommendation = kase.Recommendation
		resp.SuggestedServices = kase.SuggestedServices
	}
	return resp
}
