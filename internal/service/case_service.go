package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/repository"
	"github.com/spec-kit/consult-case-service/internal/workflow"
	apperrors "github.com/spec-kit/consult-case-service/pkg/util/errorutil"
)

// CaseService coordinates the consultation case lifecycle.
type CaseService struct {
	cases        repository.CaseRepository
	events       repository.CaseEventRepository
	participants repository.ParticipantRepository
	channel      broadcast.Channel
	topic        string
	logger       *zap.Logger
	now          func() time.Time
}

// CaseDependencies bundles collaborators for the case service.
type CaseDependencies struct {
	CaseRepo        repository.CaseRepository
	CaseEventRepo   repository.CaseEventRepository
	ParticipantRepo repository.ParticipantRepository
	Channel         broadcast.Channel
	Topic           string
	Logger          *zap.Logger
	// Now overrides the clock, tests only.
	Now func() time.Time
}

// CaseCreateInput describes case intake payload.
type CaseCreateInput struct {
	BusinessType domain.BusinessType
	CaseType     domain.CaseType
}

// CaseListFilter describes listing parameters before role scoping.
type CaseListFilter struct {
	Statuses  []domain.CaseStatus
	CaseTypes []domain.CaseType
	ExpertID  *string
	Limit     int
	Offset    int
}

// AdviceInput carries expert-authored case fields.
type AdviceInput struct {
	InternalNotes     *string
	Recommendation    *string
	SuggestedServices []string
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &CaseService{
		cases:        deps.CaseRepo,
		events:       deps.CaseEventRepo,
		participants: deps.ParticipantRepo,
		channel:      deps.Channel,
		topic:        deps.Topic,
		logger:       logger,
		now:          now,
	}
}

func generateCaseNumber() string {
	return "CSE-" + strings.ToUpper(uuid.NewString()[:8])
}

// CreateCase opens a new consultation case for a customer.
func (s *CaseService) CreateCase(ctx context.Context, customer *domain.Participant, input CaseCreateInput) (*domain.Case, error) {
	if customer.Role != domain.RoleCustomer {
		return nil, apperrors.NewForbidden("only customers open cases")
	}
	kase := &domain.Case{
		CaseNumber:    generateCaseNumber(),
		BusinessType:  input.BusinessType,
		CaseType:      input.CaseType,
		Status:        domain.CaseStatusSubmitted,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
	}
	if kase.BusinessType == "" {
		kase.BusinessType = domain.BusinessTypeOther
	}
	if kase.CaseType == "" {
		kase.CaseType = domain.CaseTypeGeneral
	}
	if err := s.cases.Create(ctx, kase); err != nil {
		return nil, err
	}
	s.publish(ctx, broadcast.CaseEvent(broadcast.OpCreated, kase))
	return kase, nil
}

// GetCase fetches a case, enforcing participant access.
func (s *CaseService) GetCase(ctx context.Context, participant *domain.Participant, caseID string) (*domain.Case, error) {
	kase, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !canAccessCase(participant, kase) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return kase, nil
}

// ListCases returns cases visible to the participant.
func (s *CaseService) ListCases(ctx context.Context, participant *domain.Participant, filter CaseListFilter) ([]domain.Case, error) {
	repoFilter := repository.CaseFilter{
		Statuses:  filter.Statuses,
		CaseTypes: filter.CaseTypes,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}
	switch participant.Role {
	case domain.RoleCustomer:
		repoFilter.CustomerID = &participant.ID
	case domain.RoleExpert:
		repoFilter.ExpertID = &participant.ID
	case domain.RoleAdmin:
		repoFilter.ExpertID = filter.ExpertID
	default:
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.cases.ListWithFilter(ctx, repoFilter)
}

// ReviewCase moves a submitted case into review.
func (s *CaseService) ReviewCase(ctx context.Context, actor *domain.Participant, caseID string) (*domain.Case, error) {
	return s.transition(ctx, actor, caseID, workflow.ActionReview, nil)
}

// AssignExpert records the expert and advances the case to pending
// assignment. The expert must exist and hold the EXPERT role; the transition
// guard refuses otherwise.
func (s *CaseService) AssignExpert(ctx context.Context, actor *domain.Participant, caseID, expertID string) (*domain.Case, error) {
	expert, err := s.participants.GetByID(ctx, expertID)
	if err != nil {
		return nil, err
	}
	if expert.Role != domain.RoleExpert {
		return nil, apperrors.NewValidationError("participant is not an expert", map[string]any{"expert_id": expertID})
	}
	kase, err := s.transition(ctx, actor, caseID, workflow.ActionAssign, func(kase *domain.Case) {
		kase.ExpertID = &expert.ID
	})
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, kase, actor, domain.EventTypeExpertAssigned,
		nil, map[string]any{"expert_id": expert.ID, "expert_name": expert.Name})
	return kase, nil
}

// BookMeeting schedules the consultation meeting as the case's customer.
func (s *CaseService) BookMeeting(ctx context.Context, actor *domain.Participant, caseID string, scheduledAt time.Time, meetingLink string) (*domain.Case, error) {
	if scheduledAt.Before(s.now()) {
		return nil, apperrors.NewValidationError("meeting slot is in the past", nil)
	}
	kase, err := s.transition(ctx, actor, caseID, workflow.ActionBookMeeting, func(kase *domain.Case) {
		kase.ScheduledAt = &scheduledAt
		if meetingLink != "" {
			kase.MeetingLink = &meetingLink
		}
	})
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, kase, actor, domain.EventTypeMeetingBooked,
		nil, map[string]any{"scheduled_at": scheduledAt, "meeting_link": meetingLink})
	return kase, nil
}

// CompleteMeeting marks the meeting held. Refused until the scheduled time
// plus buffer has elapsed.
func (s *CaseService) CompleteMeeting(ctx context.Context, actor *domain.Participant, caseID string) (*domain.Case, error) {
	return s.transition(ctx, actor, caseID, workflow.ActionMarkComplete, nil)
}

// MarkNoShow closes the case when the customer never joined the meeting.
func (s *CaseService) MarkNoShow(ctx context.Context, actor *domain.Participant, caseID string) (*domain.Case, error) {
	return s.transition(ctx, actor, caseID, workflow.ActionMarkNoShow, nil)
}

// UpdateAdvice edits expert-authored fields without a status change.
func (s *CaseService) UpdateAdvice(ctx context.Context, actor *domain.Participant, caseID string, input AdviceInput) (*domain.Case, error) {
	kase, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !canAuthorAdvice(actor, kase) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if workflow.Terminal(kase.Status) {
		return nil, apperrors.NewConflict("case is closed", nil)
	}

	old := map[string]any{
		"recommendation":     kase.Recommendation,
		"suggested_services": kase.SuggestedServices,
	}
	if input.InternalNotes != nil {
		kase.InternalNotes = *input.InternalNotes
	}
	if input.Recommendation != nil {
		kase.Recommendation = *input.Recommendation
	}
	if input.SuggestedServices != nil {
		kase.SuggestedServices = input.SuggestedServices
	}
	if err := s.cases.Update(ctx, kase); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, kase, actor, domain.EventTypeAdviceUpdated, old, map[string]any{
		"recommendation":     kase.Recommendation,
		"suggested_services": kase.SuggestedServices,
	})
	s.publish(ctx, broadcast.CaseEvent(broadcast.OpUpdated, kase))
	return kase, nil
}

// SendRecommendations publishes the expert's advice to the customer. Refused
// while both the recommendation and suggested services are empty.
func (s *CaseService) SendRecommendations(ctx context.Context, actor *domain.Participant, caseID string) (*domain.Case, error) {
	return s.transition(ctx, actor, caseID, workflow.ActionSendRecommendations, nil)
}

// CloseCase terminates a case administratively.
func (s *CaseService) CloseCase(ctx context.Context, actor *domain.Participant, caseID string) (*domain.Case, error) {
	return s.transition(ctx, actor, caseID, workflow.ActionClose, nil)
}

// CancelCase cancels a case administratively.
func (s *CaseService) CancelCase(ctx context.Context, actor *domain.Participant, caseID string) (*domain.Case, error) {
	return s.transition(ctx, actor, caseID, workflow.ActionCancel, nil)
}

// OrderCreated converts a case when the customer purchases a recommended
// service. Driven by the commerce system, not a signed-in participant.
func (s *CaseService) OrderCreated(ctx context.Context, caseID string) (*domain.Case, error) {
	kase, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, kase, workflow.ActionPurchase, domain.RoleSystem, nil, nil)
}

// transition runs one actor-driven action end to end: fetch, access check,
// mutate, validate against the machine, persist, audit, broadcast.
func (s *CaseService) transition(ctx context.Context, actor *domain.Participant, caseID string, action workflow.Action, mutate func(*domain.Case)) (*domain.Case, error) {
	kase, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !canAccessCase(actor, kase) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.apply(ctx, kase, action, actor.Role, &actor.ID, mutate)
}

func (s *CaseService) apply(ctx context.Context, kase *domain.Case, action workflow.Action, role domain.ParticipantRole, actorID *string, mutate func(*domain.Case)) (*domain.Case, error) {
	staged := *kase
	if mutate != nil {
		mutate(&staged)
	}

	next, err := workflow.Apply(staged, action, role, s.now())
	if err != nil {
		return nil, mapTransitionError(err)
	}

	oldStatus := staged.Status
	staged.Status = next
	if workflow.Terminal(next) {
		now := s.now()
		staged.ClosedAt = &now
	}
	if err := s.cases.Update(ctx, &staged); err != nil {
		return nil, err
	}
	*kase = staged

	event := &domain.CaseEvent{
		CaseID:    kase.ID,
		ActorRole: role,
		ActorID:   actorID,
		EventType: domain.EventTypeStatusChanged,
		OldValue:  map[string]any{"status": oldStatus},
		NewValue:  map[string]any{"status": next, "action": action},
	}
	if err := s.events.Create(ctx, event); err != nil {
		s.logger.Warn("case event not recorded", zap.String("case_id", kase.ID), zap.Error(err))
	}

	s.publish(ctx, broadcast.CaseEvent(broadcast.OpUpdated, kase))
	return kase, nil
}

func (s *CaseService) recordEvent(ctx context.Context, kase *domain.Case, actor *domain.Participant, eventType domain.CaseEventType, oldValue, newValue map[string]any) {
	event := &domain.CaseEvent{
		CaseID:    kase.ID,
		ActorRole: actor.Role,
		ActorID:   &actor.ID,
		EventType: eventType,
		OldValue:  oldValue,
		NewValue:  newValue,
	}
	if err := s.events.Create(ctx, event); err != nil {
		s.logger.Warn("case event not recorded", zap.String("case_id", kase.ID), zap.Error(err))
	}
}

// ListHistory returns the case audit trail for staff.
func (s *CaseService) ListHistory(ctx context.Context, actor *domain.Participant, caseID string, limit, offset int) ([]domain.CaseEvent, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleExpert {
		return nil, apperrors.NewForbidden("access denied")
	}
	kase, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !canAccessCase(actor, kase) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.events.ListByCase(ctx, caseID, limit, offset)
}

func (s *CaseService) publish(ctx context.Context, event broadcast.Event) {
	if s.channel == nil {
		return
	}
	if err := s.channel.Publish(ctx, s.topic, event); err != nil {
		s.logger.Warn("broadcast publish failed",
			zap.String("case_id", event.CaseID), zap.Error(err))
	}
}

func canAccessCase(p *domain.Participant, kase *domain.Case) bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleCustomer:
		return kase.CustomerID == p.ID
	case domain.RoleExpert:
		return kase.ExpertID != nil && *kase.ExpertID == p.ID
	}
	return false
}

func canAuthorAdvice(p *domain.Participant, kase *domain.Case) bool {
	if p == nil {
		return false
	}
	if p.Role == domain.RoleAdmin {
		return true
	}
	return p.Role == domain.RoleExpert && kase.ExpertID != nil && *kase.ExpertID == p.ID
}

func mapTransitionError(err error) error {
	if rejected, ok := err.(*workflow.RejectedError); ok {
		return apperrors.NewTransitionRejected(rejected.Error(), map[string]any{
			"status": rejected.Status,
			"action": rejected.Action,
			"reason": rejected.Reason,
		})
	}
	return err
}
