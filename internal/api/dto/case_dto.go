package dto

import (
	"time"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// CreateCaseRequest payload for case intake.
type CreateCaseRequest struct {
	BusinessType domain.BusinessType `json:"business_type"`
	CaseType     domain.CaseType     `json:"case_type"`
}

// AssignExpertRequest payload.
type AssignExpertRequest struct {
	ExpertID string `json:"expert_id"`
}

// BookMeetingRequest payload.
type BookMeetingRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	MeetingLink string    `json:"meeting_link"`
}

// AdviceRequest payload for expert-authored fields. Nil fields are left
// unchanged.
type AdviceRequest struct {
	InternalNotes     *string  `json:"internal_notes"`
	Recommendation    *string  `json:"recommendation"`
	SuggestedServices []string `json:"suggested_services"`
}

// CaseSummary response.
type CaseSummary struct {
	ID           string              `json:"id"`
	CaseNumber   string              `json:"case_number"`
	BusinessType domain.BusinessType `json:"business_type"`
	CaseType     domain.CaseType     `json:"case_type"`
	Status       domain.CaseStatus   `json:"status"`
	ScheduledAt  *time.Time          `json:"scheduled_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// CaseDetailResponse provides full case info. Internal notes are present
// only for staff; recommendation and suggested services only once the
// lifecycle makes them visible.
type CaseDetailResponse struct {
	ID           string              `json:"id"`
	CaseNumber   string              `json:"case_number"`
	BusinessType domain.BusinessType `json:"business_type"`
	CaseType     domain.CaseType     `json:"case_type"`
	Status       domain.CaseStatus   `json:"status"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	MeetingLink *string    `json:"meeting_link,omitempty"`

	InternalNotes     *string  `json:"internal_notes,omitempty"`
	Recommendation    string   `json:"recommendation,omitempty"`
	SuggestedServices []string `json:"suggested_services,omitempty"`

	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	ExpertID      *string `json:"expert_id,omitempty"`

	ChatEnabled            bool `json:"chat_enabled"`
	RecommendationsVisible bool `json:"recommendations_visible"`
	MeetingActionable      bool `json:"meeting_actionable"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// CaseEventResponse is one audit trail entry.
type CaseEventResponse struct {
	ID        string                 `json:"id"`
	ActorRole domain.ParticipantRole `json:"actor_role"`
	ActorID   *string                `json:"actor_id,omitempty"`
	EventType domain.CaseEventType   `json:"event_type"`
	OldValue  map[string]any         `json:"old_value,omitempty"`
	NewValue  map[string]any         `json:"new_value,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
