package domain

import "time"

// CaseEventType captures what changed in an audit entry.
type CaseEventType string

const (
	EventTypeStatusChanged  CaseEventType = "STATUS_CHANGED"
	EventTypeExpertAssigned CaseEventType = "EXPERT_ASSIGNED"
	EventTypeMeetingBooked  CaseEventType = "MEETING_BOOKED"
	EventTypeAdviceUpdated  CaseEventType = "ADVICE_UPDATED"
)

// CaseEvent is an immutable audit trail entry for a case.
type CaseEvent struct {
	ID        string
	CaseID    string
	ActorRole ParticipantRole
	ActorID   *string
	EventType CaseEventType
	OldValue  map[string]any
	NewValue  map[string]any
	CreatedAt time.Time
}
