package broadcast

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// Op tags what happened to the entity carried by an event.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// EntityKind tags which entity the payload is shaped like.
type EntityKind string

const (
	EntityCase    EntityKind = "case"
	EntityMessage EntityKind = "message"
)

// Event is pushed to every subscriber of a topic, including the client that
// caused the change.
type Event struct {
	ID        string     `json:"id"`
	Op        Op         `json:"op"`
	Entity    EntityKind `json:"entity"`
	CaseID    string     `json:"case_id"`
	Timestamp time.Time  `json:"timestamp"`

	Case    *CasePayload    `json:"case,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
}

// CasePayload carries the authoritative post-change case fields.
type CasePayload struct {
	ID                string            `json:"id"`
	CaseNumber        string            `json:"case_number"`
	Status            domain.CaseStatus `json:"status"`
	ScheduledAt       *time.Time        `json:"scheduled_at,omitempty"`
	MeetingLink       *string           `json:"meeting_link,omitempty"`
	Recommendation    string            `json:"recommendation,omitempty"`
	SuggestedServices []string          `json:"suggested_services,omitempty"`
	ExpertID          *string           `json:"expert_id,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// MessagePayload carries a persisted message.
type MessagePayload struct {
	ID          string                 `json:"id"`
	CaseID      string                 `json:"case_id"`
	SenderID    string                 `json:"sender_id"`
	SenderName  string                 `json:"sender_name"`
	SenderRole  domain.ParticipantRole `json:"sender_role"`
	Text        string                 `json:"text"`
	Attachments []AttachmentPayload    `json:"attachments,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// AttachmentPayload mirrors a stored attachment descriptor.
type AttachmentPayload struct {
	ID         string `json:"id"`
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// CaseEvent builds a case update event from a domain case.
func CaseEvent(op Op, kase *domain.Case) Event {
	return Event{
		Op:     op,
		Entity: EntityCase,
		CaseID: kase.ID,
		Case: &CasePayload{
			ID:                kase.ID,
			CaseNumber:        kase.CaseNumber,
			Status:            kase.Status,
			ScheduledAt:       kase.ScheduledAt,
			MeetingLink:       kase.MeetingLink,
			Recommendation:    kase.Recommendation,
			SuggestedServices: kase.SuggestedServices,
			ExpertID:          kase.ExpertID,
			UpdatedAt:         kase.UpdatedAt,
		},
	}
}

// MessageEvent builds a message created event from a domain message.
func MessageEvent(op Op, msg *domain.Message) Event {
	payload := &MessagePayload{
		ID:         msg.ID,
		CaseID:     msg.CaseID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		SenderRole: msg.SenderRole,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt,
	}
	for _, att := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, AttachmentPayload{
			ID:         att.ID,
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	return Event{
		Op:      op,
		Entity:  EntityMessage,
		CaseID:  msg.CaseID,
		Message: payload,
	}
}

// ToMessage converts the payload back into a domain message.
func (p *MessagePayload) ToMessage() domain.Message {
	msg := domain.Message{
		ID:         p.ID,
		CaseID:     p.CaseID,
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		SenderRole: p.SenderRole,
		Text:       p.Text,
		CreatedAt:  p.CreatedAt,
	}
	for _, att := range p.Attachments {
		msg.Attachments = append(msg.Attachments, domain.AttachmentReference{
			ID:         att.ID,
			MessageID:  p.ID,
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	return msg
}

// Encode serializes an event for wire transport.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode deserializes a wire event.
func Decode(data []byte) (Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return event, err
}
