package dto

import (
	"time"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// SendMessageRequest payload for posting into an open chat session.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is one transcript entry. Pending marks an optimistic
// placeholder whose broadcast echo has not arrived yet; its ID is temporary.
type MessageResponse struct {
	ID          string                 `json:"id"`
	SenderID    string                 `json:"sender_id"`
	SenderName  string                 `json:"sender_name"`
	SenderRole  domain.ParticipantRole `json:"sender_role"`
	Text        string                 `json:"text"`
	Pending     bool                   `json:"pending"`
	Attachments []AttachmentResponse   `json:"attachments,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url,omitempty"`
}

// TranscriptResponse is the session view of an open chat.
type TranscriptResponse struct {
	CaseID      string            `json:"case_id"`
	Status      domain.CaseStatus `json:"status"`
	ChatEnabled bool              `json:"chat_enabled"`
	Stale       bool              `json:"stale"`
	Messages    []MessageResponse `json:"messages"`
}

// SendMessageResponse acknowledges an optimistic send.
type SendMessageResponse struct {
	TempID string `json:"temp_id"`
}

// SendFailureResponse is one failed send returned to the composer.
type SendFailureResponse struct {
	TempID string `json:"temp_id"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}
