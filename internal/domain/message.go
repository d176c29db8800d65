package domain

import (
	"strings"
	"time"
)

// TempIDPrefix marks locally generated placeholder ids. Store-assigned ids
// are UUIDs and can never collide with this namespace.
const TempIDPrefix = "pending-"

// IsTempID reports whether an id belongs to an optimistic placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Message captures one chat transcript entry. Immutable once created; the
// store assigns ID and CreatedAt, which are authoritative for ordering.
type Message struct {
	ID          string
	CaseID      string
	SenderID    string
	SenderName  string
	SenderRole  ParticipantRole
	Text        string
	Attachments []AttachmentReference
	CreatedAt   time.Time
}

// AttachmentReference stores metadata for a message attachment. StorageKey
// is the object-store id the file was uploaded under.
type AttachmentReference struct {
	ID         string
	MessageID  string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
