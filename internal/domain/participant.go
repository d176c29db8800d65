package domain

import "time"

// ParticipantRole indicates who is acting on a case.
type ParticipantRole string

const (
	RoleCustomer ParticipantRole = "CUSTOMER"
	RoleExpert   ParticipantRole = "EXPERT"
	RoleAdmin    ParticipantRole = "ADMIN"
	// RoleSystem marks transitions driven by external events rather than a
	// signed-in participant (e.g. order creation converting a case).
	RoleSystem ParticipantRole = "SYSTEM"
)

// ParticipantStatus represents account lifecycle states.
type ParticipantStatus string

const (
	ParticipantStatusActive    ParticipantStatus = "ACTIVE"
	ParticipantStatusSuspended ParticipantStatus = "SUSPENDED"
)

// Participant is any signed-in identity: customer, expert or admin.
type Participant struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         ParticipantRole
	Status       ParticipantStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sender is the identity stamped onto outgoing messages.
type Sender struct {
	ID   string
	Name string
	Role ParticipantRole
}

// SenderOf builds the message sender identity for a participant.
func SenderOf(p *Participant) Sender {
	return Sender{ID: p.ID, Name: p.Name, Role: p.Role}
}
