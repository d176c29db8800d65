package domain

import "time"

// CaseStatus enumerates lifecycle states for consultation cases.
type CaseStatus string

const (
	CaseStatusSubmitted           CaseStatus = "SUBMITTED"
	CaseStatusUnderReview         CaseStatus = "UNDER_REVIEW"
	CaseStatusPendingAssignment   CaseStatus = "PENDING_ASSIGNMENT"
	CaseStatusMeetingScheduled    CaseStatus = "MEETING_SCHEDULED"
	CaseStatusMeetingCompleted    CaseStatus = "MEETING_COMPLETED"
	CaseStatusRecommendationsSent CaseStatus = "RECOMMENDATIONS_SENT"
	CaseStatusConverted           CaseStatus = "CONVERTED"
	CaseStatusClosed              CaseStatus = "CLOSED"
	CaseStatusCancelled           CaseStatus = "CANCELLED"
)

// BusinessType classifies the customer's business. Display/filter only.
type BusinessType string

const (
	BusinessTypeSoleProprietor BusinessType = "SOLE_PROPRIETOR"
	BusinessTypeCorporation    BusinessType = "CORPORATION"
	BusinessTypeStartup        BusinessType = "STARTUP"
	BusinessTypeOther          BusinessType = "OTHER"
)

// CaseType classifies the consultation subject. Display/filter only.
type CaseType string

const (
	CaseTypeIncorporation CaseType = "INCORPORATION"
	CaseTypeContracts     CaseType = "CONTRACTS"
	CaseTypeLabor         CaseType = "LABOR"
	CaseTypeIP            CaseType = "INTELLECTUAL_PROPERTY"
	CaseTypeGeneral       CaseType = "GENERAL"
)

// Case is the aggregate for a consultation engagement. Status is the only
// field driving gating logic; everything else is descriptive or advisory.
type Case struct {
	ID         string
	CaseNumber string

	BusinessType BusinessType
	CaseType     CaseType
	Status       CaseStatus

	ScheduledAt *time.Time
	MeetingLink *string

	// Expert-authored. InternalNotes is never rendered to the customer;
	// Recommendation and SuggestedServices are rendered only once
	// workflow.RecommendationsVisible reports true.
	InternalNotes     string
	Recommendation    string
	SuggestedServices []string

	// Immutable after creation.
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	ExpertID *string

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}
