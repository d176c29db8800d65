package workflow

import (
	"fmt"
	"time"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// Action enumerates actor-driven case transitions.
type Action string

const (
	ActionReview              Action = "review"
	ActionAssign              Action = "assign"
	ActionBookMeeting         Action = "book_meeting"
	ActionMarkComplete        Action = "mark_complete"
	ActionMarkNoShow          Action = "mark_no_show"
	ActionSendRecommendations Action = "send_recommendations"
	ActionPurchase            Action = "purchase"
	ActionClose               Action = "close"
	ActionCancel              Action = "cancel"
)

// MeetingBuffer is how long after the scheduled time a meeting becomes
// actionable (complete / no-show). The boundary is inclusive.
const MeetingBuffer = 30 * time.Minute

// Reason classifies why a transition was rejected.
type Reason string

const (
	ReasonUnknownAction      Reason = "unknown_action"
	ReasonWrongStatus        Reason = "wrong_status"
	ReasonActorNotAllowed    Reason = "actor_not_allowed"
	ReasonPreconditionFailed Reason = "precondition_failed"
)

// RejectedError reports a refused transition. The case status is left
// untouched by the caller whenever this is returned.
type RejectedError struct {
	Status Status
	Action Action
	Actor  domain.ParticipantRole
	Reason Reason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("transition %q rejected in status %q: %s", e.Action, e.Status, e.Detail)
	}
	return fmt.Sprintf("transition %q rejected in status %q: %s", e.Action, e.Status, e.Reason)
}

// Status aliases the domain status so predicate signatures read naturally.
type Status = domain.CaseStatus

// rule describes one row of the transition table.
type rule struct {
	from   []Status
	actors []domain.ParticipantRole
	to     Status
	guard  func(kase domain.Case, now time.Time) (bool, string)
}

var nonTerminal = []Status{
	domain.CaseStatusSubmitted,
	domain.CaseStatusUnderReview,
	domain.CaseStatusPendingAssignment,
	domain.CaseStatusMeetingScheduled,
	domain.CaseStatusMeetingCompleted,
	domain.CaseStatusRecommendationsSent,
}

var transitions = map[Action]rule{
	ActionReview: {
		from:   []Status{domain.CaseStatusSubmitted},
		actors: []domain.ParticipantRole{domain.RoleAdmin},
		to:     domain.CaseStatusUnderReview,
	},
	ActionAssign: {
		from:   []Status{domain.CaseStatusUnderReview},
		actors: []domain.ParticipantRole{domain.RoleAdmin},
		to:     domain.CaseStatusPendingAssignment,
		guard: func(kase domain.Case, _ time.Time) (bool, string) {
			if kase.ExpertID == nil || *kase.ExpertID == "" {
				return false, "no expert assigned"
			}
			return true, ""
		},
	},
	ActionBookMeeting: {
		from:   []Status{domain.CaseStatusPendingAssignment, domain.CaseStatusUnderReview},
		actors: []domain.ParticipantRole{domain.RoleCustomer},
		to:     domain.CaseStatusMeetingScheduled,
		guard: func(kase domain.Case, _ time.Time) (bool, string) {
			if kase.ScheduledAt == nil {
				return false, "no meeting slot selected"
			}
			return true, ""
		},
	},
	ActionMarkComplete: {
		from:   []Status{domain.CaseStatusMeetingScheduled},
		actors: []domain.ParticipantRole{domain.RoleExpert, domain.RoleAdmin},
		to:     domain.CaseStatusMeetingCompleted,
		guard:  meetingElapsed,
	},
	ActionMarkNoShow: {
		from:   []Status{domain.CaseStatusMeetingScheduled},
		actors: []domain.ParticipantRole{domain.RoleExpert, domain.RoleAdmin},
		to:     domain.CaseStatusClosed,
		guard:  meetingElapsed,
	},
	ActionSendRecommendations: {
		from:   []Status{domain.CaseStatusMeetingCompleted},
		actors: []domain.ParticipantRole{domain.RoleExpert, domain.RoleAdmin},
		to:     domain.CaseStatusRecommendationsSent,
		guard: func(kase domain.Case, _ time.Time) (bool, string) {
			if kase.Recommendation == "" && len(kase.SuggestedServices) == 0 {
				return false, "no recommendation or suggested services"
			}
			return true, ""
		},
	},
	ActionPurchase: {
		from:   []Status{domain.CaseStatusRecommendationsSent},
		actors: []domain.ParticipantRole{domain.RoleSystem},
		to:     domain.CaseStatusConverted,
	},
	ActionClose: {
		from:   nonTerminal,
		actors: []domain.ParticipantRole{domain.RoleAdmin},
		to:     domain.CaseStatusClosed,
	},
	ActionCancel: {
		from:   nonTerminal,
		actors: []domain.ParticipantRole{domain.RoleAdmin},
		to:     domain.CaseStatusCancelled,
	},
}

func meetingElapsed(kase domain.Case, now time.Time) (bool, string) {
	if !MeetingActionable(kase.ScheduledAt, now) {
		return false, "meeting window not reached"
	}
	return true, ""
}

// Apply evaluates one transition against the table. It is pure: no I/O, no
// mutation of kase. On success the new status is returned; otherwise a
// *RejectedError explains the refusal.
func Apply(kase domain.Case, action Action, actor domain.ParticipantRole, now time.Time) (Status, error) {
	reject := func(reason Reason, detail string) (Status, error) {
		return kase.Status, &RejectedError{
			Status: kase.Status,
			Action: action,
			Actor:  actor,
			Reason: reason,
			Detail: detail,
		}
	}

	rl, ok := transitions[action]
	if !ok {
		return reject(ReasonUnknownAction, "")
	}
	if !containsStatus(rl.from, kase.Status) {
		return reject(ReasonWrongStatus, "")
	}
	if !containsRole(rl.actors, actor) {
		return reject(ReasonActorNotAllowed, "")
	}
	if rl.guard != nil {
		if ok, detail := rl.guard(kase, now); !ok {
			return reject(ReasonPreconditionFailed, detail)
		}
	}
	return rl.to, nil
}

// Terminal reports whether no further actor-driven transition exists.
func Terminal(status Status) bool {
	switch status {
	case domain.CaseStatusConverted, domain.CaseStatusClosed, domain.CaseStatusCancelled:
		return true
	}
	return false
}

// ChatEnabled reports whether the chat transcript accepts new messages.
func ChatEnabled(status Status) bool {
	switch status {
	case domain.CaseStatusMeetingScheduled,
		domain.CaseStatusMeetingCompleted,
		domain.CaseStatusRecommendationsSent,
		domain.CaseStatusConverted:
		return true
	}
	return false
}

// RecommendationsVisible reports whether expert advice may be rendered to
// the customer. Advice may be written earlier but not shown.
func RecommendationsVisible(status Status) bool {
	switch status {
	case domain.CaseStatusMeetingCompleted,
		domain.CaseStatusRecommendationsSent,
		domain.CaseStatusConverted,
		domain.CaseStatusClosed:
		return true
	}
	return false
}

// MeetingActionable reports whether the complete/no-show actions are within
// their time window: a slot is booked and now >= scheduledAt + MeetingBuffer.
func MeetingActionable(scheduledAt *time.Time, now time.Time) bool {
	if scheduledAt == nil {
		return false
	}
	return !now.Before(scheduledAt.Add(MeetingBuffer))
}

func containsStatus(haystack []Status, needle Status) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsRole(haystack []domain.ParticipantRole, needle domain.ParticipantRole) bool {
	for _, r := range haystack {
		if r == needle {
			return true
		}
	}
	return false
}
