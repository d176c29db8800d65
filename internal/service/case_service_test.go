package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/repository"
	"github.com/spec-kit/consult-case-service/internal/workflow"
	apperrors "github.com/spec-kit/consult-case-service/pkg/util/errorutil"
)

type fakeCaseRepo struct {
	mu    sync.Mutex
	cases map[string]domain.Case
	next  int
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: make(map[string]domain.Case)}
}

func (r *fakeCaseRepo) Create(_ context.Context, kase *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	kase.ID = fmt.Sprintf("case-%d", r.next)
	kase.CreatedAt = time.Now()
	kase.UpdatedAt = kase.CreatedAt
	r.cases[kase.ID] = *kase
	return nil
}

func (r *fakeCaseRepo) Update(_ context.Context, kase *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[kase.ID]; !ok {
		return pgx.ErrNoRows
	}
	kase.UpdatedAt = time.Now()
	r.cases[kase.ID] = *kase
	return nil
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kase, ok := r.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &kase, nil
}

func (r *fakeCaseRepo) GetByCaseNumber(_ context.Context, number string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kase := range r.cases {
		if kase.CaseNumber == number {
			out := kase
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCaseRepo) ListWithFilter(_ context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Case
	for _, kase := range r.cases {
		if filter.CustomerID != nil && kase.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.ExpertID != nil && (kase.ExpertID == nil || *kase.ExpertID != *filter.ExpertID) {
			continue
		}
		out = append(out, kase)
	}
	return out, nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []domain.CaseEvent
}

func (r *fakeEventRepo) Create(_ context.Context, event *domain.CaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = fmt.Sprintf("evt-%d", len(r.events)+1)
	event.CreatedAt = time.Now()
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeEventRepo) ListByCase(_ context.Context, caseID string, _, _ int) ([]domain.CaseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CaseEvent
	for _, event := range r.events {
		if event.CaseID == caseID {
			out = append(out, event)
		}
	}
	return out, nil
}

type fakeParticipantRepo struct {
	participants map[string]domain.Participant
}

func (r *fakeParticipantRepo) Create(_ context.Context, p *domain.Participant) error {
	r.participants[p.ID] = *p
	return nil
}

func (r *fakeParticipantRepo) Update(_ context.Context, p *domain.Participant) error {
	r.participants[p.ID] = *p
	return nil
}

func (r *fakeParticipantRepo) GetByID(_ context.Context, id string) (*domain.Participant, error) {
	p, ok := r.participants[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r *fakeParticipantRepo) GetByEmail(_ context.Context, email string) (*domain.Participant, error) {
	for _, p := range r.participants {
		if p.Email == email {
			out := p
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeParticipantRepo) ListByRole(_ context.Context, role domain.ParticipantRole) ([]domain.Participant, error) {
	var out []domain.Participant
	for _, p := range r.participants {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}

type caseFixture struct {
	service  *CaseService
	cases    *fakeCaseRepo
	events   *fakeEventRepo
	channel  broadcast.Channel
	captured *[]broadcast.Event
	now      time.Time

	customer *domain.Participant
	expert   *domain.Participant
	admin    *domain.Participant
}

func newCaseFixture(t *testing.T) *caseFixture {
	t.Helper()

	customer := &domain.Participant{ID: "cust-1", Name: "Dana", Email: "dana@example.com", Role: domain.RoleCustomer}
	expert := &domain.Participant{ID: "exp-1", Name: "Avery", Email: "avery@example.com", Role: domain.RoleExpert}
	admin := &domain.Participant{ID: "adm-1", Name: "Ops", Email: "ops@example.com", Role: domain.RoleAdmin}

	cases := newFakeCaseRepo()
	events := &fakeEventRepo{}
	participants := &fakeParticipantRepo{participants: map[string]domain.Participant{
		customer.ID: *customer,
		expert.ID:   *expert,
		admin.ID:    *admin,
	}}

	channel := broadcast.NewInMemoryChannel()
	var captured []broadcast.Event
	var mu sync.Mutex
	if _, err := channel.Subscribe("tenant-test", func(event broadcast.Event) {
		mu.Lock()
		captured = append(captured, event)
		mu.Unlock()
	}, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	f := &caseFixture{
		cases:    cases,
		events:   events,
		channel:  channel,
		captured: &captured,
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		customer: customer,
		expert:   expert,
		admin:    admin,
	}
	f.service = NewCaseService(CaseDependencies{
		CaseRepo:        cases,
		CaseEventRepo:   events,
		ParticipantRepo: participants,
		Channel:         channel,
		Topic:           "tenant-test",
		Now:             func() time.Time { return f.now },
	})
	return f
}

func (f *caseFixture) mustCreate(t *testing.T) *domain.Case {
	t.Helper()
	kase, err := f.service.CreateCase(context.Background(), f.customer, CaseCreateInput{
		BusinessType: domain.BusinessTypeStartup,
		CaseType:     domain.CaseTypeIncorporation,
	})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	return kase
}

func TestCreateCase(t *testing.T) {
	f := newCaseFixture(t)
	kase := f.mustCreate(t)

	if kase.Status != domain.CaseStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", kase.Status)
	}
	if kase.CaseNumber == "" {
		t.Fatal("case number not assigned")
	}
	if kase.CustomerID != f.customer.ID || kase.CustomerEmail != f.customer.Email {
		t.Fatal("customer identity not stamped onto case")
	}
	if len(*f.captured) != 1 || (*f.captured)[0].Op != broadcast.OpCreated {
		t.Fatalf("expected one created broadcast, got %v", *f.captured)
	}
}

func TestCreateCaseRequiresCustomer(t *testing.T) {
	f := newCaseFixture(t)
	if _, err := f.service.CreateCase(context.Background(), f.expert, CaseCreateInput{}); err == nil {
		t.Fatal("expected rejection for non-customer")
	}
}

func TestFullLifecycleToConverted(t *testing.T) {
	f := newCaseFixture(t)
	ctx := context.Background()
	kase := f.mustCreate(t)

	if _, err := f.service.ReviewCase(ctx, f.admin, kase.ID); err != nil {
		t.Fatalf("ReviewCase: %v", err)
	}
	if _, err := f.service.AssignExpert(ctx, f.admin, kase.ID, f.expert.ID); err != nil {
		t.Fatalf("AssignExpert: %v", err)
	}

	slot := f.now.Add(24 * time.Hour)
	if _, err := f.service.BookMeeting(ctx, f.customer, kase.ID, slot, "https://meet.example.com/abc"); err != nil {
		t.Fatalf("BookMeeting: %v", err)
	}

	// Not actionable until the buffer past the slot has elapsed.
	if _, err := f.service.CompleteMeeting(ctx, f.expert, kase.ID); err == nil {
		t.Fatal("expected completion to be refused before the meeting")
	}

	f.now = slot.Add(workflow.MeetingBuffer)
	if _, err := f.service.CompleteMeeting(ctx, f.expert, kase.ID); err != nil {
		t.Fatalf("CompleteMeeting: %v", err)
	}

	if _, err := f.service.UpdateAdvice(ctx, f.expert, kase.ID, AdviceInput{
		Recommendation:    strPtr("Incorporate as an LLC"),
		SuggestedServices: []string{"llc-formation"},
	}); err != nil {
		t.Fatalf("UpdateAdvice: %v", err)
	}
	if _, err := f.service.SendRecommendations(ctx, f.expert, kase.ID); err != nil {
		t.Fatalf("SendRecommendations: %v", err)
	}

	final, err := f.service.OrderCreated(ctx, kase.ID)
	if err != nil {
		t.Fatalf("OrderCreated: %v", err)
	}
	if final.Status != domain.CaseStatusConverted {
		t.Fatalf("status = %s, want CONVERTED", final.Status)
	}
}

func TestAssignExpertValidatesRole(t *testing.T) {
	f := newCaseFixture(t)
	ctx := context.Background()
	kase := f.mustCreate(t)
	if _, err := f.service.ReviewCase(ctx, f.admin, kase.ID); err != nil {
		t.Fatalf("ReviewCase: %v", err)
	}
	if _, err := f.service.AssignExpert(ctx, f.admin, kase.ID, f.customer.ID); err == nil {
		t.Fatal("expected rejection assigning a non-expert")
	}
}

func TestSendRecommendationsRequiresAdvice(t *testing.T) {
	f := newCaseFixture(t)
	ctx := context.Background()
	kase := f.mustCreate(t)

	f.service.ReviewCase(ctx, f.admin, kase.ID)
	f.service.AssignExpert(ctx, f.admin, kase.ID, f.expert.ID)
	slot := f.now.Add(time.Hour)
	f.service.BookMeeting(ctx, f.customer, kase.ID, slot, "")
	f.now = slot.Add(workflow.MeetingBuffer)
	f.service.CompleteMeeting(ctx, f.expert, kase.ID)

	_, err := f.service.SendRecommendations(ctx, f.expert, kase.ID)
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "TRANSITION_REJECTED" {
		t.Fatalf("err = %v, want TRANSITION_REJECTED", err)
	}

	stored, _ := f.cases.GetByID(ctx, kase.ID)
	if stored.Status != domain.CaseStatusMeetingCompleted {
		t.Fatalf("rejected transition must leave status untouched, got %s", stored.Status)
	}
}

func TestRejectedTransitionMapsToConflict(t *testing.T) {
	f := newCaseFixture(t)
	kase := f.mustCreate(t)

	_, err := f.service.CompleteMeeting(context.Background(), f.admin, kase.ID)
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %v, want DomainError", err)
	}
	if domainErr.HTTPStatus != 409 {
		t.Fatalf("HTTPStatus = %d, want 409", domainErr.HTTPStatus)
	}
}

func TestBookMeetingRejectsPastSlot(t *testing.T) {
	f := newCaseFixture(t)
	kase := f.mustCreate(t)
	past := f.now.Add(-time.Hour)
	if _, err := f.service.BookMeeting(context.Background(), f.customer, kase.ID, past, ""); err == nil {
		t.Fatal("expected past slot to be rejected")
	}
}

func TestAccessScoping(t *testing.T) {
	f := newCaseFixture(t)
	ctx := context.Background()
	kase := f.mustCreate(t)

	stranger := &domain.Participant{ID: "cust-2", Role: domain.RoleCustomer}
	if _, err := f.service.GetCase(ctx, stranger, kase.ID); err == nil {
		t.Fatal("expected stranger to be denied")
	}

	// Expert has no access until assigned.
	if _, err := f.service.GetCase(ctx, f.expert, kase.ID); err == nil {
		t.Fatal("expected unassigned expert to be denied")
	}

	f.service.ReviewCase(ctx, f.admin, kase.ID)
	f.service.AssignExpert(ctx, f.admin, kase.ID, f.expert.ID)
	if _, err := f.service.GetCase(ctx, f.expert, kase.ID); err != nil {
		t.Fatalf("assigned expert denied: %v", err)
	}
}

func TestListCasesScopesByRole(t *testing.T) {
	f := newCaseFixture(t)
	ctx := context.Background()
	f.mustCreate(t)

	other := &domain.Participant{ID: "cust-2", Name: "Sam", Role: domain.RoleCustomer}
	if _, err := f.service.CreateCase(ctx, other, CaseCreateInput{}); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	mine, err := f.service.ListCases(ctx, f.customer, CaseListFilter{})
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("customer sees %d cases, want 1", len(mine))
	}

	all, err := f.service.ListCases(ctx, f.admin, CaseListFilter{})
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin sees %d cases, want 2", len(all))
	}
}

func TestCloseSetsClosedAtAndAudits(t *testing.T) {
	f := newCaseFixture(t)
	ctx := context.Background()
	kase := f.mustCreate(t)

	closed, err := f.service.CloseCase(ctx, f.admin, kase.ID)
	if err != nil {
		t.Fatalf("CloseCase: %v", err)
	}
	if closed.Status != domain.CaseStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("close not recorded: status=%s closedAt=%v", closed.Status, closed.ClosedAt)
	}

	history, err := f.service.ListHistory(ctx, f.admin, kase.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) == 0 || history[len(history)-1].EventType != domain.EventTypeStatusChanged {
		t.Fatalf("expected a status-changed audit entry, got %v", history)
	}

	// Terminal cases accept nothing further.
	if _, err := f.service.CancelCase(ctx, f.admin, kase.ID); err == nil {
		t.Fatal("expected cancel of closed case to be refused")
	}
}

func TestUpdateAdviceDeniedForCustomer(t *testing.T) {
	f := newCaseFixture(t)
	kase := f.mustCreate(t)
	if _, err := f.service.UpdateAdvice(context.Background(), f.customer, kase.ID, AdviceInput{
		Recommendation: strPtr("nope"),
	}); err == nil {
		t.Fatal("expected customer advice edit to be denied")
	}
}

func TestTransitionsPublishCaseUpdates(t *testing.T) {
	f := newCaseFixture(t)
	ctx := context.Background()
	kase := f.mustCreate(t)

	if _, err := f.service.ReviewCase(ctx, f.admin, kase.ID); err != nil {
		t.Fatalf("ReviewCase: %v", err)
	}

	events := *f.captured
	last := events[len(events)-1]
	if last.Op != broadcast.OpUpdated || last.Entity != broadcast.EntityCase {
		t.Fatalf("last event = %+v, want case updated", last)
	}
	if last.Case == nil || last.Case.Status != domain.CaseStatusUnderReview {
		t.Fatalf("payload must carry post-change status, got %+v", last.Case)
	}
}

func strPtr(s string) *string { return &s }
