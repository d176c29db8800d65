package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/chat"
	"github.com/spec-kit/consult-case-service/internal/domain"
)

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
	next     int
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	msg.ID = fmt.Sprintf("msg-%d", r.next)
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByCase(_ context.Context, caseID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, msg := range r.messages {
		if msg.CaseID == caseID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeAttachmentRepo struct {
	mu      sync.Mutex
	records []domain.AttachmentReference
}

func (r *fakeAttachmentRepo) Create(_ context.Context, ref *domain.AttachmentReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref.ID = "att-1"
	ref.CreatedAt = time.Now()
	r.records = append(r.records, *ref)
	return nil
}

func (r *fakeAttachmentRepo) ListByMessage(_ context.Context, messageID string) ([]domain.AttachmentReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AttachmentReference
	for _, ref := range r.records {
		if ref.MessageID == messageID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func messageFixture(t *testing.T, status domain.CaseStatus) (*MessageService, *fakeCaseRepo, *[]broadcast.Event, domain.Sender) {
	t.Helper()

	cases := newFakeCaseRepo()
	kase := &domain.Case{
		CaseNumber: "CSE-TEST",
		Status:     domain.CaseStatusSubmitted,
		CustomerID: "cust-1",
	}
	if err := cases.Create(context.Background(), kase); err != nil {
		t.Fatalf("create case: %v", err)
	}
	kase.Status = status
	if err := cases.Update(context.Background(), kase); err != nil {
		t.Fatalf("update case: %v", err)
	}

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

	svc := NewMessageService(MessageDependencies{
		CaseRepo:       cases,
		MessageRepo:    &fakeMessageRepo{},
		AttachmentRepo: &fakeAttachmentRepo{},
		Channel:        channel,
		Topic:          "tenant-test",
	})
	sender := domain.Sender{ID: "cust-1", Name: "Dana", Role: domain.RoleCustomer}
	return svc, cases, &captured, sender
}

func TestCreateMessageBroadcastsToSubscribers(t *testing.T) {
	svc, _, captured, sender := messageFixture(t, domain.CaseStatusMeetingScheduled)

	msg, err := svc.Create(context.Background(), chat.CreateInput{
		CaseID: "case-1",
		Sender: sender,
		Text:   "hello",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatal("store identity not assigned")
	}

	events := *captured
	if len(events) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(events))
	}
	if events[0].Entity != broadcast.EntityMessage || events[0].Op != broadcast.OpCreated {
		t.Fatalf("event = %+v, want message created", events[0])
	}
	if events[0].Message.Text != "hello" || events[0].Message.ID != msg.ID {
		t.Fatalf("payload mismatch: %+v", events[0].Message)
	}
}

func TestCreateMessageGatedByStatus(t *testing.T) {
	svc, _, captured, sender := messageFixture(t, domain.CaseStatusSubmitted)

	if _, err := svc.Create(context.Background(), chat.CreateInput{
		CaseID: "case-1",
		Sender: sender,
		Text:   "too early",
	}); err == nil {
		t.Fatal("expected send to be refused before a meeting is scheduled")
	}
	if len(*captured) != 0 {
		t.Fatal("refused send must not broadcast")
	}
}

func TestCreateMessageRejectsNonParticipants(t *testing.T) {
	svc, _, _, _ := messageFixture(t, domain.CaseStatusMeetingScheduled)

	stranger := domain.Sender{ID: "cust-999", Role: domain.RoleCustomer}
	if _, err := svc.Create(context.Background(), chat.CreateInput{
		CaseID: "case-1",
		Sender: stranger,
		Text:   "hi",
	}); err == nil {
		t.Fatal("expected stranger to be denied")
	}

	expert := domain.Sender{ID: "exp-1", Role: domain.RoleExpert}
	if _, err := svc.Create(context.Background(), chat.CreateInput{
		CaseID: "case-1",
		Sender: expert,
		Text:   "hi",
	}); err == nil {
		t.Fatal("expected unassigned expert to be denied")
	}
}

func TestCreateMessagePersistsAttachments(t *testing.T) {
	svc, _, captured, sender := messageFixture(t, domain.CaseStatusMeetingCompleted)

	msg, err := svc.Create(context.Background(), chat.CreateInput{
		CaseID: "case-1",
		Sender: sender,
		Text:   "see attached",
		Attachments: []domain.AttachmentReference{{
			StorageKey: "obj-1",
			FileName:   "contract.pdf",
			MimeType:   "application/pdf",
			SizeBytes:  1024,
		}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].MessageID != msg.ID {
		t.Fatalf("attachment not linked: %+v", msg.Attachments)
	}

	events := *captured
	if len(events) != 1 || len(events[0].Message.Attachments) != 1 {
		t.Fatalf("broadcast must carry attachments: %+v", events)
	}

	listed, err := svc.ListByCase(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("ListByCase: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Attachments) != 1 {
		t.Fatalf("transcript must include attachments: %+v", listed)
	}
}

func TestCreateMessageRejectsEmpty(t *testing.T) {
	svc, _, _, sender := messageFixture(t, domain.CaseStatusMeetingScheduled)

	if _, err := svc.Create(context.Background(), chat.CreateInput{
		CaseID: "case-1",
		Sender: sender,
		Text:   "   ",
	}); err == nil {
		t.Fatal("expected blank message to be rejected")
	}
}
