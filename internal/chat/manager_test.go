package chat

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/domain"
)

func newManagerFixture() (*Manager, *fakeMessages, broadcast.Channel) {
	cases := &fakeCases{kase: domain.Case{ID: "case-1", Status: domain.CaseStatusMeetingScheduled}}
	messages := &fakeMessages{}
	channel := broadcast.NewInMemoryChannel()
	messages.publishTo = channel

	m := NewManager(ManagerConfig{
		Topic:    testTopic,
		Cases:    cases,
		Messages: messages,
		Uploads:  &fakeUploads{},
		Channel:  channel,
		Logger:   zap.NewNop(),
	})
	return m, messages, channel
}

func TestManagerSharesOneSessionPerCaseAndParticipant(t *testing.T) {
	m, _, _ := newManagerFixture()
	defer m.CloseAll()

	first, err := m.Open(context.Background(), "case-1", customerSender())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := m.Open(context.Background(), "case-1", customerSender())
	if err != nil {
		t.Fatalf("re-open: %v", err)
	}
	if first != second {
		t.Fatal("second open created a competing transcript instance")
	}

	other, err := m.Open(context.Background(), "case-1", domain.Sender{ID: "exp-1", Role: domain.RoleExpert})
	if err != nil {
		t.Fatalf("open as expert: %v", err)
	}
	if other == first {
		t.Fatal("sessions not isolated per participant")
	}
}

func TestManagerGetAndClose(t *testing.T) {
	m, _, channel := newManagerFixture()

	session, err := m.Open(context.Background(), "case-1", customerSender())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	got, ok := m.Get("case-1", "cust-1")
	if !ok || got != session {
		t.Fatal("Get did not return the open session")
	}

	m.Close("case-1", "cust-1")
	if _, ok := m.Get("case-1", "cust-1"); ok {
		t.Fatal("session still registered after Close")
	}
	m.Close("case-1", "cust-1") // safe to repeat

	// Subscription released: broadcasts no longer reach the session.
	msg := domain.Message{ID: "msg-1", CaseID: "case-1", SenderID: "exp-1", Text: "hi"}
	_ = channel.Publish(context.Background(), testTopic, broadcast.MessageEvent(broadcast.OpCreated, &msg))
	if len(session.Transcript()) != 0 {
		t.Fatal("closed session still receiving events")
	}
}

func TestManagerOpenFailureLeavesNoVisibleSession(t *testing.T) {
	m, messages, _ := newManagerFixture()
	messages.listErr = context.DeadlineExceeded

	if _, err := m.Open(context.Background(), "case-1", customerSender()); err == nil {
		t.Fatal("open succeeded despite store failure")
	}
	if _, ok := m.Get("case-1", "cust-1"); ok {
		t.Fatal("failed open left a visible session behind")
	}
}

func TestManagerFailedOpenKeepsSessionForConcurrentOpen(t *testing.T) {
	m, messages, channel := newManagerFixture()
	messages.listErr = context.DeadlineExceeded

	if _, err := m.Open(context.Background(), "case-1", customerSender()); err == nil {
		t.Fatal("open succeeded despite store failure")
	}

	// The unopened session stays mapped: a concurrent Open already holding
	// the same pointer must never be orphaned by the failure path.
	m.mu.Lock()
	session := m.sessions[sessionKey("case-1", "cust-1")]
	m.mu.Unlock()
	if session == nil {
		t.Fatal("failed open removed the session a concurrent caller may hold")
	}

	// That caller's Open succeeds on the same session...
	messages.mu.Lock()
	messages.listErr = nil
	messages.mu.Unlock()
	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("open on retained session: %v", err)
	}
	got, ok := m.Get("case-1", "cust-1")
	if !ok || got != session {
		t.Fatal("opened session not reachable through the manager")
	}

	// ...and Close still releases its subscription.
	m.Close("case-1", "cust-1")
	msg := domain.Message{ID: "msg-1", CaseID: "case-1", SenderID: "exp-1", Text: "hi"}
	_ = channel.Publish(context.Background(), testTopic, broadcast.MessageEvent(broadcast.OpCreated, &msg))
	if len(session.Transcript()) != 0 {
		t.Fatal("subscription leaked past Close")
	}
}
