package chat

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/storage"
	"github.com/spec-kit/consult-case-service/internal/workflow"
)

// CaseReader fetches the authoritative case record.
type CaseReader interface {
	GetByID(ctx context.Context, id string) (*domain.Case, error)
}

// CreateInput describes a message creation request against the store.
type CreateInput struct {
	CaseID      string
	Sender      domain.Sender
	Text        string
	Attachments []domain.AttachmentReference
}

// MessageStore is the durable, append-only message record.
type MessageStore interface {
	ListByCase(ctx context.Context, caseID string) ([]domain.Message, error)
	Create(ctx context.Context, input CreateInput) (*domain.Message, error)
}

// AttachmentUpload is a file selected for sending, not yet stored.
type AttachmentUpload struct {
	FileName  string
	MimeType  string
	SizeBytes int64
	Content   io.Reader
}

// Uploader stores an attachment and returns its descriptor. Upload strictly
// precedes message creation so a message can never reference a missing file.
type Uploader interface {
	Upload(ctx context.Context, upload AttachmentUpload) (domain.AttachmentReference, error)
}

// Entry is one transcript row: either a persisted message or an optimistic
// placeholder awaiting its broadcast echo.
type Entry struct {
	Message domain.Message
	Pending bool
}

// SendFailure hands a failed send back to the composer so the input is not
// lost.
type SendFailure struct {
	TempID      string
	Text        string
	Attachments []AttachmentUpload
	Err         error
}

// Config wires a synchronizer to its collaborators.
type Config struct {
	CaseID      string
	Participant domain.Sender
	Topic       string
	Cases       CaseReader
	Messages    MessageStore
	Uploads     Uploader
	Channel     broadcast.Channel
	Logger      *zap.Logger
	// OnSendFailed, when set, receives failed sends as they happen.
	// Otherwise failures queue up for DrainFailures.
	OnSendFailed func(SendFailure)
}

// Synchronizer owns the single authoritative in-memory transcript for one
// open case. All user actions and broadcast events are serialized through
// one mutex, so no two reconciliation steps ever run concurrently.
type Synchronizer struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	kase    domain.Case
	opened  bool
	stale   bool
	entries []Entry
	seen    map[string]struct{}
	failed  []SendFailure
	handle  *broadcast.Handle
}

// NewSynchronizer builds an unopened synchronizer.
func NewSynchronizer(cfg Config) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		cfg:    cfg,
		logger: logger.With(zap.String("case_id", cfg.CaseID)),
		seen:   make(map[string]struct{}),
	}
}

// Open loads the transcript and establishes the broadcast subscription.
// Idempotent: a second call re-issues the initial load without
// resubscribing. Unresolved placeholders survive a reload unless the load
// already contains their persisted copy; the rest still promote through
// their broadcast echoes.
func (s *Synchronizer) Open(ctx context.Context) error {
	kase, err := s.cfg.Cases.GetByID(ctx, s.cfg.CaseID)
	if err != nil {
		return &LoadError{Err: err}
	}
	msgs, err := s.cfg.Messages.ListByCase(ctx, s.cfg.CaseID)
	if err != nil {
		return &LoadError{Err: err}
	}

	s.mu.Lock()
	s.kase = *kase
	var pending []Entry
	for _, e := range s.entries {
		if e.Pending {
			pending = append(pending, e)
		}
	}
	prevSeen := s.seen
	s.entries = make([]Entry, 0, len(msgs)+len(pending))
	s.seen = make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		s.entries = append(s.entries, Entry{Message: msg})
		s.seen[msg.ID] = struct{}{}
		if _, old := prevSeen[msg.ID]; old {
			continue
		}
		// A send that completed while we reloaded arrives persisted here
		// and its echo will be dropped as a duplicate, so retire the
		// placeholder now. Oldest structural match first, same as reconcile.
		for i, p := range pending {
			if p.Message.SenderID == msg.SenderID && p.Message.Text == msg.Text {
				pending = append(pending[:i], pending[i+1:]...)
				break
			}
		}
	}
	s.entries = append(s.entries, pending...)
	needSubscribe := s.handle == nil
	s.mu.Unlock()

	if needSubscribe {
		handle, err := s.cfg.Channel.Subscribe(s.cfg.Topic, s.handleEvent, s.onDrop)
		if err != nil {
			return &SubscriptionError{Err: err}
		}
		s.mu.Lock()
		s.handle = handle
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.opened = true
	s.stale = false
	s.mu.Unlock()
	return nil
}

// Close tears down the subscription. Safe to call repeatedly.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.opened = false
	s.mu.Unlock()

	if handle != nil {
		s.cfg.Channel.Unsubscribe(handle)
	}
}

// Send appends an optimistic placeholder synchronously, then creates the
// message in the store asynchronously. The returned id is the placeholder's
// temporary id. Rejected without any network call when chat is gated off,
// the subscription was lost, or the payload is empty or oversized.
func (s *Synchronizer) Send(text string, attachments []AttachmentUpload) (string, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return "", &SendError{Reason: "chat not open"}
	}
	if s.stale {
		s.mu.Unlock()
		return "", &SendError{Reason: "subscription lost, re-open chat"}
	}
	if !workflow.ChatEnabled(s.kase.Status) {
		s.mu.Unlock()
		return "", &SendError{Reason: "chat disabled for status " + string(s.kase.Status)}
	}
	if text == "" && len(attachments) == 0 {
		s.mu.Unlock()
		return "", &SendError{Reason: "empty message"}
	}
	for _, att := range attachments {
		if att.SizeBytes > storage.MaxAttachmentBytes {
			s.mu.Unlock()
			return "", &SendError{Reason: "attachment too large", Err: storage.ErrTooLarge}
		}
	}

	tempID := domain.TempIDPrefix + uuid.NewString()
	placeholder := domain.Message{
		ID:         tempID,
		CaseID:     s.cfg.CaseID,
		SenderID:   s.cfg.Participant.ID,
		SenderName: s.cfg.Participant.Name,
		SenderRole: s.cfg.Participant.Role,
		Text:       text,
		CreatedAt:  time.Now(),
	}
	for _, att := range attachments {
		placeholder.Attachments = append(placeholder.Attachments, domain.AttachmentReference{
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
		})
	}
	s.entries = append(s.entries, Entry{Message: placeholder, Pending: true})
	s.mu.Unlock()

	go s.deliver(tempID, text, attachments)
	return tempID, nil
}

// deliver uploads attachments, then creates the message. Runs detached from
// the caller: the composer is never blocked on a send in flight.
func (s *Synchronizer) deliver(tempID, text string, attachments []AttachmentUpload) {
	ctx := context.Background()

	refs := make([]domain.AttachmentReference, 0, len(attachments))
	for _, att := range attachments {
		ref, err := s.cfg.Uploads.Upload(ctx, att)
		if err != nil {
			s.failSend(tempID, text, attachments, err)
			return
		}
		refs = append(refs, ref)
	}

	_, err := s.cfg.Messages.Create(ctx, CreateInput{
		CaseID:      s.cfg.CaseID,
		Sender:      s.cfg.Participant,
		Text:        text,
		Attachments: refs,
	})
	if err != nil {
		s.failSend(tempID, text, attachments, err)
		return
	}
	// On success nothing happens here: promotion runs exclusively through
	// the broadcast path so the sender and every other participant converge
	// through identical code.
}

func (s *Synchronizer) failSend(tempID, text string, attachments []AttachmentUpload, err error) {
	s.logger.Warn("send failed, discarding placeholder",
		zap.String("temp_id", tempID), zap.Error(err))

	failure := SendFailure{
		TempID:      tempID,
		Text:        text,
		Attachments: attachments,
		Err:         &SendError{Reason: "message not persisted", Err: err},
	}

	s.mu.Lock()
	for i, e := range s.entries {
		if e.Pending && e.Message.ID == tempID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	callback := s.cfg.OnSendFailed
	if callback == nil {
		s.failed = append(s.failed, failure)
	}
	s.mu.Unlock()

	if callback != nil {
		callback(failure)
	}
}

// handleEvent is the broadcast subscription handler.
func (s *Synchronizer) handleEvent(event broadcast.Event) {
	if event.CaseID != s.cfg.CaseID {
		return
	}
	switch {
	case event.Entity == broadcast.EntityMessage && event.Op == broadcast.OpCreated && event.Message != nil:
		s.reconcile(event.Message.ToMessage())
	case event.Entity == broadcast.EntityCase && event.Op == broadcast.OpUpdated && event.Case != nil:
		s.applyCaseUpdate(event.Case)
	}
}

// reconcile merges one broadcast message into the transcript: promote the
// oldest matching placeholder in place, otherwise append. Matching is purely
// structural (sender id + exact text); a sender's own echo and another
// participant's message follow the same path. Duplicate broadcasts of an
// already-present id are dropped.
func (s *Synchronizer) reconcile(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[msg.ID]; dup {
		return
	}
	for i := range s.entries {
		e := &s.entries[i]
		if e.Pending && e.Message.SenderID == msg.SenderID && e.Message.Text == msg.Text {
			s.entries[i] = Entry{Message: msg}
			s.seen[msg.ID] = struct{}{}
			return
		}
	}
	s.entries = append(s.entries, Entry{Message: msg})
	s.seen[msg.ID] = struct{}{}
}

// applyCaseUpdate replaces the gating-relevant snapshot with the server's
// authoritative post-change values.
func (s *Synchronizer) applyCaseUpdate(payload *broadcast.CasePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kase.Status = payload.Status
	s.kase.ScheduledAt = payload.ScheduledAt
	s.kase.MeetingLink = payload.MeetingLink
	s.kase.Recommendation = payload.Recommendation
	s.kase.SuggestedServices = payload.SuggestedServices
	s.kase.ExpertID = payload.ExpertID
	s.kase.UpdatedAt = payload.UpdatedAt
}

func (s *Synchronizer) onDrop(err error) {
	s.mu.Lock()
	s.stale = true
	s.handle = nil
	s.mu.Unlock()
	s.logger.Warn("broadcast subscription lost; transcript is read-only until re-open", zap.Error(err))
}

// Transcript returns the current entries in local append order. Promotion
// replaces in place, so this order is stable for the life of the session.
func (s *Synchronizer) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Case returns the current case snapshot.
func (s *Synchronizer) Case() domain.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kase
}

// ChatEnabled recomputes the chat gate from the current snapshot.
func (s *Synchronizer) ChatEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return workflow.ChatEnabled(s.kase.Status)
}

// RecommendationsVisible recomputes the advice visibility gate.
func (s *Synchronizer) RecommendationsVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return workflow.RecommendationsVisible(s.kase.Status)
}

// MeetingActionable recomputes the meeting time gate at now.
func (s *Synchronizer) MeetingActionable(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return workflow.MeetingActionable(s.kase.ScheduledAt, now)
}

func (s *Synchronizer) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Stale reports whether the subscription was lost since the last Open.
func (s *Synchronizer) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// DrainFailures returns and clears queued send failures. Empty when an
// OnSendFailed callback is configured.
func (s *Synchronizer) DrainFailures() []SendFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.failed
	s.failed = nil
	return out
}
