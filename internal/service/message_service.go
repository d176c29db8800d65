package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/chat"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/repository"
	"github.com/spec-kit/consult-case-service/internal/workflow"
	apperrors "github.com/spec-kit/consult-case-service/pkg/util/errorutil"
)

// MessageService is the durable side of the chat pipeline. It persists
// messages and re-broadcasts each one to every subscriber, which is the only
// path by which optimistic placeholders resolve.
type MessageService struct {
	cases       repository.CaseRepository
	messages    repository.MessageRepository
	attachments repository.AttachmentRepository
	channel     broadcast.Channel
	topic       string
	logger      *zap.Logger
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	CaseRepo       repository.CaseRepository
	MessageRepo    repository.MessageRepository
	AttachmentRepo repository.AttachmentRepository
	Channel        broadcast.Channel
	Topic          string
	Logger         *zap.Logger
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		cases:       deps.CaseRepo,
		messages:    deps.MessageRepo,
		attachments: deps.AttachmentRepo,
		channel:     deps.Channel,
		topic:       deps.Topic,
		logger:      logger,
	}
}

// ListByCase returns the full transcript with attachments, oldest first.
func (s *MessageService) ListByCase(ctx context.Context, caseID string) ([]domain.Message, error) {
	msgs, err := s.messages.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		refs, err := s.attachments.ListByMessage(ctx, msgs[i].ID)
		if err != nil {
			return nil, err
		}
		msgs[i].Attachments = refs
	}
	return msgs, nil
}

// Create persists one message and broadcasts it. The sender must be a
// participant of the case and chat must be enabled for the current status;
// both are re-checked here because the client's snapshot may be behind.
func (s *MessageService) Create(ctx context.Context, input chat.CreateInput) (*domain.Message, error) {
	kase, err := s.cases.GetByID(ctx, input.CaseID)
	if err != nil {
		return nil, err
	}
	if !senderBelongsToCase(input.Sender, kase) {
		return nil, apperrors.NewForbidden("not a participant of this case")
	}
	if !workflow.ChatEnabled(kase.Status) {
		return nil, apperrors.NewConflict("chat disabled for status "+string(kase.Status), nil)
	}

	text := strings.TrimSpace(input.Text)
	if text == "" && len(input.Attachments) == 0 {
		return nil, apperrors.NewValidationError("empty message", nil)
	}

	msg := &domain.Message{
		CaseID:     kase.ID,
		SenderID:   input.Sender.ID,
		SenderName: input.Sender.Name,
		SenderRole: input.Sender.Role,
		Text:       text,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	for _, ref := range input.Attachments {
		record := ref
		record.MessageID = msg.ID
		if err := s.attachments.Create(ctx, &record); err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, record)
	}

	if s.channel != nil {
		if err := s.channel.Publish(ctx, s.topic, broadcast.MessageEvent(broadcast.OpCreated, msg)); err != nil {
			s.logger.Warn("message broadcast failed",
				zap.String("case_id", kase.ID), zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return msg, nil
}

func senderBelongsToCase(sender domain.Sender, kase *domain.Case) bool {
	switch sender.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleCustomer:
		return kase.CustomerID == sender.ID
	case domain.RoleExpert:
		return kase.ExpertID != nil && *kase.ExpertID == sender.ID
	}
	return false
}
