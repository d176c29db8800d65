package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/config"
)

// NotificationService fans case and message events out to notification
// channels. It subscribes to the same broadcast topic as chat sessions.
type NotificationService struct {
	channel broadcast.Channel
	topic   string
	logger  *zap.Logger
	cfg     config.NotificationConfig
	handle  *broadcast.Handle
}

// NewNotificationService creates the service.
func NewNotificationService(channel broadcast.Channel, topic string, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		channel: channel,
		topic:   topic,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start subscribes to the broadcast topic.
func (n *NotificationService) Start() error {
	if n.channel == nil || n.handle != nil {
		return nil
	}
	handle, err := n.channel.Subscribe(n.topic, n.handleEvent, n.onDrop)
	if err != nil {
		return err
	}
	n.handle = handle
	return nil
}

// Stop tears down the subscription.
func (n *NotificationService) Stop() {
	if n.handle == nil {
		return
	}
	n.channel.Unsubscribe(n.handle)
	n.handle = nil
}

func (n *NotificationService) handleEvent(event broadcast.Event) {
	switch {
	case event.Entity == broadcast.EntityCase && event.Op == broadcast.OpCreated:
		n.logger.Info("CaseCreated", zap.String("case_id", event.CaseID))
		n.sendEmailNotificationStub(event)
		n.sendWebhookNotificationStub(event)
	case event.Entity == broadcast.EntityCase && event.Op == broadcast.OpUpdated && event.Case != nil:
		n.logger.Info("CaseUpdated",
			zap.String("case_id", event.CaseID),
			zap.String("status", string(event.Case.Status)))
		n.sendWebhookNotificationStub(event)
	case event.Entity == broadcast.EntityMessage && event.Op == broadcast.OpCreated && event.Message != nil:
		n.logger.Info("MessageCreated",
			zap.String("case_id", event.CaseID),
			zap.String("message_id", event.Message.ID))
		n.sendEmailNotificationStub(event)
	}
}

func (n *NotificationService) onDrop(err error) {
	n.logger.Warn("notification subscription lost", zap.Error(err))
	n.handle = nil
}

func (n *NotificationService) sendEmailNotificationStub(event broadcast.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("case_id", event.CaseID),
		zap.String("entity", string(event.Entity)),
		zap.String("op", string(event.Op)))
}

func (n *NotificationService) sendWebhookNotificationStub(event broadcast.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("case_id", event.CaseID),
		zap.String("entity", string(event.Entity)),
		zap.String("op", string(event.Op)))
}
