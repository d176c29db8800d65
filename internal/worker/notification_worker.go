package worker

import (
	"github.com/spec-kit/consult-case-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to the
// broadcast topic.
func StartNotificationWorker(notificationService *service.NotificationService) error {
	if notificationService == nil {
		return nil
	}
	return notificationService.Start()
}
