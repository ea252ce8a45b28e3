package service

import (
	"fmt"
	"time"

	"signalpilot/internal/models"
)

// AuditService предоставляет доступ к журналу аудита пайплайна.
//
// Журнал заполняется торговым ядром (SUBMIT, FILL, CLOSE, REJECT,
// DUPLICATE, DEGRADED, RECOVERY, HALT); сервис только читает его
// и подчищает устаревшие записи.
type AuditService struct {
	notifications NotificationRepositoryInterface
}

// NewAuditService создает новый экземпляр AuditService.
func NewAuditService(notifications NotificationRepositoryInterface) *AuditService {
	return &AuditService{notifications: notifications}
}

// GetNotifications возвращает записи журнала (новые сверху).
// Если symbol пустой - по всем инструментам.
func (s *AuditService) GetNotifications(symbol string, limit int) ([]*models.Notification, error) {
	limit = normalizeLimit(limit)
	if symbol != "" {
		return s.notifications.GetBySymbol(symbol, limit)
	}
	return s.notifications.GetRecent(limit)
}

// Cleanup удаляет записи журнала старше retention.
// Возвращает количество удалённых записей.
func (s *AuditService) Cleanup(retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %v", retention)
	}
	return s.notifications.DeleteOlderThan(time.Now().Add(-retention))
}
