package bot

import (
	"time"

	"go.uber.org/zap"

	"signalpilot/internal/models"
)

// Notifier записывает события пайплайна в журнал аудита
// и рассылает их подписчикам (websocket дашборда).
//
// Ошибка записи в журнал не прерывает торговую операцию:
// уведомления вторичны по отношению к исполнению.
type Notifier struct {
	store     NotificationStore
	broadcast func(n *models.Notification)
	logger    *zap.Logger
}

// NewNotifier создаёт Notifier. broadcast может быть nil.
func NewNotifier(store NotificationStore, broadcast func(n *models.Notification), logger *zap.Logger) *Notifier {
	return &Notifier{
		store:     store,
		broadcast: broadcast,
		logger:    logger,
	}
}

// Notify сохраняет и рассылает уведомление
func (n *Notifier) Notify(notification *models.Notification) {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}
	if notification.Severity == "" {
		notification.Severity = models.SeverityInfo
	}

	if n.store != nil {
		if err := n.store.Create(notification); err != nil {
			n.logger.Error("failed to persist notification",
				zap.String("type", notification.Type),
				zap.Error(err))
		}
	}

	if n.broadcast != nil {
		n.broadcast(notification)
	}

	fields := []zap.Field{
		zap.String("type", notification.Type),
		zap.String("symbol", notification.Symbol),
		zap.String("message", notification.Message),
	}
	switch notification.Severity {
	case models.SeverityError:
		n.logger.Error("pipeline event", fields...)
	case models.SeverityWarn:
		n.logger.Warn("pipeline event", fields...)
	default:
		n.logger.Info("pipeline event", fields...)
	}
}
