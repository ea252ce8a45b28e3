package bot

import (
	"fmt"

	"go.uber.org/zap"

	"signalpilot/internal/models"
)

// IdempotencyGuard отсекает повторную обработку одного сообщения-источника.
//
// Проверка и запись ключа атомарны (один INSERT с ON CONFLICT),
// поэтому два одновременных дубликата не могут пройти оба.
// Записывается только идентификатор сообщения: два разных сообщения
// с одинаковым содержимым - это два независимых сигнала.
type IdempotencyGuard struct {
	store    IdempotencyStore
	notifier *Notifier
	logger   *zap.Logger
}

// NewIdempotencyGuard создаёт guard
func NewIdempotencyGuard(store IdempotencyStore, notifier *Notifier, logger *zap.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Admit возвращает true если сообщение новое и действие можно ставить
// в очередь. Для дубликата пишет уведомление и возвращает false.
//
// Действия без SourceMessageID (синтезированные монитором или ручные)
// проходят без проверки: их уникальность гарантирует создатель.
func (g *IdempotencyGuard) Admit(action *models.Action) (bool, error) {
	if action.SourceMessageID == "" {
		return true, nil
	}

	isNew, err := g.store.RecordIfNew(action.SourceMessageID)
	if err != nil {
		return false, fmt.Errorf("idempotency check failed: %w", err)
	}

	if !isNew {
		DuplicatesSkipped.Inc()
		g.notifier.Notify(&models.Notification{
			Type:     models.NotificationTypeDuplicate,
			Severity: models.SeverityWarn,
			Symbol:   action.Symbol,
			ActionID: action.ID,
			Message:  fmt.Sprintf("duplicate message %s dropped", action.SourceMessageID),
		})
		g.logger.Warn("duplicate source message",
			zap.String("source_message_id", action.SourceMessageID),
			zap.String("symbol", action.Symbol))
		return false, nil
	}

	return true, nil
}

// Release снимает ключ сообщения, действие которого не попало
// в очередь. Запись ключа и постановка действия не атомарны;
// без отката ключа повтор доставки после сбоя очереди был бы
// молча отброшен как дубликат.
func (g *IdempotencyGuard) Release(action *models.Action) {
	if action.SourceMessageID == "" {
		return
	}
	if err := g.store.Release(action.SourceMessageID); err != nil {
		g.logger.Error("failed to release idempotency key",
			zap.String("source_message_id", action.SourceMessageID),
			zap.Error(err))
	}
}
