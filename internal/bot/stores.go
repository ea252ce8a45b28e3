package bot

import (
	"time"

	"signalpilot/internal/models"
)

// Интерфейсы хранилищ, нужные торговому ядру.
// Реализуются репозиториями из internal/repository; в тестах
// подменяются in-memory фейками.

// ActionStore - долговечная очередь действий
type ActionStore interface {
	Create(action *models.Action) error
	GetByID(id string) (*models.Action, error)
	NextQueued(symbol string) (*models.Action, error)
	Claim(id string) error
	Requeue(id string) error
	Complete(id string, status string) error
	GetClaimed() ([]*models.Action, error)
	PendingSymbols() ([]string, error)
}

// OrderStore - ордера и их исполнения
type OrderStore interface {
	Create(order *models.Order) error
	GetByID(id string) (*models.Order, error)
	GetByActionID(actionID string) (*models.Order, error)
	GetActive() ([]*models.Order, error)
	MarkSubmitted(id, brokerOrderID string) error
	UpdateProgress(id, status string, filledQty, avgFillPrice float64, filledAt *time.Time) error
	SetError(id, errorMessage string) error
	InsertFill(fill *models.Fill) (bool, error)
	GetFills(orderID string) ([]*models.Fill, error)
	NextFillSeq(orderID string) (int, error)
}

// PositionStore - открытые позиции и архив закрытых
type PositionStore interface {
	Get(symbol string) (*models.Position, error)
	GetAll() ([]*models.Position, error)
	Upsert(position *models.Position) error
	UpdateExits(symbol string, stopPrice, targetPrice *float64) error
	Delete(symbol string) error
	Archive(closed *models.ClosedPosition) error
}

// IdempotencyStore - реестр обработанных сообщений-источников
type IdempotencyStore interface {
	RecordIfNew(key string) (bool, error)
	Release(key string) error
	PruneOlderThan(timestamp time.Time) (int64, error)
}

// NotificationStore - журнал аудита
type NotificationStore interface {
	Create(n *models.Notification) error
}
