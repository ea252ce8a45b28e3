package service

import (
	"time"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
)

// PositionRepositoryInterface определяет читающую часть репозитория позиций
type PositionRepositoryInterface interface {
	Get(symbol string) (*models.Position, error)
	GetAll() ([]*models.Position, error)
	GetClosed(limit int) ([]*models.ClosedPosition, error)
	TotalRealizedPnl() (float64, error)
}

// OrderRepositoryInterface определяет читающую часть репозитория ордеров
type OrderRepositoryInterface interface {
	GetByID(id string) (*models.Order, error)
	GetRecent(limit int) ([]*models.Order, error)
	GetBySymbol(symbol string, limit int) ([]*models.Order, error)
	GetActive() ([]*models.Order, error)
	GetFills(orderID string) ([]*models.Fill, error)
	CountByStatus(status string) (int, error)
}

// ActionRepositoryInterface определяет читающую часть репозитория действий
type ActionRepositoryInterface interface {
	GetByID(id string) (*models.Action, error)
	GetRecent(limit int) ([]*models.Action, error)
	CountByStatus(status string) (int, error)
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	GetRecent(limit int) ([]*models.Notification, error)
	GetBySymbol(symbol string, limit int) ([]*models.Notification, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// EngineControl - управляющая поверхность торгового ядра:
// постановка действий в пайплайн и возврат остановленных инструментов
// в работу. Реализуется координатором; в тестах подменяется mock'ом.
type EngineControl interface {
	Submit(action *models.Action) error
	ResumeSymbol(symbol string) bool
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ PositionRepositoryInterface = (*repository.PositionRepository)(nil)
var _ OrderRepositoryInterface = (*repository.OrderRepository)(nil)
var _ ActionRepositoryInterface = (*repository.ActionRepository)(nil)
var _ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// TradeServiceInterface определяет интерфейс торгового read-side сервиса
type TradeServiceInterface interface {
	GetPositions() ([]*models.Position, error)
	GetPosition(symbol string) (*models.Position, error)
	GetClosedPositions(limit int) ([]*models.ClosedPosition, error)
	GetOrders(symbol string, limit int) ([]*models.Order, error)
	GetOrderFills(orderID string) ([]*models.Fill, error)
	GetActions(limit int) ([]*models.Action, error)
	SubmitAction(action *models.Action) (*models.Action, error)
	ClosePosition(symbol string, fraction float64) (*models.Action, error)
	ResumeSymbol(symbol string) error
	GetStatus() (*EngineStatus, error)
}

// AuditServiceInterface определяет интерфейс сервиса журнала аудита
type AuditServiceInterface interface {
	GetNotifications(symbol string, limit int) ([]*models.Notification, error)
	Cleanup(retention time.Duration) (int64, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ TradeServiceInterface = (*TradeService)(nil)
var _ AuditServiceInterface = (*AuditService)(nil)
