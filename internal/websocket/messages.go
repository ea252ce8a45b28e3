package websocket

import (
	"time"

	"signalpilot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeNotification - событие пайплайна (SUBMIT, FILL, CLOSE,
	// REJECT, DUPLICATE, DEGRADED, RECOVERY, HALT)
	MessageTypeNotification MessageType = "notification"

	// MessageTypePositionUpdate - изменение открытой позиции
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeOrderUpdate - изменение состояния ордера
	MessageTypeOrderUpdate MessageType = "orderUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// NotificationMessage - сообщение о событии пайплайна
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// PositionUpdateMessage - сообщение об изменении позиции.
// Data равен nil если позиция закрыта и архивирована.
type PositionUpdateMessage struct {
	BaseMessage
	Symbol string           `json:"symbol"`
	Data   *models.Position `json:"data,omitempty"`
}

// OrderUpdateMessage - сообщение об изменении ордера
type OrderUpdateMessage struct {
	BaseMessage
	Data *models.Order `json:"data"`
}

// NewNotificationMessage создает сообщение о событии пайплайна
func NewNotificationMessage(notification *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: notification,
	}
}

// NewPositionUpdateMessage создает сообщение об изменении позиции
func NewPositionUpdateMessage(symbol string, position *models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now(),
		},
		Symbol: symbol,
		Data:   position,
	}
}

// NewOrderUpdateMessage создает сообщение об изменении ордера
func NewOrderUpdateMessage(order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		Data: order,
	}
}
