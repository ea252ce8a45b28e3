package models

import "time"

// Order представляет заявку брокеру, порождённую ровно одним Action (1:1).
//
// Владелец записи - исполнитель ордеров; остальные компоненты читают её
// только для отображения и аудита.
type Order struct {
	ID            string     `json:"id" db:"id"`                           // uuid
	ActionID      string     `json:"action_id" db:"action_id"`
	ClientOrderID string     `json:"client_order_id" db:"client_order_id"` // bot-<uuid>, идемпотентный токен для брокера
	BrokerOrderID string     `json:"broker_order_id,omitempty" db:"broker_order_id"` // присваивается брокером при ack
	Symbol        string     `json:"symbol" db:"symbol"`
	Side          string     `json:"side" db:"side"`   // buy, sell
	Kind          string     `json:"kind" db:"kind"`   // market, limit
	LimitPrice    *float64   `json:"limit_price,omitempty" db:"limit_price"`
	Quantity      float64    `json:"quantity" db:"quantity"`
	FilledQty     float64    `json:"filled_qty" db:"filled_qty"`
	AvgFillPrice  float64    `json:"avg_fill_price" db:"avg_fill_price"`
	Status        string     `json:"status" db:"status"`
	ErrorMessage  string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	FilledAt      *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Статусы ордера
const (
	OrderStatusPending         = "pending"          // создан локально, брокеру не отправлен
	OrderStatusSubmitted       = "submitted"        // принят брокером, исполнения нет
	OrderStatusPartiallyFilled = "partially_filled" // есть частичные исполнения
	OrderStatusFilled          = "filled"
	OrderStatusCancelled       = "cancelled"
	OrderStatusRejected        = "rejected"
)

// IsTerminal возвращает true для финальных статусов ордера
func (o *Order) IsTerminal() bool {
	return OrderStatusIsTerminal(o.Status)
}

// OrderStatusIsTerminal проверяет терминальность статуса
func OrderStatusIsTerminal(status string) bool {
	return status == OrderStatusFilled || status == OrderStatusCancelled || status == OrderStatusRejected
}

// Fill - подтверждённое (частичное или полное) исполнение ордера.
//
// Пара (OrderID, Seq) - ключ идемпотентности: повторная доставка
// того же уведомления от брокера не меняет позицию.
type Fill struct {
	OrderID   string    `json:"order_id" db:"order_id"`
	Seq       int       `json:"seq" db:"seq"` // порядковый номер исполнения внутри ордера
	Symbol    string    `json:"symbol" db:"symbol"`
	Quantity  float64   `json:"quantity" db:"quantity"` // знаковое изменение позиции (buy > 0, sell < 0)
	Price     float64   `json:"price" db:"price"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
