package broker

import (
	"context"
	"time"
)

// Broker определяет унифицированный интерфейс исполнения ордеров.
//
// Ключевое требование: SubmitOrder принимает клиентский идемпотентный
// токен (ClientOrderID). Если предыдущая попытка завершилась неоднозначно
// (таймаут после отправки), повтор с тем же токеном не создаёт второй
// ордер - брокер дедуплицирует на своей стороне, а GetOrderByClientID
// позволяет найти уже принятую заявку.
type Broker interface {
	// Name возвращает имя брокера
	Name() string

	// SubmitOrder отправляет ордер. Повторная отправка с тем же
	// ClientOrderID возвращает уже существующий ордер.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderState, error)

	// GetOrderByClientID возвращает состояние ордера по клиентскому токену.
	// ErrOrderNotFound если брокер о таком ордере не знает.
	GetOrderByClientID(ctx context.Context, clientOrderID string) (*OrderState, error)

	// CancelOrder отменяет ордер по брокерскому id
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// OpenOrders возвращает все нетерминальные ордера аккаунта
	OpenOrders(ctx context.Context) ([]*OrderState, error)

	// GetPositions возвращает открытые позиции аккаунта
	GetPositions(ctx context.Context) ([]*AccountPosition, error)

	// LastQuote возвращает последнюю котировку инструмента
	LastQuote(ctx context.Context, symbol string) (*Quote, error)

	// Close закрывает соединения с брокером
	Close() error
}

// FillStream - опциональная push-способность брокера.
//
// Мониторинг и трекинг ордеров работают и без неё (опрос), но если
// брокер умеет присылать исполнения сам, колбэк снимает задержку опроса.
type FillStream interface {
	// SubscribeFills подписывается на уведомления об исполнениях
	SubscribeFills(callback func(update *OrderState)) error
}

// OrderRequest - запрос на размещение ордера
type OrderRequest struct {
	Symbol        string
	Side          string // "buy" или "sell"
	Kind          string // "market" или "limit"
	Quantity      float64
	LimitPrice    *float64
	ClientOrderID string // идемпотентный токен, обязателен
}

// OrderState - состояние ордера на стороне брокера
type OrderState struct {
	BrokerOrderID string    `json:"broker_order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Quantity      float64   `json:"quantity"`
	FilledQty     float64   `json:"filled_qty"`
	AvgFillPrice  float64   `json:"avg_fill_price"`
	Status        string    `json:"status"` // submitted, partially_filled, filled, cancelled, rejected
	Reason        string    `json:"reason,omitempty"` // причина отклонения
	UpdatedAt     time.Time `json:"updated_at"`
}

// AccountPosition - позиция на брокерском аккаунте
type AccountPosition struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"` // знаковое: <0 short
	AvgEntryPrice float64 `json:"avg_entry_price"`
}

// Quote - котировка инструмента
type Quote struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid возвращает середину спреда (0 если котировка пустая)
func (q *Quote) Mid() float64 {
	if q.BidPrice == 0 && q.AskPrice == 0 {
		return 0
	}
	if q.BidPrice == 0 {
		return q.AskPrice
	}
	if q.AskPrice == 0 {
		return q.BidPrice
	}
	return (q.BidPrice + q.AskPrice) / 2
}

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Статусы ордера на стороне брокера
const (
	StatusSubmitted       = "submitted"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
)

// StatusIsTerminal проверяет терминальность брокерского статуса
func StatusIsTerminal(status string) bool {
	return status == StatusFilled || status == StatusCancelled || status == StatusRejected
}
