package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// requestTimeout ограничивает каждый HTTP запрос к Alpaca.
// SDK не принимает context, поэтому граница живёт на уровне клиента:
// без неё зависший запрос держал бы воркер инструмента бесконечно.
const requestTimeout = 15 * time.Second

// newAPIHTTPClient возвращает HTTP клиент с ограниченным временем запроса
func newAPIHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// AlpacaBroker - адаптер брокера Alpaca.
//
// Идемпотентность обеспечивается полем ClientOrderID запроса: Alpaca
// отклоняет повторное размещение с тем же client_order_id, а
// GetOrderByClientOrderID находит ранее принятую заявку.
type AlpacaBroker struct {
	trading *alpaca.Client
	data    *marketdata.Client
}

// NewAlpacaBroker создаёт подключение к Alpaca
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	httpClient := newAPIHTTPClient()
	return &AlpacaBroker{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     apiKey,
			APISecret:  apiSecret,
			BaseURL:    baseURL,
			HTTPClient: httpClient,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     apiKey,
			APISecret:  apiSecret,
			HTTPClient: httpClient,
		}),
	}
}

// Name возвращает имя брокера
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// SubmitOrder размещает ордер с клиентским идемпотентным токеном
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderState, error) {
	qty := decimal.NewFromFloat(req.Quantity)

	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          toAlpacaSide(req.Side),
		Type:          toAlpacaType(req.Kind),
		TimeInForce:   alpaca.Day,
		ClientOrderID: req.ClientOrderID,
	}
	if req.LimitPrice != nil {
		limitPrice := decimal.NewFromFloat(*req.LimitPrice)
		orderReq.LimitPrice = &limitPrice
	}

	order, err := b.trading.PlaceOrder(orderReq)
	if err != nil {
		return nil, b.classify("place order", err)
	}

	return fromAlpacaOrder(order), nil
}

// GetOrderByClientID ищет ордер по клиентскому токену
func (b *AlpacaBroker) GetOrderByClientID(ctx context.Context, clientOrderID string) (*OrderState, error) {
	order, err := b.trading.GetOrderByClientOrderID(clientOrderID)
	if err != nil {
		return nil, b.classify("get order", err)
	}
	return fromAlpacaOrder(order), nil
}

// CancelOrder отменяет ордер
func (b *AlpacaBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := b.trading.CancelOrder(brokerOrderID); err != nil {
		return b.classify("cancel order", err)
	}
	return nil
}

// OpenOrders возвращает нетерминальные ордера аккаунта
func (b *AlpacaBroker) OpenOrders(ctx context.Context) ([]*OrderState, error) {
	orders, err := b.trading.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		return nil, b.classify("get open orders", err)
	}

	states := make([]*OrderState, 0, len(orders))
	for i := range orders {
		states = append(states, fromAlpacaOrder(&orders[i]))
	}
	return states, nil
}

// GetPositions возвращает открытые позиции аккаунта
func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]*AccountPosition, error) {
	positions, err := b.trading.GetPositions()
	if err != nil {
		return nil, b.classify("get positions", err)
	}

	result := make([]*AccountPosition, 0, len(positions))
	for _, pos := range positions {
		qty, _ := pos.Qty.Float64()
		entry, _ := pos.AvgEntryPrice.Float64()
		result = append(result, &AccountPosition{
			Symbol:        pos.Symbol,
			Quantity:      qty,
			AvgEntryPrice: entry,
		})
	}
	return result, nil
}

// LastQuote возвращает последнюю котировку через market data API
func (b *AlpacaBroker) LastQuote(ctx context.Context, symbol string) (*Quote, error) {
	quote, err := b.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return nil, b.classify("get quote", err)
	}

	return &Quote{
		Symbol:    symbol,
		BidPrice:  quote.BidPrice,
		AskPrice:  quote.AskPrice,
		Timestamp: quote.Timestamp,
	}, nil
}

// Close закрывает соединения (REST клиенты состояния не держат)
func (b *AlpacaBroker) Close() error {
	return nil
}

// classify переводит ошибку SDK в типизированную ошибку брокера.
//
// 404 -> ErrOrderNotFound, 429 и 5xx -> временная, прочие 4xx -> терминальная.
// Ошибки транспорта (не APIError) считаются временными.
func (b *AlpacaBroker) classify(op string, err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 404:
			return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return NewTransient(b.Name(), fmt.Sprintf("%s: %s", op, apiErr.Message), err)
		default:
			return &Error{
				Broker:    b.Name(),
				Code:      fmt.Sprintf("http_%d", apiErr.StatusCode),
				Message:   fmt.Sprintf("%s: %s", op, apiErr.Message),
				Transient: false,
				Original:  err,
			}
		}
	}

	return NewTransient(b.Name(), fmt.Sprintf("%s: %v", op, err), err)
}

func toAlpacaSide(side string) alpaca.Side {
	if side == SideSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func toAlpacaType(kind string) alpaca.OrderType {
	if kind == "limit" {
		return alpaca.Limit
	}
	return alpaca.Market
}

// fromAlpacaOrder переводит ордер SDK во внутреннее представление
func fromAlpacaOrder(order *alpaca.Order) *OrderState {
	var qty float64
	if order.Qty != nil {
		qty, _ = order.Qty.Float64()
	}
	filledQty, _ := order.FilledQty.Float64()

	var avgPrice float64
	if order.FilledAvgPrice != nil {
		avgPrice, _ = order.FilledAvgPrice.Float64()
	}

	updatedAt := order.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return &OrderState{
		BrokerOrderID: order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Quantity:      qty,
		FilledQty:     filledQty,
		AvgFillPrice:  avgPrice,
		Status:        fromAlpacaStatus(string(order.Status)),
		UpdatedAt:     updatedAt,
	}
}

// fromAlpacaStatus переводит статус Alpaca во внутренний
func fromAlpacaStatus(status string) string {
	switch status {
	case "filled":
		return StatusFilled
	case "partially_filled":
		return StatusPartiallyFilled
	case "canceled", "expired", "replaced", "done_for_day":
		return StatusCancelled
	case "rejected", "suspended", "stopped":
		return StatusRejected
	default:
		// new, accepted, pending_new и прочие промежуточные статусы
		return StatusSubmitted
	}
}
