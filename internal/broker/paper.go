package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PaperBroker - брокер-симулятор для paper-режима и тестов.
//
// Поведение по умолчанию: рыночный ордер исполняется целиком сразу
// по середине спреда последней котировки. Через SetFillSteps можно
// включить ступенчатое (частичное) исполнение: каждая следующая часть
// исполняется при очередном опросе GetOrderByClientID.
//
// Инъекции ошибок (FailNextSubmit, AmbiguousNextSubmit, RejectNextSubmit)
// позволяют воспроизводить сценарии сбоев брокера.
type PaperBroker struct {
	mu sync.Mutex

	quotes map[string]*Quote
	orders map[string]*paperOrder // ключ - clientOrderID
	seq    int

	// Ступени исполнения по символу: доли от количества ордера.
	// nil = немедленное полное исполнение.
	fillSteps map[string][]float64

	// Инъекции ошибок на следующий SubmitOrder
	nextErr       error
	nextAmbiguous bool
	nextReject    string

	fillCallbacks []func(update *OrderState)
}

type paperOrder struct {
	state     OrderState
	stepsLeft []float64
}

// NewPaperBroker создаёт брокер-симулятор
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		quotes:    make(map[string]*Quote),
		orders:    make(map[string]*paperOrder),
		fillSteps: make(map[string][]float64),
	}
}

// Name возвращает имя брокера
func (b *PaperBroker) Name() string {
	return "paper"
}

// SetQuote задаёт текущую котировку инструмента
func (b *PaperBroker) SetQuote(symbol string, bid, ask float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[symbol] = &Quote{
		Symbol:    symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		Timestamp: time.Now(),
	}
}

// SetFillSteps включает ступенчатое исполнение для символа.
// Доли должны суммироваться в 1.0.
func (b *PaperBroker) SetFillSteps(symbol string, steps []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillSteps[symbol] = steps
}

// FailNextSubmit делает следующий SubmitOrder неуспешным (ордер не создаётся)
func (b *PaperBroker) FailNextSubmit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextErr = err
}

// AmbiguousNextSubmit симулирует потерю ответа: ордер будет принят,
// но вызов вернёт временную ошибку
func (b *PaperBroker) AmbiguousNextSubmit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextAmbiguous = true
}

// RejectNextSubmit делает следующий SubmitOrder терминально отклонённым
func (b *PaperBroker) RejectNextSubmit(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextReject = reason
}

// SubmitOrder размещает ордер в симуляторе
func (b *PaperBroker) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.nextErr != nil {
		err := b.nextErr
		b.nextErr = nil
		return nil, err
	}

	// Идемпотентность: повтор с тем же токеном возвращает существующий ордер
	if existing, ok := b.orders[req.ClientOrderID]; ok {
		state := existing.state
		return &state, nil
	}

	if b.nextReject != "" {
		reason := b.nextReject
		b.nextReject = ""
		return nil, NewRejected(b.Name(), reason)
	}

	b.seq++
	po := &paperOrder{
		state: OrderState{
			BrokerOrderID: fmt.Sprintf("paper-%d", b.seq),
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			Status:        StatusSubmitted,
			UpdatedAt:     time.Now(),
		},
	}

	if steps, ok := b.fillSteps[req.Symbol]; ok && len(steps) > 0 {
		po.stepsLeft = append([]float64(nil), steps...)
	}

	b.orders[req.ClientOrderID] = po

	if b.nextAmbiguous {
		b.nextAmbiguous = false
		return nil, NewTransient(b.Name(), "submit timed out, outcome unknown", nil)
	}

	// Без ступеней - немедленное полное исполнение
	if po.stepsLeft == nil {
		b.fillLocked(po, 1.0)
	}

	state := po.state
	return &state, nil
}

// GetOrderByClientID возвращает состояние ордера, продвигая ступенчатое исполнение
func (b *PaperBroker) GetOrderByClientID(ctx context.Context, clientOrderID string) (*OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	po, ok := b.orders[clientOrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	if !StatusIsTerminal(po.state.Status) {
		if len(po.stepsLeft) > 0 {
			step := po.stepsLeft[0]
			po.stepsLeft = po.stepsLeft[1:]
			b.fillLocked(po, step)
		} else {
			// Ордер, принятый без немедленного исполнения
			// (потерянный ответ), доисполняется при опросе
			b.fillLocked(po, 1.0)
		}
	}

	state := po.state
	return &state, nil
}

// CancelOrder отменяет нетерминальный ордер
func (b *PaperBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, po := range b.orders {
		if po.state.BrokerOrderID == brokerOrderID {
			if !StatusIsTerminal(po.state.Status) {
				po.state.Status = StatusCancelled
				po.state.UpdatedAt = time.Now()
			}
			return nil
		}
	}
	return ErrOrderNotFound
}

// OpenOrders возвращает нетерминальные ордера
func (b *PaperBroker) OpenOrders(ctx context.Context) ([]*OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var open []*OrderState
	for _, po := range b.orders {
		if !StatusIsTerminal(po.state.Status) {
			state := po.state
			open = append(open, &state)
		}
	}
	return open, nil
}

// GetPositions агрегирует позиции из исполненных ордеров
func (b *PaperBroker) GetPositions(ctx context.Context) ([]*AccountPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	net := make(map[string]float64)
	cost := make(map[string]float64)
	for _, po := range b.orders {
		qty := po.state.FilledQty
		if qty == 0 {
			continue
		}
		if po.state.Side == SideSell {
			qty = -qty
		}
		net[po.state.Symbol] += qty
		cost[po.state.Symbol] += qty * po.state.AvgFillPrice
	}

	var positions []*AccountPosition
	for symbol, qty := range net {
		if qty == 0 {
			continue
		}
		positions = append(positions, &AccountPosition{
			Symbol:        symbol,
			Quantity:      qty,
			AvgEntryPrice: cost[symbol] / qty,
		})
	}
	return positions, nil
}

// LastQuote возвращает заданную котировку
func (b *PaperBroker) LastQuote(ctx context.Context, symbol string) (*Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	quote, ok := b.quotes[symbol]
	if !ok {
		return nil, NewTransient(b.Name(), fmt.Sprintf("no quote for %s", symbol), nil)
	}
	q := *quote
	return &q, nil
}

// SubscribeFills регистрирует колбэк на исполнения
func (b *PaperBroker) SubscribeFills(callback func(update *OrderState)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillCallbacks = append(b.fillCallbacks, callback)
	return nil
}

// Close сбрасывает состояние симулятора
func (b *PaperBroker) Close() error {
	return nil
}

// fillLocked исполняет долю ордера по текущей котировке. Вызывать под mu.
func (b *PaperBroker) fillLocked(po *paperOrder, fraction float64) {
	price := 100.0 // запасная цена если котировки нет
	if quote, ok := b.quotes[po.state.Symbol]; ok {
		if po.state.Side == SideBuy {
			price = quote.AskPrice
		} else {
			price = quote.BidPrice
		}
		if price == 0 {
			price = quote.Mid()
		}
	}

	fillQty := po.state.Quantity * fraction
	newFilled := po.state.FilledQty + fillQty
	if newFilled > po.state.Quantity {
		newFilled = po.state.Quantity
	}

	// Средневзвешенная цена исполнения
	po.state.AvgFillPrice = (po.state.AvgFillPrice*po.state.FilledQty + price*fillQty) / newFilled
	po.state.FilledQty = newFilled
	po.state.UpdatedAt = time.Now()

	if po.state.FilledQty >= po.state.Quantity {
		po.state.Status = StatusFilled
	} else {
		po.state.Status = StatusPartiallyFilled
	}

	state := po.state
	for _, cb := range b.fillCallbacks {
		go cb(&state)
	}
}
