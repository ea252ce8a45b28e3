package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
)

// Ошибки торгового сервиса
var (
	// ErrPositionNotFound - позиции по инструменту нет
	ErrPositionNotFound = errors.New("position not found")

	// ErrInvalidFraction - доля закрытия вне (0, 1]
	ErrInvalidFraction = errors.New("fraction must be within (0, 1]")

	// ErrMissingSymbol - действие без инструмента
	ErrMissingSymbol = errors.New("symbol is required")

	// ErrInvalidSide - сторона действия не buy/sell/close
	ErrInvalidSide = errors.New("side must be buy, sell or close")

	// ErrInvalidKind - вид ордера не market/limit
	ErrInvalidKind = errors.New("kind must be market or limit")

	// ErrInvalidQuantity - отрицательное количество
	ErrInvalidQuantity = errors.New("quantity must not be negative")

	// ErrSymbolNotHalted - инструмент и так работает
	ErrSymbolNotHalted = errors.New("symbol is not halted")
)

// TradeService - read-side торгового пайплайна для API дашборда.
//
// Отвечает за:
// - Открытые позиции и архив закрытых с реализованным P&L
// - Историю ордеров с исполнениями
// - Историю действий (очередь + терминальные)
// - Приём внешних действий в пайплайн
// - Ручное закрытие позиции (через обычную очередь действий)
// - Возврат остановленного инструмента в работу
// - Сводный статус движка
//
// Сервис никогда не пишет в торговые таблицы напрямую: единственный
// мутирующий путь - постановка действия через EngineControl.
type TradeService struct {
	positions PositionRepositoryInterface
	orders    OrderRepositoryInterface
	actions   ActionRepositoryInterface
	engine    EngineControl
}

// NewTradeService создает новый экземпляр TradeService.
func NewTradeService(
	positions PositionRepositoryInterface,
	orders OrderRepositoryInterface,
	actions ActionRepositoryInterface,
	engine EngineControl,
) *TradeService {
	return &TradeService{
		positions: positions,
		orders:    orders,
		actions:   actions,
		engine:    engine,
	}
}

// GetPositions возвращает все открытые позиции.
func (s *TradeService) GetPositions() ([]*models.Position, error) {
	positions, err := s.positions.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	// Прикладываем нетерминальные ордера по инструментам
	active, err := s.orders.GetActive()
	if err != nil {
		return positions, nil
	}
	bySymbol := make(map[string][]string)
	for _, order := range active {
		bySymbol[order.Symbol] = append(bySymbol[order.Symbol], order.ID)
	}
	for _, position := range positions {
		position.OpenOrderIDs = bySymbol[position.Symbol]
	}

	return positions, nil
}

// GetPosition возвращает открытую позицию по инструменту.
func (s *TradeService) GetPosition(symbol string) (*models.Position, error) {
	position, err := s.positions.Get(symbol)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return position, nil
}

// GetClosedPositions возвращает архив закрытых позиций (новые сверху).
func (s *TradeService) GetClosedPositions(limit int) ([]*models.ClosedPosition, error) {
	return s.positions.GetClosed(normalizeLimit(limit))
}

// GetOrders возвращает историю ордеров.
// Если symbol пустой - последние ордера по всем инструментам.
func (s *TradeService) GetOrders(symbol string, limit int) ([]*models.Order, error) {
	limit = normalizeLimit(limit)
	if symbol != "" {
		return s.orders.GetBySymbol(symbol, limit)
	}
	return s.orders.GetRecent(limit)
}

// GetOrderFills возвращает исполнения ордера в порядке поступления.
func (s *TradeService) GetOrderFills(orderID string) ([]*models.Fill, error) {
	if _, err := s.orders.GetByID(orderID); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, repository.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return s.orders.GetFills(orderID)
}

// GetActions возвращает последние действия пайплайна.
func (s *TradeService) GetActions(limit int) ([]*models.Action, error) {
	return s.actions.GetRecent(normalizeLimit(limit))
}

// ClosePosition ставит ручное закрытие позиции в очередь действий.
//
// Закрытие идёт тем же путём, что сигнальные и мониторные действия:
// FIFO очередь инструмента, исполнитель, реестр позиций. Сервис
// не трогает позицию сам.
//
// fraction - доля позиции (0, 1]; 0 трактуется как полное закрытие.
func (s *TradeService) ClosePosition(symbol string, fraction float64) (*models.Action, error) {
	if fraction == 0 {
		fraction = 1.0
	}
	if fraction < 0 || fraction > 1 {
		return nil, ErrInvalidFraction
	}

	// Действие на несуществующую позицию завершится skipped,
	// но дашборду честнее отказать сразу
	if _, err := s.positions.Get(symbol); err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	action := &models.Action{
		ID:       uuid.New().String(),
		Symbol:   symbol,
		Side:     models.ActionSideClose,
		Fraction: fraction,
		Kind:     models.ActionKindMarket,
		Reason:   models.ActionReasonManual,
	}

	if err := s.engine.Submit(action); err != nil {
		return nil, fmt.Errorf("failed to enqueue close action: %w", err)
	}

	return action, nil
}

// SubmitAction принимает внешнее торговое действие в пайплайн.
//
// Путь тот же, что у сигнального фида: идемпотентный guard по
// source_message_id, FIFO очередь инструмента, исполнитель. Дубликат
// сообщения-источника не считается ошибкой: поставщику сигналов
// безопасно повторять доставку.
func (s *TradeService) SubmitAction(action *models.Action) (*models.Action, error) {
	if action.Symbol == "" {
		return nil, ErrMissingSymbol
	}
	switch action.Side {
	case models.ActionSideBuy, models.ActionSideSell, models.ActionSideClose:
	default:
		return nil, ErrInvalidSide
	}
	switch action.Kind {
	case "":
		action.Kind = models.ActionKindMarket
	case models.ActionKindMarket, models.ActionKindLimit:
	default:
		return nil, ErrInvalidKind
	}
	if action.Fraction < 0 || action.Fraction > 1 {
		return nil, ErrInvalidFraction
	}
	if action.Quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.Reason == "" {
		action.Reason = models.ActionReasonSignal
	}
	action.Status = models.ActionStatusQueued

	if err := s.engine.Submit(action); err != nil {
		return nil, fmt.Errorf("failed to enqueue action: %w", err)
	}

	return action, nil
}

// ResumeSymbol возвращает остановленный инструмент в работу.
// ErrSymbolNotHalted если исполнение по инструменту не останавливалось.
func (s *TradeService) ResumeSymbol(symbol string) error {
	if symbol == "" {
		return ErrMissingSymbol
	}
	if !s.engine.ResumeSymbol(symbol) {
		return ErrSymbolNotHalted
	}
	return nil
}

// EngineStatus - сводный статус движка для дашборда
type EngineStatus struct {
	OpenPositions    int     `json:"open_positions"`
	QueuedActions    int     `json:"queued_actions"`
	ClaimedActions   int     `json:"claimed_actions"`
	ActiveOrders     int     `json:"active_orders"`
	FilledOrders     int     `json:"filled_orders"`
	RejectedOrders   int     `json:"rejected_orders"`
	TotalRealizedPnl float64 `json:"total_realized_pnl"`
}

// GetStatus собирает сводный статус движка.
func (s *TradeService) GetStatus() (*EngineStatus, error) {
	status := &EngineStatus{}

	positions, err := s.positions.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	status.OpenPositions = len(positions)

	if status.QueuedActions, err = s.actions.CountByStatus(models.ActionStatusQueued); err != nil {
		return nil, fmt.Errorf("failed to count queued actions: %w", err)
	}
	if status.ClaimedActions, err = s.actions.CountByStatus(models.ActionStatusClaimed); err != nil {
		return nil, fmt.Errorf("failed to count claimed actions: %w", err)
	}

	active, err := s.orders.GetActive()
	if err != nil {
		return nil, fmt.Errorf("failed to get active orders: %w", err)
	}
	status.ActiveOrders = len(active)

	if status.FilledOrders, err = s.orders.CountByStatus(models.OrderStatusFilled); err != nil {
		return nil, fmt.Errorf("failed to count filled orders: %w", err)
	}
	if status.RejectedOrders, err = s.orders.CountByStatus(models.OrderStatusRejected); err != nil {
		return nil, fmt.Errorf("failed to count rejected orders: %w", err)
	}

	if status.TotalRealizedPnl, err = s.positions.TotalRealizedPnl(); err != nil {
		return nil, fmt.Errorf("failed to sum realized pnl: %w", err)
	}

	return status, nil
}

// normalizeLimit приводит лимит выборки к разумным границам
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}
