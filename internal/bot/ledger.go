package bot

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
)

// qtyEpsilon - порог, ниже которого количество считается нулём
const qtyEpsilon = 1e-9

// PositionLedger - реестр позиций, единственный писатель таблицы positions.
//
// Позиция меняется только по подтверждённым исполнениям. Дедупликация
// повторных доставок происходит на записи fill'а: если пара
// (order_id, seq) уже есть, исполнение не применяется. Накопительная
// статистика закрытия хранится в строке позиции, поэтому частичное
// закрытие переживает рестарт без потери P&L.
type PositionLedger struct {
	positions PositionStore
	orders    OrderStore
	notifier  *Notifier
	logger    *zap.Logger

	mu sync.Mutex
}

// NewPositionLedger создаёт реестр позиций
func NewPositionLedger(positions PositionStore, orders OrderStore, notifier *Notifier, logger *zap.Logger) *PositionLedger {
	return &PositionLedger{
		positions: positions,
		orders:    orders,
		notifier:  notifier,
		logger:    logger,
	}
}

// ApplyFill применяет исполнение к позиции инструмента.
//
// Возвращает позицию после применения (nil если позиция закрыта
// и архивирована). Повторная доставка того же исполнения - no-op.
func (l *PositionLedger) ApplyFill(fill *models.Fill) (*models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inserted, err := l.orders.InsertFill(fill)
	if err != nil {
		return nil, fmt.Errorf("failed to record fill: %w", err)
	}
	if !inserted {
		RecordFill(false)
		l.logger.Debug("duplicate fill dropped",
			zap.String("order_id", fill.OrderID),
			zap.Int("seq", fill.Seq))
		return l.currentOrNil(fill.Symbol)
	}
	RecordFill(true)

	position, err := l.positions.Get(fill.Symbol)
	if err != nil {
		if !errors.Is(err, repository.ErrPositionNotFound) {
			return nil, err
		}
		position = nil
	}

	// Новая позиция
	if position == nil || math.Abs(position.Quantity) < qtyEpsilon {
		position = &models.Position{
			Symbol:        fill.Symbol,
			Quantity:      fill.Quantity,
			AvgEntryPrice: fill.Price,
			MaxQuantity:   math.Abs(fill.Quantity),
			OpenedAt:      fill.Timestamp,
		}
		if err := l.positions.Upsert(position); err != nil {
			return nil, err
		}
		l.notifyFill(fill, position)
		return position, nil
	}

	sameDirection := (position.Quantity > 0) == (fill.Quantity > 0)

	if sameDirection {
		// Увеличение: средневзвешенная цена входа
		newQty := position.Quantity + fill.Quantity
		position.AvgEntryPrice = (position.AvgEntryPrice*position.Quantity + fill.Price*fill.Quantity) / newQty
		position.Quantity = newQty
		if math.Abs(newQty) > position.MaxQuantity {
			position.MaxQuantity = math.Abs(newQty)
		}
		if err := l.positions.Upsert(position); err != nil {
			return nil, err
		}
		l.notifyFill(fill, position)
		return position, nil
	}

	// Уменьшение: реализуем P&L на закрываемой части
	closing := math.Min(math.Abs(fill.Quantity), math.Abs(position.Quantity))
	direction := 1.0
	if position.Quantity < 0 {
		direction = -1.0
	}
	realized := closing * (fill.Price - position.AvgEntryPrice) * direction

	totalClosed := position.ClosedQty + closing
	position.AvgExitPrice = (position.AvgExitPrice*position.ClosedQty + fill.Price*closing) / totalClosed
	position.ClosedQty = totalClosed
	position.RealizedPnl += realized
	position.Quantity += fill.Quantity

	// Переворот: закрывающий ордер больше позиции
	var flipped *models.Position
	if math.Abs(position.Quantity) >= qtyEpsilon && (position.Quantity > 0) != (direction > 0) {
		flipped = &models.Position{
			Symbol:        fill.Symbol,
			Quantity:      position.Quantity,
			AvgEntryPrice: fill.Price,
			MaxQuantity:   math.Abs(position.Quantity),
			OpenedAt:      fill.Timestamp,
		}
		position.Quantity = 0
	}

	if math.Abs(position.Quantity) < qtyEpsilon {
		if err := l.archive(position, fill.Timestamp); err != nil {
			return nil, err
		}
		if flipped != nil {
			if err := l.positions.Upsert(flipped); err != nil {
				return nil, err
			}
			l.notifyFill(fill, flipped)
			return flipped, nil
		}
		l.notifyFill(fill, nil)
		return nil, nil
	}

	if err := l.positions.Upsert(position); err != nil {
		return nil, err
	}
	l.notifyFill(fill, position)
	return position, nil
}

// SetExits задаёт уровни выхода позиции
func (l *PositionLedger) SetExits(symbol string, stopPrice, targetPrice *float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.positions.UpdateExits(symbol, stopPrice, targetPrice)
	if errors.Is(err, repository.ErrPositionNotFound) {
		return ErrNoPosition
	}
	return err
}

// Get возвращает открытую позицию инструмента (nil если её нет)
func (l *PositionLedger) Get(symbol string) (*models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentOrNil(symbol)
}

// GetAll возвращает все открытые позиции
func (l *PositionLedger) GetAll() ([]*models.Position, error) {
	return l.positions.GetAll()
}

func (l *PositionLedger) currentOrNil(symbol string) (*models.Position, error) {
	position, err := l.positions.Get(symbol)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return position, nil
}

// archive переносит обнулённую позицию в closed_positions
func (l *PositionLedger) archive(position *models.Position, closedAt time.Time) error {
	closed := &models.ClosedPosition{
		Symbol:        position.Symbol,
		Quantity:      position.MaxQuantity,
		AvgEntryPrice: position.AvgEntryPrice,
		AvgExitPrice:  position.AvgExitPrice,
		RealizedPnl:   position.RealizedPnl,
		OpenedAt:      position.OpenedAt,
		ClosedAt:      closedAt,
	}

	if err := l.positions.Archive(closed); err != nil {
		return fmt.Errorf("failed to archive position: %w", err)
	}
	if err := l.positions.Delete(position.Symbol); err != nil {
		return err
	}

	RealizedPnl.Add(closed.RealizedPnl)
	l.notifier.Notify(&models.Notification{
		Type:    models.NotificationTypeClose,
		Symbol:  position.Symbol,
		Message: fmt.Sprintf("position closed, realized P&L %.2f", closed.RealizedPnl),
		Meta: map[string]interface{}{
			"quantity":        closed.Quantity,
			"avg_entry_price": closed.AvgEntryPrice,
			"avg_exit_price":  closed.AvgExitPrice,
			"realized_pnl":    closed.RealizedPnl,
		},
	})

	return nil
}

func (l *PositionLedger) notifyFill(fill *models.Fill, position *models.Position) {
	meta := map[string]interface{}{
		"quantity": fill.Quantity,
		"price":    fill.Price,
		"seq":      fill.Seq,
	}
	if position != nil {
		meta["position_qty"] = position.Quantity
	}
	l.notifier.Notify(&models.Notification{
		Type:    models.NotificationTypeFill,
		Symbol:  fill.Symbol,
		OrderID: fill.OrderID,
		Message: fmt.Sprintf("fill %+.4f @ %.4f", fill.Quantity, fill.Price),
		Meta:    meta,
	})
}
