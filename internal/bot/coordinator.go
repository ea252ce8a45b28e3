package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"signalpilot/internal/config"
	"signalpilot/internal/models"
)

// Coordinator связывает очередь, guard, исполнитель и реестр позиций
// в единый жизненный цикл сделки.
//
// Модель конкурентности: на инструмент лениво поднимается один воркер,
// и только он исполняет действия этого инструмента. Внутри инструмента
// действия идут строго по одному, в порядке очереди; разные инструменты
// работают параллельно и не мешают друг другу.
type Coordinator struct {
	queue    *ActionQueue
	guard    *IdempotencyGuard
	executor *OrderExecutor
	ledger   *PositionLedger

	instruments config.InstrumentsConfig
	cfg         config.EngineConfig
	notifier    *Notifier
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]bool
	halted  map[string]bool
}

// NewCoordinator создаёт координатор жизненного цикла сделок
func NewCoordinator(queue *ActionQueue, guard *IdempotencyGuard, executor *OrderExecutor, ledger *PositionLedger, instruments config.InstrumentsConfig, cfg config.EngineConfig, notifier *Notifier, logger *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		queue:       queue,
		guard:       guard,
		executor:    executor,
		ledger:      ledger,
		instruments: instruments,
		cfg:         cfg,
		notifier:    notifier,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		workers:     make(map[string]bool),
		halted:      make(map[string]bool),
	}
}

// Submit принимает действие из внешнего источника (фид сигналов, API).
// Дубликат сообщения-источника отбрасывается guard'ом без ошибки.
func (c *Coordinator) Submit(action *models.Action) error {
	admitted, err := c.guard.Admit(action)
	if err != nil {
		return err
	}
	if !admitted {
		return nil
	}
	if err := c.EnqueueInternal(action); err != nil {
		// Действие не встало в очередь: ключ снимается, иначе повтор
		// той же доставки был бы молча отброшен как дубликат
		c.guard.Release(action)
		return err
	}
	return nil
}

// EnqueueInternal ставит действие в очередь, минуя guard.
// Для действий, синтезированных монитором или ручным закрытием.
func (c *Coordinator) EnqueueInternal(action *models.Action) error {
	if c.isHalted(action.Symbol) {
		return fmt.Errorf("%s: %w", action.Symbol, ErrSymbolHalted)
	}
	if err := c.queue.Enqueue(action); err != nil {
		return err
	}
	c.ensureWorker(action.Symbol)
	return nil
}

// StartWorkers поднимает воркеры для инструментов с неотработанными
// действиями (вызывается после восстановления при старте)
func (c *Coordinator) StartWorkers(symbols []string) {
	for _, symbol := range symbols {
		c.ensureWorker(symbol)
	}
}

// HaltSymbol останавливает исполнение по инструменту до ручной сверки
// и последующего ResumeSymbol (или рестарта процесса).
// Остальные инструменты продолжают работать.
func (c *Coordinator) HaltSymbol(symbol, details string) {
	c.mu.Lock()
	already := c.halted[symbol]
	c.halted[symbol] = true
	c.mu.Unlock()

	if already {
		return
	}

	HaltedSymbols.Inc()
	c.notifier.Notify(&models.Notification{
		Type:     models.NotificationTypeHalt,
		Severity: models.SeverityError,
		Symbol:   symbol,
		Message:  fmt.Sprintf("execution halted: %s", details),
	})
}

// ResumeSymbol возвращает остановленный инструмент в работу после
// ручной сверки. Возвращает false если инструмент не был остановлен.
func (c *Coordinator) ResumeSymbol(symbol string) bool {
	c.mu.Lock()
	halted := c.halted[symbol]
	delete(c.halted, symbol)
	c.mu.Unlock()

	if !halted {
		return false
	}

	HaltedSymbols.Dec()
	c.notifier.Notify(&models.Notification{
		Type:    models.NotificationTypeResume,
		Symbol:  symbol,
		Message: "execution resumed after manual reconciliation",
	})
	c.ensureWorker(symbol)
	return true
}

// Shutdown останавливает воркеры и дожидается их завершения.
// Действия в очереди остаются в БД и будут исполнены после рестарта.
func (c *Coordinator) Shutdown() {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

func (c *Coordinator) isHalted(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted[symbol]
}

// ensureWorker лениво запускает воркер инструмента
func (c *Coordinator) ensureWorker(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.workers[symbol] || c.halted[symbol] {
		return
	}
	c.workers[symbol] = true

	c.wg.Add(1)
	ActiveWorkers.Inc()
	go c.runWorker(symbol)
}

// runWorker - цикл воркера инструмента: одно действие за раз, строго FIFO
func (c *Coordinator) runWorker(symbol string) {
	defer c.wg.Done()
	defer ActiveWorkers.Dec()

	logger := c.logger.With(zap.String("symbol", symbol))
	logger.Info("worker started")

	wake := c.queue.Subscribe(symbol)

	for {
		action, err := c.queue.Next(symbol)
		if err != nil {
			logger.Error("failed to fetch next action", zap.Error(err))
		}

		if action == nil {
			select {
			case <-c.ctx.Done():
				logger.Info("worker stopped")
				return
			case <-wake:
				continue
			}
		}

		if stop := c.runAction(action, logger); stop {
			return
		}

		select {
		case <-c.ctx.Done():
			logger.Info("worker stopped")
			return
		default:
		}
	}
}

// runAction ведёт одно claimed действие до терминального статуса.
//
// Временный сбой не пропускает действие вперёд: следующее действие
// инструмента не берётся, пока текущее не завершено, иначе у одного
// инструмента оказалось бы два ордера в полёте. Повтор идёт по тому же
// claimed действию с нарастающей задержкой; shutdown оставляет его
// claimed для восстановления после рестарта.
//
// Возвращает true если воркер должен остановиться (halt или shutdown).
func (c *Coordinator) runAction(action *models.Action, logger *zap.Logger) bool {
	delay := c.cfg.RetryBackoff
	for {
		err := c.process(action, logger)
		if err == nil {
			return false
		}

		var inconsistency *InconsistencyError
		if errors.As(err, &inconsistency) {
			c.HaltSymbol(action.Symbol, inconsistency.Details)
			c.mu.Lock()
			delete(c.workers, action.Symbol)
			c.mu.Unlock()
			logger.Error("worker halted", zap.Error(err))
			return true
		}

		logger.Error("action failed, retrying",
			zap.String("action_id", action.ID),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-c.ctx.Done():
			logger.Info("worker stopped")
			return true
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.RetryCeiling {
			delay = c.cfg.RetryCeiling
		}
	}
}

// process исполняет одно действие до терминального статуса
func (c *Coordinator) process(action *models.Action, logger *zap.Logger) error {
	var side string
	var qty float64

	// Действие, прерванное рестартом, продолжает свой существующий
	// ордер: сторона и количество берутся из него, а не разрешаются
	// заново по изменившейся позиции
	existing, err := c.executor.ExistingOrder(action.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		side, qty = existing.Side, existing.Quantity
		return c.finishExecution(action, side, qty, logger)
	}

	side, qty, err = c.resolve(action)
	if err != nil {
		var limitErr *PositionLimitError
		switch {
		case errors.Is(err, ErrNoPosition):
			// Закрытие без позиции: сигнал устарел или позиция уже закрыта
			logger.Warn("close action with no open position", zap.String("action_id", action.ID))
			return c.queue.Complete(action, models.ActionStatusSkipped)
		case errors.As(err, &limitErr):
			c.notifier.Notify(&models.Notification{
				Type:     models.NotificationTypeReject,
				Severity: models.SeverityWarn,
				Symbol:   action.Symbol,
				ActionID: action.ID,
				Message:  limitErr.Error(),
			})
			return c.queue.Complete(action, models.ActionStatusFailed)
		default:
			return err
		}
	}

	if qty < qtyEpsilon {
		logger.Warn("action resolved to zero quantity", zap.String("action_id", action.ID))
		return c.queue.Complete(action, models.ActionStatusSkipped)
	}

	return c.finishExecution(action, side, qty, logger)
}

// finishExecution ведёт ордер действия до терминального статуса
// и фиксирует итог действия
func (c *Coordinator) finishExecution(action *models.Action, side string, qty float64, logger *zap.Logger) error {
	order, execErr := c.executor.Execute(c.ctx, action, side, qty)

	if execErr != nil {
		var inconsistency *InconsistencyError
		if errors.As(execErr, &inconsistency) {
			return execErr
		}
		if order != nil && order.Status == models.OrderStatusRejected {
			if err := c.queue.Complete(action, models.ActionStatusFailed); err != nil {
				return err
			}
			return nil
		}
		// Временная ошибка: действие остаётся claimed, рестарт продолжит его
		return execErr
	}

	// Уровни выхода для открывающих действий
	if action.Side != models.ActionSideClose && order.Status == models.OrderStatusFilled {
		if err := c.applyExits(action, order); err != nil {
			logger.Warn("failed to set exit levels", zap.Error(err))
		}
	}

	status := models.ActionStatusDone
	if order.Status == models.OrderStatusRejected || order.Status == models.OrderStatusCancelled && order.FilledQty < qtyEpsilon {
		status = models.ActionStatusFailed
	}
	return c.queue.Complete(action, status)
}

// resolve переводит действие в сторону и количество ордера.
//
// Порядок разрешения количества:
//  1. close - вся позиция либо её доля (Fraction);
//  2. Fraction у buy/sell - доля текущей позиции (trim/add);
//  3. явное Quantity;
//  4. описательный Sizing (small/medium/large).
func (c *Coordinator) resolve(action *models.Action) (string, float64, error) {
	position, err := c.ledger.Get(action.Symbol)
	if err != nil {
		return "", 0, err
	}

	if action.Side == models.ActionSideClose {
		if position == nil {
			return "", 0, ErrNoPosition
		}
		fraction := action.Fraction
		if fraction <= 0 || fraction > 1 {
			fraction = 1.0
		}
		qty := math.Abs(position.Quantity) * fraction
		side := models.ActionSideSell
		if position.Quantity < 0 {
			side = models.ActionSideBuy
		}
		return side, qty, nil
	}

	var qty float64
	switch {
	case action.Fraction > 0 && position != nil:
		qty = math.Abs(position.Quantity) * action.Fraction
	case action.Quantity > 0:
		qty = action.Quantity
	default:
		qty = models.SizingQuantity(action.Sizing)
	}

	// Лимит размера позиции
	limits := c.instruments.Limits(action.Symbol)
	if limits.MaxPositionQty > 0 {
		current := 0.0
		if position != nil {
			current = position.Quantity
		}
		delta := qty
		if action.Side == models.ActionSideSell {
			delta = -qty
		}
		if math.Abs(current+delta) > limits.MaxPositionQty+qtyEpsilon {
			return "", 0, &PositionLimitError{
				Symbol:    action.Symbol,
				Requested: math.Abs(current + delta),
				Limit:     limits.MaxPositionQty,
			}
		}
	}

	return action.Side, qty, nil
}

// applyExits задаёт stop/target открытой позиции: из действия либо
// из процентных дефолтов инструмента
func (c *Coordinator) applyExits(action *models.Action, order *models.Order) error {
	position, err := c.ledger.Get(action.Symbol)
	if err != nil || position == nil {
		return err
	}

	stop := action.StopPrice
	target := action.TargetPrice

	limits := c.instruments.Limits(action.Symbol)
	entry := position.AvgEntryPrice
	direction := 1.0
	if position.Quantity < 0 {
		direction = -1.0
	}

	if stop == nil && limits.DefaultStopPct > 0 {
		v := entry * (1 - direction*limits.DefaultStopPct/100)
		stop = &v
	}
	if target == nil && limits.DefaultTargetPct > 0 {
		v := entry * (1 + direction*limits.DefaultTargetPct/100)
		target = &v
	}

	if stop == nil && target == nil {
		return nil
	}

	return c.ledger.SetExits(action.Symbol, stop, target)
}
