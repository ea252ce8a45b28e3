package bot

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"signalpilot/internal/broker"
	"signalpilot/internal/models"
)

// RecoveryManager восстанавливает состояние пайплайна после рестарта.
//
// Порядок запуска: Run() выполняется ДО старта воркеров и мониторинга.
// Очередь, ордера и позиции живут в БД, поэтому восстановление сводится
// к трём шагам: вернуть прерванные действия в очередь, сверить позиции
// с брокером и отдать список инструментов, которым нужен воркер.
//
// Прерванное действие безопасно возобновлять: клиентский токен ордера
// сохранён до первой отправки, повтор не породит второй ордер.
type RecoveryManager struct {
	actions   ActionStore
	orders    OrderStore
	positions PositionStore
	broker    broker.Broker

	coordinator *Coordinator
	notifier    *Notifier
	logger      *zap.Logger
}

// NewRecoveryManager создаёт менеджер восстановления
func NewRecoveryManager(actions ActionStore, orders OrderStore, positions PositionStore, brk broker.Broker, coordinator *Coordinator, notifier *Notifier, logger *zap.Logger) *RecoveryManager {
	return &RecoveryManager{
		actions:     actions,
		orders:      orders,
		positions:   positions,
		broker:      brk,
		coordinator: coordinator,
		notifier:    notifier,
		logger:      logger,
	}
}

// Run выполняет восстановление и возвращает инструменты,
// для которых нужно поднять воркеры
func (r *RecoveryManager) Run(ctx context.Context) ([]string, error) {
	requeued, err := r.requeueInterrupted()
	if err != nil {
		return nil, fmt.Errorf("failed to requeue interrupted actions: %w", err)
	}

	halted := r.reconcilePositions(ctx)

	symbols, err := r.actions.PendingSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending symbols: %w", err)
	}

	r.notifier.Notify(&models.Notification{
		Type:    models.NotificationTypeRecovery,
		Message: fmt.Sprintf("recovery complete: %d actions requeued, %d symbols pending, %d symbols halted", requeued, len(symbols), halted),
		Meta: map[string]interface{}{
			"requeued": requeued,
			"pending":  symbols,
		},
	})

	return symbols, nil
}

// requeueInterrupted возвращает claimed действия обратно в очередь.
// Воркер, взявший действие повторно, обнаружит существующий ордер
// и продолжит его, а не создаст новый.
func (r *RecoveryManager) requeueInterrupted() (int, error) {
	claimed, err := r.actions.GetClaimed()
	if err != nil {
		return 0, err
	}

	for _, action := range claimed {
		if err := r.actions.Requeue(action.ID); err != nil {
			return 0, err
		}
		r.logger.Info("interrupted action requeued",
			zap.String("action_id", action.ID),
			zap.String("symbol", action.Symbol))
	}

	return len(claimed), nil
}

// reconcilePositions сверяет позиции в БД с позициями на брокерском
// аккаунте. Расхождение больше допуска останавливает исполнение
// по инструменту до ручной сверки; остальные инструменты работают.
//
// Недоступность брокера не считается расхождением: сверка пропускается
// с предупреждением, исполнение продолжит работать.
func (r *RecoveryManager) reconcilePositions(ctx context.Context) int {
	accountPositions, err := r.broker.GetPositions(ctx)
	if err != nil {
		r.logger.Warn("position reconciliation skipped: broker unavailable", zap.Error(err))
		return 0
	}

	local, err := r.positions.GetAll()
	if err != nil {
		r.logger.Error("failed to load local positions", zap.Error(err))
		return 0
	}

	accountBySymbol := make(map[string]float64, len(accountPositions))
	for _, p := range accountPositions {
		accountBySymbol[p.Symbol] = p.Quantity
	}

	// Учитываем нетерминальные ордера: их исполнения могли не успеть
	// примениться, расхождение в пределах их объёма не считается ошибкой
	tolerance := make(map[string]float64)
	if active, err := r.orders.GetActive(); err == nil {
		for _, o := range active {
			tolerance[o.Symbol] += o.Quantity
		}
	}

	halted := 0
	seen := make(map[string]bool, len(local))
	for _, position := range local {
		seen[position.Symbol] = true
		accountQty := accountBySymbol[position.Symbol]
		diff := math.Abs(position.Quantity - accountQty)
		if diff > qtyEpsilon && diff > tolerance[position.Symbol]+qtyEpsilon {
			r.coordinator.HaltSymbol(position.Symbol,
				fmt.Sprintf("ledger quantity %.4f, broker quantity %.4f", position.Quantity, accountQty))
			halted++
		}
	}

	// Позиция у брокера, о которой реестр не знает
	for symbol, qty := range accountBySymbol {
		if seen[symbol] || math.Abs(qty) < qtyEpsilon {
			continue
		}
		if math.Abs(qty) > tolerance[symbol]+qtyEpsilon {
			r.coordinator.HaltSymbol(symbol,
				fmt.Sprintf("broker holds %.4f but ledger has no position", qty))
			halted++
		}
	}

	return halted
}
