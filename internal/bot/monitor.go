package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalpilot/internal/broker"
	"signalpilot/internal/config"
	"signalpilot/internal/models"
)

// PriceSource отдаёт последнюю котировку инструмента
type PriceSource interface {
	LastQuote(ctx context.Context, symbol string) (*broker.Quote, error)
}

// exitSink принимает синтезированные действия закрытия
type exitSink interface {
	EnqueueInternal(action *models.Action) error
}

// PositionMonitor наблюдает открытые позиции и синтезирует действия
// закрытия при пересечении stop или target.
//
// Монитор никогда не трогает позиции сам: пересечение уровня рождает
// обычное действие close, которое проходит тот же путь исполнения,
// что и сигнальные. На каждую позицию одновременно живёт не больше
// одного незавершённого действия закрытия.
//
// Если котировка старше StalenessLimit, мониторинг инструмента
// помечается degraded: выходы не синтезируются, позиция не трогается,
// уведомление уходит один раз на эпизод.
type PositionMonitor struct {
	ledger  *PositionLedger
	actions ActionStore
	prices  PriceSource
	sink    exitSink

	cfg      config.EngineConfig
	notifier *Notifier
	logger   *zap.Logger

	mu           sync.Mutex
	pendingClose map[string]string // symbol -> action id незавершённого закрытия
	degraded     map[string]time.Time
}

// NewPositionMonitor создаёт монитор позиций
func NewPositionMonitor(ledger *PositionLedger, actions ActionStore, prices PriceSource, sink exitSink, cfg config.EngineConfig, notifier *Notifier, logger *zap.Logger) *PositionMonitor {
	return &PositionMonitor{
		ledger:       ledger,
		actions:      actions,
		prices:       prices,
		sink:         sink,
		cfg:          cfg,
		notifier:     notifier,
		logger:       logger,
		pendingClose: make(map[string]string),
		degraded:     make(map[string]time.Time),
	}
}

// Run запускает цикл мониторинга до отмены контекста
func (m *PositionMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	m.logger.Info("position monitor started",
		zap.Duration("interval", m.cfg.MonitorInterval),
		zap.Duration("staleness_limit", m.cfg.StalenessLimit))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("position monitor stopped")
			return
		case <-ticker.C:
			m.evaluateAll(ctx)
		}
	}
}

// evaluateAll проходит по всем открытым позициям
func (m *PositionMonitor) evaluateAll(ctx context.Context) {
	positions, err := m.ledger.GetAll()
	if err != nil {
		m.logger.Error("failed to load positions", zap.Error(err))
		return
	}

	OpenPositions.Set(float64(len(positions)))

	for _, position := range positions {
		m.evaluate(ctx, position)
	}
}

// evaluate проверяет условия выхода одной позиции
func (m *PositionMonitor) evaluate(ctx context.Context, position *models.Position) {
	symbol := position.Symbol

	if position.StopPrice == nil && position.TargetPrice == nil {
		return
	}

	quote, err := m.prices.LastQuote(ctx, symbol)
	if err != nil {
		m.logger.Warn("quote unavailable", zap.String("symbol", symbol), zap.Error(err))
		m.markDegraded(symbol, err)
		return
	}

	if age := time.Since(quote.Timestamp); age > m.cfg.StalenessLimit {
		m.markDegraded(symbol, &StalePriceError{Symbol: symbol, Age: age.Round(time.Second)})
		return
	}
	m.clearDegraded(symbol)

	price := quote.Mid()
	if price == 0 {
		return
	}

	reason := exitReason(position, price)
	if reason == "" {
		return
	}

	m.triggerClose(position, price, reason)
}

// exitReason возвращает причину выхода либо пустую строку.
// Границы включены: касание уровня уже считается пересечением.
func exitReason(position *models.Position, price float64) string {
	if position.Quantity > 0 {
		if position.TargetPrice != nil && price >= *position.TargetPrice {
			return models.ActionReasonTarget
		}
		if position.StopPrice != nil && price <= *position.StopPrice {
			return models.ActionReasonStop
		}
		return ""
	}

	// Короткая позиция: уровни зеркальны
	if position.TargetPrice != nil && price <= *position.TargetPrice {
		return models.ActionReasonTarget
	}
	if position.StopPrice != nil && price >= *position.StopPrice {
		return models.ActionReasonStop
	}
	return ""
}

// triggerClose ставит действие закрытия, если его ещё нет
func (m *PositionMonitor) triggerClose(position *models.Position, price float64, reason string) {
	symbol := position.Symbol

	m.mu.Lock()
	if pendingID, ok := m.pendingClose[symbol]; ok {
		// Проверяем, не завершилось ли предыдущее закрытие
		pending, err := m.actions.GetByID(pendingID)
		if err != nil || !pending.IsTerminal() {
			m.mu.Unlock()
			return
		}
		delete(m.pendingClose, symbol)
	}

	action := &models.Action{
		ID:       uuid.New().String(),
		Symbol:   symbol,
		Side:     models.ActionSideClose,
		Fraction: 1.0,
		Kind:     models.ActionKindMarket,
		Reason:   reason,
	}
	m.pendingClose[symbol] = action.ID
	m.mu.Unlock()

	if err := m.sink.EnqueueInternal(action); err != nil {
		m.logger.Error("failed to enqueue exit action",
			zap.String("symbol", symbol),
			zap.Error(err))
		m.mu.Lock()
		delete(m.pendingClose, symbol)
		m.mu.Unlock()
		return
	}

	RecordExitTrigger(symbol, reason)
	m.logger.Info("exit condition crossed",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("price", price),
		zap.Float64("position_qty", position.Quantity))
}

// markDegraded помечает мониторинг инструмента как degraded
func (m *PositionMonitor) markDegraded(symbol string, cause error) {
	m.mu.Lock()
	_, already := m.degraded[symbol]
	if !already {
		m.degraded[symbol] = time.Now()
	}
	m.mu.Unlock()

	if already {
		return
	}

	SetDegraded(symbol, true)
	m.notifier.Notify(&models.Notification{
		Type:     models.NotificationTypeDegraded,
		Severity: models.SeverityWarn,
		Symbol:   symbol,
		Message:  fmt.Sprintf("monitoring degraded: %v", cause),
	})
}

// clearDegraded снимает degraded после восстановления цен
func (m *PositionMonitor) clearDegraded(symbol string) {
	m.mu.Lock()
	_, was := m.degraded[symbol]
	delete(m.degraded, symbol)
	m.mu.Unlock()

	if was {
		SetDegraded(symbol, false)
		m.logger.Info("price feed recovered", zap.String("symbol", symbol))
	}
}
