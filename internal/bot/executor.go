package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalpilot/internal/broker"
	"signalpilot/internal/config"
	"signalpilot/internal/models"
	"signalpilot/internal/repository"
	"signalpilot/pkg/retry"
)

// OrderExecutor превращает действие ровно в один брокерский ордер.
//
// Гарантия "максимум один ордер на действие" держится на клиентском
// токене: ClientOrderID генерируется один раз, сохраняется в БД до
// первой отправки и переиспользуется при любых повторах, включая
// повторы после рестарта процесса. Неоднозначный исход отправки
// (таймаут после ухода запроса) разрешается запросом ордера по токену,
// а не повторной отправкой вслепую.
type OrderExecutor struct {
	broker   broker.Broker
	orders   OrderStore
	ledger   *PositionLedger
	notifier *Notifier
	cfg      config.EngineConfig
	logger   *zap.Logger

	// Каналы досрочного опроса по clientOrderID: push-уведомление
	// об исполнении снимает задержку до следующего тика опроса.
	kickMu sync.Mutex
	kicks  map[string]chan struct{}
}

// NewOrderExecutor создаёт исполнитель ордеров.
// Если брокер умеет push-уведомления об исполнениях, подписывается на них.
func NewOrderExecutor(brk broker.Broker, orders OrderStore, ledger *PositionLedger, notifier *Notifier, cfg config.EngineConfig, logger *zap.Logger) *OrderExecutor {
	e := &OrderExecutor{
		broker:   brk,
		orders:   orders,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		kicks:    make(map[string]chan struct{}),
	}

	if stream, ok := brk.(broker.FillStream); ok {
		if err := stream.SubscribeFills(e.onFillUpdate); err != nil {
			logger.Warn("fill stream unavailable, falling back to polling", zap.Error(err))
		}
	}

	return e
}

// submitRetryConfig собирает конфигурацию retry из настроек ядра.
//
// Таймаут отдельного вызова приходит завёрнутым во временную ошибку
// брокера и повторяется как любой другой временный сбой; повторы
// прекращает только отмена родительского контекста.
func (e *OrderExecutor) submitRetryConfig(ctx context.Context, symbol string) retry.Config {
	return retry.Config{
		MaxAttempts:  e.cfg.MaxRetries,
		InitialDelay: e.cfg.RetryBackoff,
		MaxDelay:     e.cfg.RetryCeiling,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		RetryIf: func(err error) bool {
			return retry.IsRetryable(err) && ctx.Err() == nil
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			SubmitRetries.WithLabelValues(symbol).Inc()
			e.logger.Warn("retrying order submit",
				zap.String("symbol", symbol),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}
}

// ExistingOrder возвращает ордер действия, если он уже создавался
// (nil если действие ещё не доходило до исполнения)
func (e *OrderExecutor) ExistingOrder(actionID string) (*models.Order, error) {
	order, err := e.orders.GetByActionID(actionID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// Execute ведёт ордер действия от создания до терминального статуса.
//
// Количество и сторона уже разрешены координатором (qty всегда > 0,
// side - buy или sell). Повторный вызов для того же действия после
// рестарта продолжает с места обрыва: существующая запись ордера
// переиспользуется вместе с её токеном.
func (e *OrderExecutor) Execute(ctx context.Context, action *models.Action, side string, qty float64) (*models.Order, error) {
	order, err := e.orders.GetByActionID(action.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
		order = &models.Order{
			ID:            uuid.New().String(),
			ActionID:      action.ID,
			ClientOrderID: "bot-" + uuid.New().String(),
			Symbol:        action.Symbol,
			Side:          side,
			Kind:          action.Kind,
			LimitPrice:    action.LimitPrice,
			Quantity:      qty,
			Status:        models.OrderStatusPending,
		}
		if err := e.orders.Create(order); err != nil {
			return nil, fmt.Errorf("failed to persist order: %w", err)
		}
	} else if err := e.restoreProgress(order); err != nil {
		return nil, err
	}

	if order.IsTerminal() {
		return order, nil
	}

	if order.Status == models.OrderStatusPending {
		if err := e.submit(ctx, order); err != nil {
			return order, err
		}
	}

	if err := e.track(ctx, order); err != nil {
		return order, err
	}

	return order, nil
}

// submit отправляет ордер брокеру с повторами.
//
// Временные ошибки повторяются с экспоненциальным backoff; перед
// каждым повтором ордер ищется по токену - если предыдущая попытка
// дошла до брокера, её результат принимается без новой отправки.
func (e *OrderExecutor) submit(ctx context.Context, order *models.Order) error {
	req := broker.OrderRequest{
		Symbol:        order.Symbol,
		Side:          order.Side,
		Kind:          order.Kind,
		Quantity:      order.Quantity,
		LimitPrice:    order.LimitPrice,
		ClientOrderID: order.ClientOrderID,
	}

	cfg := e.submitRetryConfig(ctx, order.Symbol)

	state, err := retry.DoWithResult(ctx, func() (*broker.OrderState, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
		defer cancel()

		state, err := e.broker.SubmitOrder(callCtx, req)
		if err == nil {
			return state, nil
		}

		// Неоднозначный исход: запрос мог дойти. Прежде чем повторять,
		// спрашиваем брокера по токену.
		if broker.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
			lookupCtx, lookupCancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
			defer lookupCancel()
			if existing, lookupErr := e.broker.GetOrderByClientID(lookupCtx, order.ClientOrderID); lookupErr == nil {
				e.logger.Info("ambiguous submit resolved via client order id",
					zap.String("order_id", order.ID),
					zap.String("client_order_id", order.ClientOrderID))
				return existing, nil
			}
		}

		return nil, err
	}, cfg)

	if err != nil {
		var brokerErr *broker.Error
		if errors.As(err, &brokerErr) && !brokerErr.Transient {
			// Терминальный отказ брокера
			if dbErr := e.orders.SetError(order.ID, brokerErr.Message); dbErr != nil {
				e.logger.Error("failed to mark order rejected", zap.Error(dbErr))
			}
			order.Status = models.OrderStatusRejected
			order.ErrorMessage = brokerErr.Message
			OrdersRejected.WithLabelValues(order.Symbol).Inc()
			e.notifier.Notify(&models.Notification{
				Type:     models.NotificationTypeReject,
				Severity: models.SeverityError,
				Symbol:   order.Symbol,
				OrderID:  order.ID,
				Message:  fmt.Sprintf("order rejected: %s", brokerErr.Message),
			})
			return err
		}
		// Попытки исчерпаны на временных ошибках: ордер остаётся pending,
		// рестарт или повторный вызов продолжит с тем же токеном
		return fmt.Errorf("submit failed after retries: %w", err)
	}

	if err := e.orders.MarkSubmitted(order.ID, state.BrokerOrderID); err != nil {
		return err
	}
	order.BrokerOrderID = state.BrokerOrderID
	order.Status = models.OrderStatusSubmitted

	OrdersSubmitted.WithLabelValues(order.Symbol, order.Side).Inc()
	e.notifier.Notify(&models.Notification{
		Type:    models.NotificationTypeSubmit,
		Symbol:  order.Symbol,
		OrderID: order.ID,
		Message: fmt.Sprintf("%s %s %.4f %s submitted", order.Kind, order.Side, order.Quantity, order.Symbol),
	})

	// Ответ на отправку уже может содержать исполнение
	if err := e.applyState(order, state); err != nil {
		return err
	}

	return nil
}

// track опрашивает ордер до терминального статуса, применяя
// приращения исполнения к реестру позиций
func (e *OrderExecutor) track(ctx context.Context, order *models.Order) error {
	start := time.Now()
	kick := e.registerKick(order.ClientOrderID)
	defer e.unregisterKick(order.ClientOrderID)

	ticker := time.NewTicker(e.cfg.OrderPollInterval)
	defer ticker.Stop()

	for !order.IsTerminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-kick:
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
		state, err := e.broker.GetOrderByClientID(callCtx, order.ClientOrderID)
		cancel()
		if err != nil {
			if errors.Is(err, broker.ErrOrderNotFound) {
				return &InconsistencyError{
					Symbol:  order.Symbol,
					Details: fmt.Sprintf("submitted order %s unknown to broker", order.ClientOrderID),
				}
			}
			e.logger.Warn("order poll failed",
				zap.String("order_id", order.ID),
				zap.Error(err))
			continue
		}

		if err := e.applyState(order, state); err != nil {
			return err
		}
	}

	OrderExecutionSeconds.WithLabelValues(order.Symbol).Observe(time.Since(start).Seconds())
	return nil
}

// restoreProgress восстанавливает исполненный прогресс ордера из
// журнала fills. Журнал - источник истины: каждая записанная строка
// уже применена к позиции. Строка ордера может отстать, если сбой
// пришёлся между записью fill'а и обновлением ордера; дельта от
// отставшей строки применила бы то же исполнение второй раз.
func (e *OrderExecutor) restoreProgress(order *models.Order) error {
	fills, err := e.orders.GetFills(order.ID)
	if err != nil {
		return err
	}
	if len(fills) == 0 {
		return nil
	}

	var qty, notional float64
	for _, fill := range fills {
		q := math.Abs(fill.Quantity)
		qty += q
		notional += q * fill.Price
	}
	order.FilledQty = qty
	order.AvgFillPrice = notional / qty
	return nil
}

// applyState применяет снимок состояния от брокера: приращение
// исполнения уходит в реестр позиций, статус - в запись ордера
func (e *OrderExecutor) applyState(order *models.Order, state *broker.OrderState) error {
	if delta := state.FilledQty - order.FilledQty; delta > qtyEpsilon {
		// Цена приращения из изменения средневзвешенной
		deltaPrice := state.AvgFillPrice
		if state.FilledQty > 0 {
			deltaPrice = (state.AvgFillPrice*state.FilledQty - order.AvgFillPrice*order.FilledQty) / delta
		}

		signedQty := delta
		if order.Side == models.ActionSideSell {
			signedQty = -delta
		}

		seq, err := e.orders.NextFillSeq(order.ID)
		if err != nil {
			return err
		}

		if _, err := e.ledger.ApplyFill(&models.Fill{
			OrderID:   order.ID,
			Seq:       seq,
			Symbol:    order.Symbol,
			Quantity:  signedQty,
			Price:     deltaPrice,
			Timestamp: state.UpdatedAt,
		}); err != nil {
			return err
		}

		order.FilledQty = state.FilledQty
		order.AvgFillPrice = state.AvgFillPrice
	}

	newStatus := mapBrokerStatus(state.Status, order.FilledQty)
	if newStatus != order.Status && CanTransition(order.Status, newStatus) {
		order.Status = newStatus
	}

	var filledAt *time.Time
	if order.Status == models.OrderStatusFilled {
		now := time.Now()
		filledAt = &now
		order.FilledAt = filledAt
	}

	return e.orders.UpdateProgress(order.ID, order.Status, order.FilledQty, order.AvgFillPrice, filledAt)
}

// mapBrokerStatus переводит брокерский статус во внутренний с учётом
// фактического прогресса исполнения
func mapBrokerStatus(brokerStatus string, filledQty float64) string {
	switch brokerStatus {
	case broker.StatusFilled:
		return models.OrderStatusFilled
	case broker.StatusPartiallyFilled:
		return models.OrderStatusPartiallyFilled
	case broker.StatusCancelled:
		return models.OrderStatusCancelled
	case broker.StatusRejected:
		return models.OrderStatusRejected
	default:
		if filledQty > qtyEpsilon {
			return models.OrderStatusPartiallyFilled
		}
		return models.OrderStatusSubmitted
	}
}

// onFillUpdate - колбэк push-уведомлений брокера
func (e *OrderExecutor) onFillUpdate(update *broker.OrderState) {
	e.kickMu.Lock()
	kick, ok := e.kicks[update.ClientOrderID]
	e.kickMu.Unlock()
	if !ok {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

func (e *OrderExecutor) registerKick(clientOrderID string) chan struct{} {
	e.kickMu.Lock()
	defer e.kickMu.Unlock()
	kick := make(chan struct{}, 1)
	e.kicks[clientOrderID] = kick
	return kick
}

func (e *OrderExecutor) unregisterKick(clientOrderID string) {
	e.kickMu.Lock()
	defer e.kickMu.Unlock()
	delete(e.kicks, clientOrderID)
}
