package bot

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"signalpilot/internal/broker"
	"signalpilot/internal/models"
)

// downBroker симулирует недоступность брокера при сверке позиций
type downBroker struct {
	*broker.PaperBroker
}

func (b *downBroker) GetPositions(ctx context.Context) ([]*broker.AccountPosition, error) {
	return nil, broker.NewTransient("paper", "connection refused", nil)
}

func newRecoveryManager(env *pipelineEnv, brk broker.Broker) *RecoveryManager {
	notifier := NewNotifier(env.notifications, nil, zap.NewNop())
	return NewRecoveryManager(env.actions, env.orders, env.positions, brk, env.coordinator, notifier, zap.NewNop())
}

func TestRecoveryRequeuesInterruptedActions(t *testing.T) {
	env := newPipelineEnv(nil)
	defer env.coordinator.Shutdown()

	interrupted := &models.Action{
		ID:     "a1",
		Symbol: "AAPL",
		Side:   models.ActionSideBuy,
		Status: models.ActionStatusClaimed,
	}
	if err := env.actions.Create(interrupted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recovery := newRecoveryManager(env, env.broker)
	symbols, err := recovery.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	action, err := env.actions.GetByID("a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Status != models.ActionStatusQueued {
		t.Errorf("expected queued, got %s", action.Status)
	}

	if len(symbols) != 1 || symbols[0] != "AAPL" {
		t.Errorf("expected pending symbols [AAPL], got %v", symbols)
	}
	if len(env.notifications.byType(models.NotificationTypeRecovery)) != 1 {
		t.Error("expected RECOVERY notification")
	}
}

func TestRecoveryHaltsMismatchedSymbol(t *testing.T) {
	env := newPipelineEnv(nil)
	defer env.coordinator.Shutdown()

	// AAPL: в реестре 10, у брокера пусто
	if err := env.positions.Upsert(&models.Position{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// TSLA: реестр и брокер совпадают
	env.broker.SetQuote("TSLA", 200.0, 200.0)
	if _, err := env.broker.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol:        "TSLA",
		Side:          broker.SideBuy,
		Kind:          models.ActionKindMarket,
		Quantity:      5,
		ClientOrderID: "bot-seed",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.positions.Upsert(&models.Position{Symbol: "TSLA", Quantity: 5, AvgEntryPrice: 200.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recovery := newRecoveryManager(env, env.broker)
	if _, err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := env.coordinator.EnqueueInternal(&models.Action{ID: "x1", Symbol: "AAPL", Side: models.ActionSideBuy, Quantity: 1}); !errors.Is(err, ErrSymbolHalted) {
		t.Errorf("expected AAPL halted, got %v", err)
	}
	if err := env.coordinator.EnqueueInternal(&models.Action{ID: "x2", Symbol: "TSLA", Side: models.ActionSideBuy, Quantity: 1}); err != nil {
		t.Errorf("expected TSLA operational, got %v", err)
	}
	if len(env.notifications.byType(models.NotificationTypeHalt)) != 1 {
		t.Error("expected exactly one HALT notification")
	}
}

func TestRecoveryToleratesActiveOrders(t *testing.T) {
	env := newPipelineEnv(nil)
	defer env.coordinator.Shutdown()

	// Расхождение в пределах объёма нетерминального ордера:
	// его исполнения ещё не применены к реестру
	if err := env.positions.Upsert(&models.Position{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.orders.Create(&models.Order{
		ID:            "o1",
		ActionID:      "a1",
		ClientOrderID: "bot-o1",
		Symbol:        "AAPL",
		Side:          models.ActionSideSell,
		Quantity:      10,
		Status:        models.OrderStatusSubmitted,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recovery := newRecoveryManager(env, env.broker)
	if _, err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := env.coordinator.EnqueueInternal(&models.Action{ID: "x1", Symbol: "AAPL", Side: models.ActionSideBuy, Quantity: 1}); err != nil {
		t.Errorf("in-flight order flagged as inconsistency: %v", err)
	}
}

func TestRecoveryHaltsUnknownBrokerPosition(t *testing.T) {
	env := newPipelineEnv(nil)
	defer env.coordinator.Shutdown()

	// Позиция у брокера, о которой реестр не знает
	env.broker.SetQuote("MSFT", 400.0, 400.0)
	if _, err := env.broker.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol:        "MSFT",
		Side:          broker.SideBuy,
		Kind:          models.ActionKindMarket,
		Quantity:      5,
		ClientOrderID: "bot-seed",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recovery := newRecoveryManager(env, env.broker)
	if _, err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := env.coordinator.EnqueueInternal(&models.Action{ID: "x1", Symbol: "MSFT", Side: models.ActionSideBuy, Quantity: 1}); !errors.Is(err, ErrSymbolHalted) {
		t.Errorf("expected MSFT halted, got %v", err)
	}
}

func TestRecoverySkipsReconcileWhenBrokerDown(t *testing.T) {
	env := newPipelineEnv(nil)
	defer env.coordinator.Shutdown()

	// Расхождение есть, но брокер недоступен: сверка пропускается
	if err := env.positions.Upsert(&models.Position{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recovery := newRecoveryManager(env, &downBroker{env.broker})
	if _, err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("expected recovery to proceed, got %v", err)
	}

	if err := env.coordinator.EnqueueInternal(&models.Action{ID: "x1", Symbol: "AAPL", Side: models.ActionSideBuy, Quantity: 1}); err != nil {
		t.Errorf("symbol halted despite skipped reconciliation: %v", err)
	}
}
