package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalpilot/internal/api"
	"signalpilot/internal/bot"
	"signalpilot/internal/broker"
	"signalpilot/internal/config"
	"signalpilot/internal/models"
	"signalpilot/internal/repository"
	"signalpilot/internal/service"
	"signalpilot/internal/websocket"
	"signalpilot/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
			zap.Error(err))
	}
	defer db.Close()

	if err := repository.InitSchema(db); err != nil {
		logger.Fatal("Failed to init database schema", zap.Error(err))
	}

	logger.Info("Connected to database successfully")

	// Инициализация репозиториев
	actionRepo := repository.NewActionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Инициализация брокера
	brk := initBroker(cfg, logger)
	defer brk.Close()

	// Инициализация WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Инициализация торгового ядра
	notifier := bot.NewNotifier(notificationRepo, hub.BroadcastNotification, logger)
	ledger := bot.NewPositionLedger(positionRepo, orderRepo, notifier, logger)
	executor := bot.NewOrderExecutor(brk, orderRepo, ledger, notifier, cfg.Engine, logger)
	queue := bot.NewActionQueue(actionRepo, logger)
	guard := bot.NewIdempotencyGuard(idempotencyRepo, notifier, logger)
	coordinator := bot.NewCoordinator(queue, guard, executor, ledger, cfg.Instruments, cfg.Engine, notifier, logger)

	// Восстановление после рестарта: прерванные действия возвращаются
	// в очередь, локальные позиции сверяются с брокером. Воркеры
	// поднимаются только после завершения восстановления.
	recoveryCtx, recoveryCancel := context.WithTimeout(context.Background(), 30*time.Second)
	symbols, err := bot.NewRecoveryManager(actionRepo, orderRepo, positionRepo, brk, coordinator, notifier, logger).Run(recoveryCtx)
	recoveryCancel()
	if err != nil {
		logger.Fatal("Recovery failed", zap.Error(err))
	}
	coordinator.StartWorkers(symbols)

	// Мониторинг выходов по открытым позициям
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	monitor := bot.NewPositionMonitor(ledger, actionRepo, brk, coordinator, cfg.Engine, notifier, logger)
	go monitor.Run(monitorCtx)

	// Инициализация сервисов
	tradeService := service.NewTradeService(positionRepo, orderRepo, actionRepo, coordinator)
	auditService := service.NewAuditService(notificationRepo)

	// Фоновая чистка: ключи идемпотентности и журнал аудита
	// живут не дольше IdempotencyRetention
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	go runJanitor(janitorCtx, idempotencyRepo, auditService, cfg.Engine.IdempotencyRetention, logger)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		TradeService: tradeService,
		AuditService: auditService,
		Hub:          hub,
		Logger:       logger,
		APITokenHash: cfg.Security.APITokenHash,
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	janitorCancel()
	monitorCancel()

	// Опциональное закрытие позиций перед остановкой
	if cfg.Engine.FlattenOnShutdown {
		flattenPositions(coordinator, positionRepo, logger)
	}

	// Дожидаемся завершения воркеров: начатое действие доводится
	// до терминального состояния, новые не берутся
	coordinator.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initBroker выбирает брокера по конфигурации.
// Неизвестное имя трактуется как paper, чтобы случайная опечатка
// в окружении не отправила живые ордера.
func initBroker(cfg *config.Config, logger *zap.Logger) broker.Broker {
	switch cfg.Broker.Name {
	case "alpaca":
		logger.Info("Using Alpaca broker", zap.String("base_url", cfg.Broker.BaseURL))
		return broker.NewAlpacaBroker(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL)
	default:
		logger.Info("Using paper broker", zap.String("configured", cfg.Broker.Name))
		return broker.NewPaperBroker()
	}
}

// runJanitor периодически чистит просроченные ключи идемпотентности
// и старые записи журнала аудита
func runJanitor(ctx context.Context, keys *repository.IdempotencyRepository, audit *service.AuditService, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if deleted, err := keys.PruneOlderThan(time.Now().Add(-retention)); err != nil {
				logger.Warn("Failed to prune idempotency keys", zap.Error(err))
			} else if deleted > 0 {
				logger.Info("Pruned idempotency keys", zap.Int64("deleted", deleted))
			}

			if deleted, err := audit.Cleanup(retention); err != nil {
				logger.Warn("Failed to clean up notifications", zap.Error(err))
			} else if deleted > 0 {
				logger.Info("Cleaned up notifications", zap.Int64("deleted", deleted))
			}
		}
	}
}

// flattenPositions ставит закрытие всех открытых позиций в очередь
// и ждет, пока воркеры их обработают (с потолком ожидания)
func flattenPositions(coordinator *bot.Coordinator, positions *repository.PositionRepository, logger *zap.Logger) {
	open, err := positions.GetAll()
	if err != nil {
		logger.Error("Flatten: failed to list positions", zap.Error(err))
		return
	}
	if len(open) == 0 {
		return
	}

	logger.Info("Flattening positions before shutdown", zap.Int("count", len(open)))

	for _, p := range open {
		action := &models.Action{
			ID:       uuid.New().String(),
			Symbol:   p.Symbol,
			Side:     models.ActionSideClose,
			Fraction: 1.0,
			Kind:     models.ActionKindMarket,
			Reason:   models.ActionReasonManual,
		}
		if err := coordinator.EnqueueInternal(action); err != nil {
			logger.Error("Flatten: failed to enqueue close",
				zap.String("symbol", p.Symbol),
				zap.Error(err))
		}
	}

	// Ждем пока позиции закроются, но не дольше 30 секунд
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		remaining, err := positions.GetAll()
		if err == nil && len(remaining) == 0 {
			logger.Info("All positions flattened")
			return
		}
		time.Sleep(500 * time.Millisecond)
	}

	logger.Warn("Flatten timed out, some positions may remain open")
}
