package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"signalpilot/internal/api/handlers"
	"signalpilot/internal/api/middleware"
	"signalpilot/internal/service"
	"signalpilot/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	TradeService service.TradeServiceInterface
	AuditService service.AuditServiceInterface
	Hub          *websocket.Hub
	Logger       *zap.Logger

	// APITokenHash - bcrypt-хэш токена API; пустая строка отключает auth
	APITokenHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /positions/
//	│   ├── GET / - открытые позиции
//	│   ├── GET /closed - архив закрытых позиций
//	│   ├── GET /{symbol} - одна позиция
//	│   ├── POST /{symbol}/close - ручное закрытие (202 Accepted)
//	│   └── POST /{symbol}/resume - возврат инструмента в работу
//	├── /orders/
//	│   ├── GET / - история ордеров
//	│   └── GET /{id}/fills - исполнения ордера
//	├── /actions/
//	│   ├── GET / - история действий пайплайна
//	│   └── POST / - приём внешнего действия (202 Accepted)
//	├── /notifications/
//	│   └── GET / - журнал аудита
//	└── /status - сводный статус движка
//
// /ws/
//
//	└── /stream - WebSocket для real-time обновлений
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только для /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := zap.NewNop()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var positionHandler *handlers.PositionHandler
	var orderHandler *handlers.OrderHandler
	var actionHandler *handlers.ActionHandler
	var statusHandler *handlers.StatusHandler
	if deps != nil && deps.TradeService != nil {
		positionHandler = handlers.NewPositionHandler(deps.TradeService)
		orderHandler = handlers.NewOrderHandler(deps.TradeService)
		actionHandler = handlers.NewActionHandler(deps.TradeService)
		statusHandler = handlers.NewStatusHandler(deps.TradeService)
	}

	// Notification handler с внедрением зависимости
	var notificationHandler *handlers.NotificationHandler
	if deps != nil && deps.AuditService != nil {
		notificationHandler = handlers.NewNotificationHandler(deps.AuditService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Auth применяется ко всему API; пустой хэш отключает проверку
	if deps != nil {
		api.Use(middleware.Auth(deps.APITokenHash))
	}

	// Position routes
	// /positions/closed регистрируется до /positions/{symbol},
	// иначе mux отдаст "closed" как symbol
	if positionHandler != nil {
		api.HandleFunc("/positions", positionHandler.GetPositions).Methods("GET")
		api.HandleFunc("/positions/closed", positionHandler.GetClosedPositions).Methods("GET")
		api.HandleFunc("/positions/{symbol}", positionHandler.GetPosition).Methods("GET")
		api.HandleFunc("/positions/{symbol}/close", positionHandler.ClosePosition).Methods("POST")
		api.HandleFunc("/positions/{symbol}/resume", positionHandler.ResumeSymbol).Methods("POST")
	}

	// Order routes
	if orderHandler != nil {
		api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		api.HandleFunc("/orders/{id}/fills", orderHandler.GetOrderFills).Methods("GET")
	}

	// Action routes
	if actionHandler != nil {
		api.HandleFunc("/actions", actionHandler.GetActions).Methods("GET")
		api.HandleFunc("/actions", actionHandler.SubmitAction).Methods("POST")
	}

	// Notification routes
	if notificationHandler != nil {
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	}

	// Status route
	if statusHandler != nil {
		api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
