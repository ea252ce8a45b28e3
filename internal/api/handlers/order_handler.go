package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
	"signalpilot/internal/service"
)

// OrderHandler отвечает за историю ордеров
//
// Endpoints:
// - GET /api/v1/orders - последние ордера
// - GET /api/v1/orders?symbol=AAPL - ордера инструмента
// - GET /api/v1/orders/{id}/fills - исполнения ордера
type OrderHandler struct {
	tradeService service.TradeServiceInterface
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимости
func NewOrderHandler(tradeService service.TradeServiceInterface) *OrderHandler {
	return &OrderHandler{tradeService: tradeService}
}

// GetOrdersResponse представляет ответ списка ордеров
type GetOrdersResponse struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
}

// GetOrders возвращает историю ордеров (новые сверху)
//
// GET /api/v1/orders?symbol=AAPL&limit=50
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	orders, err := h.tradeService.GetOrders(symbol, parseLimit(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get orders: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetOrdersResponse{
		Orders: orders,
		Total:  len(orders),
	})
}

// GetOrderFillsResponse представляет ответ списка исполнений
type GetOrderFillsResponse struct {
	Fills []*models.Fill `json:"fills"`
	Total int            `json:"total"`
}

// GetOrderFills возвращает исполнения ордера в порядке поступления
//
// GET /api/v1/orders/{id}/fills
//
// HTTP коды:
// - 200 OK: успех (список может быть пустым)
// - 404 Not Found: ордер не найден
func (h *OrderHandler) GetOrderFills(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	fills, err := h.tradeService.GetOrderFills(orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found: "+orderID)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get fills: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetOrderFillsResponse{
		Fills: fills,
		Total: len(fills),
	})
}
