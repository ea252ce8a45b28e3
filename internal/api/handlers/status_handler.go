package handlers

import (
	"net/http"

	"signalpilot/internal/service"
)

// StatusHandler отвечает за сводный статус движка
//
// Endpoints:
// - GET /api/v1/status - открытые позиции, очередь, ордера, суммарный P&L
type StatusHandler struct {
	tradeService service.TradeServiceInterface
}

// NewStatusHandler создает новый StatusHandler с внедрением зависимости
func NewStatusHandler(tradeService service.TradeServiceInterface) *StatusHandler {
	return &StatusHandler{tradeService: tradeService}
}

// GetStatus возвращает сводный статус движка
//
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.tradeService.GetStatus()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get status: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}
