package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"signalpilot/internal/models"
	"signalpilot/internal/service"
)

// PositionHandler отвечает за позиции
//
// Endpoints:
// - GET /api/v1/positions - открытые позиции
// - GET /api/v1/positions/closed - архив закрытых позиций с P&L
// - GET /api/v1/positions/{symbol} - одна позиция
// - POST /api/v1/positions/{symbol}/close - ручное закрытие
// - POST /api/v1/positions/{symbol}/resume - возврат инструмента в работу
type PositionHandler struct {
	tradeService service.TradeServiceInterface
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимости
func NewPositionHandler(tradeService service.TradeServiceInterface) *PositionHandler {
	return &PositionHandler{tradeService: tradeService}
}

// GetPositionsResponse представляет ответ списка позиций
type GetPositionsResponse struct {
	Positions []*models.Position `json:"positions"`
	Total     int                `json:"total"`
}

// GetPositions возвращает все открытые позиции
//
// GET /api/v1/positions
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.tradeService.GetPositions()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get positions: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetPositionsResponse{
		Positions: positions,
		Total:     len(positions),
	})
}

// GetPosition возвращает позицию по инструменту
//
// GET /api/v1/positions/{symbol}
//
// HTTP коды:
// - 200 OK: позиция найдена
// - 404 Not Found: позиции по инструменту нет
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	position, err := h.tradeService.GetPosition(symbol)
	if err != nil {
		if errors.Is(err, service.ErrPositionNotFound) {
			respondWithError(w, http.StatusNotFound, "Position not found: "+symbol)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get position: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, position)
}

// GetClosedPositionsResponse представляет ответ архива закрытых позиций
type GetClosedPositionsResponse struct {
	Positions []*models.ClosedPosition `json:"positions"`
	Total     int                      `json:"total"`
}

// GetClosedPositions возвращает архив закрытых позиций
//
// GET /api/v1/positions/closed?limit=50
func (h *PositionHandler) GetClosedPositions(w http.ResponseWriter, r *http.Request) {
	closed, err := h.tradeService.GetClosedPositions(parseLimit(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get closed positions: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetClosedPositionsResponse{
		Positions: closed,
		Total:     len(closed),
	})
}

// ClosePositionRequest представляет запрос ручного закрытия
type ClosePositionRequest struct {
	// Fraction - доля позиции (0, 1]; 0 или отсутствие = закрыть всю
	Fraction float64 `json:"fraction"`
}

// ClosePositionResponse представляет ответ ручного закрытия
type ClosePositionResponse struct {
	Message string         `json:"message"`
	Action  *models.Action `json:"action"`
}

// ClosePosition ставит ручное закрытие позиции в очередь
//
// POST /api/v1/positions/{symbol}/close
// Body: {"fraction": 0.5} (опционально, по умолчанию полное закрытие)
//
// Закрытие асинхронное: ответ 202 подтверждает постановку действия
// в очередь, а не исполнение. Результат виден в журнале аудита.
//
// HTTP коды:
// - 202 Accepted: действие поставлено в очередь
// - 400 Bad Request: некорректная доля
// - 404 Not Found: позиции по инструменту нет
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var req ClosePositionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	action, err := h.tradeService.ClosePosition(symbol, req.Fraction)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPositionNotFound):
			respondWithError(w, http.StatusNotFound, "Position not found: "+symbol)
		case errors.Is(err, service.ErrInvalidFraction):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to close position: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusAccepted, ClosePositionResponse{
		Message: "Close action enqueued",
		Action:  action,
	})
}

// ResumeSymbol возвращает остановленный инструмент в работу
//
// POST /api/v1/positions/{symbol}/resume
//
// Исполнение по инструменту останавливается при расхождении с брокером;
// resume подтверждает, что оператор провёл ручную сверку.
//
// HTTP коды:
// - 200 OK: инструмент возвращён в работу
// - 404 Not Found: исполнение по инструменту не останавливалось
func (h *PositionHandler) ResumeSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if err := h.tradeService.ResumeSymbol(symbol); err != nil {
		switch {
		case errors.Is(err, service.ErrSymbolNotHalted):
			respondWithError(w, http.StatusNotFound, "Symbol is not halted: "+symbol)
		case errors.Is(err, service.ErrMissingSymbol):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to resume symbol: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Execution resumed",
		"symbol":  symbol,
	})
}
