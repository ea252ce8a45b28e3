package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"signalpilot/internal/models"
	"signalpilot/internal/service"
)

// ActionHandler отвечает за действия пайплайна
//
// Endpoints:
// - GET /api/v1/actions - последние действия (очередь + терминальные)
// - POST /api/v1/actions - приём внешнего действия в пайплайн
type ActionHandler struct {
	tradeService service.TradeServiceInterface
}

// NewActionHandler создает новый ActionHandler с внедрением зависимости
func NewActionHandler(tradeService service.TradeServiceInterface) *ActionHandler {
	return &ActionHandler{tradeService: tradeService}
}

// GetActionsResponse представляет ответ списка действий
type GetActionsResponse struct {
	Actions []*models.Action `json:"actions"`
	Total   int              `json:"total"`
}

// GetActions возвращает последние действия пайплайна
//
// GET /api/v1/actions?limit=50
func (h *ActionHandler) GetActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.tradeService.GetActions(parseLimit(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get actions: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetActionsResponse{
		Actions: actions,
		Total:   len(actions),
	})
}

// SubmitActionRequest представляет внешнее торговое действие
type SubmitActionRequest struct {
	// SourceMessageID - ключ идемпотентности поставщика сигналов;
	// пустой ключ отключает дедупликацию для этого действия
	SourceMessageID string   `json:"source_message_id"`
	Symbol          string   `json:"symbol"`
	Side            string   `json:"side"`
	Quantity        float64  `json:"quantity"`
	Fraction        float64  `json:"fraction"`
	Sizing          string   `json:"sizing"`
	Kind            string   `json:"kind"`
	LimitPrice      *float64 `json:"limit_price,omitempty"`
	StopPrice       *float64 `json:"stop_price,omitempty"`
	TargetPrice     *float64 `json:"target_price,omitempty"`
}

// SubmitActionResponse представляет ответ постановки действия
type SubmitActionResponse struct {
	Message string         `json:"message"`
	Action  *models.Action `json:"action"`
}

// SubmitAction принимает внешнее торговое действие в пайплайн
//
// POST /api/v1/actions
// Body: {"source_message_id": "msg-1", "symbol": "AAPL", "side": "buy", "quantity": 10}
//
// Исполнение асинхронное: ответ 202 подтверждает постановку действия
// в очередь. Дубликат source_message_id тоже получает 202: guard
// молча отбрасывает повторную доставку.
//
// HTTP коды:
// - 202 Accepted: действие принято
// - 400 Bad Request: некорректное действие
func (h *ActionHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req SubmitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	action, err := h.tradeService.SubmitAction(&models.Action{
		SourceMessageID: req.SourceMessageID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Quantity:        req.Quantity,
		Fraction:        req.Fraction,
		Sizing:          req.Sizing,
		Kind:            req.Kind,
		LimitPrice:      req.LimitPrice,
		StopPrice:       req.StopPrice,
		TargetPrice:     req.TargetPrice,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingSymbol),
			errors.Is(err, service.ErrInvalidSide),
			errors.Is(err, service.ErrInvalidKind),
			errors.Is(err, service.ErrInvalidFraction),
			errors.Is(err, service.ErrInvalidQuantity):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to submit action: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusAccepted, SubmitActionResponse{
		Message: "Action enqueued",
		Action:  action,
	})
}
