package handlers

import (
	"net/http"

	"signalpilot/internal/models"
	"signalpilot/internal/service"
)

// NotificationHandler отвечает за журнал аудита
//
// Endpoints:
// - GET /api/v1/notifications - последние записи журнала
// - GET /api/v1/notifications?symbol=AAPL - записи инструмента
type NotificationHandler struct {
	auditService service.AuditServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимости
func NewNotificationHandler(auditService service.AuditServiceInterface) *NotificationHandler {
	return &NotificationHandler{auditService: auditService}
}

// GetNotificationsResponse представляет ответ журнала аудита
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// GetNotifications возвращает записи журнала (новые сверху)
//
// GET /api/v1/notifications?symbol=AAPL&limit=50
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	notifications, err := h.auditService.GetNotifications(symbol, parseLimit(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}
