package bot

import "signalpilot/internal/models"

// ValidTransitions определяет допустимые переходы статусов ордера
var ValidTransitions = map[string][]string{
	models.OrderStatusPending:         {models.OrderStatusSubmitted, models.OrderStatusRejected, models.OrderStatusCancelled},
	models.OrderStatusSubmitted:       {models.OrderStatusPartiallyFilled, models.OrderStatusFilled, models.OrderStatusCancelled, models.OrderStatusRejected},
	models.OrderStatusPartiallyFilled: {models.OrderStatusFilled, models.OrderStatusCancelled}, // отмена фиксирует исполненную часть
	models.OrderStatusFilled:          {},
	models.OrderStatusCancelled:       {},
	models.OrderStatusRejected:        {},
}

// CanTransition проверяет допустимость перехода.
// Переход в тот же статус допустим (обновление прогресса без смены фазы).
func CanTransition(from, to string) bool {
	if from == to {
		return !models.OrderStatusIsTerminal(from)
	}
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case models.OrderStatusPending:
		return "Ордер создан, ожидает отправки брокеру"
	case models.OrderStatusSubmitted:
		return "Ордер принят брокером"
	case models.OrderStatusPartiallyFilled:
		return "Ордер исполнен частично"
	case models.OrderStatusFilled:
		return "Ордер исполнен полностью"
	case models.OrderStatusCancelled:
		return "Ордер отменён"
	case models.OrderStatusRejected:
		return "Ордер отклонён брокером"
	default:
		return "Неизвестный статус"
	}
}
