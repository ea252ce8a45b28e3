package models

import "time"

// Notification представляет событие пайплайна для журнала аудита и дашборда
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Symbol    string                 `json:"symbol,omitempty" db:"symbol"`
	ActionID  string                 `json:"action_id,omitempty" db:"action_id"`
	OrderID   string                 `json:"order_id,omitempty" db:"order_id"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // JSON в БД
}

// Типы уведомлений
const (
	NotificationTypeSubmit    = "SUBMIT"    // ордер отправлен брокеру
	NotificationTypeFill      = "FILL"      // исполнение (частичное или полное)
	NotificationTypeClose     = "CLOSE"     // позиция закрыта, архивирована
	NotificationTypeReject    = "REJECT"    // брокер отклонил ордер
	NotificationTypeDuplicate = "DUPLICATE" // сработал идемпотентный guard
	NotificationTypeDegraded  = "DEGRADED"  // мониторинг инструмента в degraded
	NotificationTypeRecovery  = "RECOVERY"  // события восстановления после рестарта
	NotificationTypeHalt      = "HALT"      // воркер инструмента остановлен (требуется ручная сверка)
	NotificationTypeResume    = "RESUME"    // инструмент возвращён в работу после сверки
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
