package models

import "time"

// Action представляет структурированную торговую инструкцию,
// извлечённую анализатором из сообщения чата.
//
// Action неизменяем после создания: корректировки приходят
// новыми Action'ами, старые никогда не мутируются.
type Action struct {
	ID              string     `json:"id" db:"id"`                             // uuid
	SourceMessageID string     `json:"source_message_id" db:"source_message_id"` // id сообщения-источника (идемпотентность + аудит)
	Symbol          string     `json:"symbol" db:"symbol"`
	Side            string     `json:"side" db:"side"`                         // buy, sell, close
	Quantity        float64    `json:"quantity" db:"quantity"`                 // абсолютное количество (0 если задан Fraction или Sizing)
	Fraction        float64    `json:"fraction" db:"fraction"`                 // доля текущей позиции (0..1], для trim/close
	Sizing          string     `json:"sizing,omitempty" db:"sizing"`           // small, medium, large (описательный размер из сигнала)
	Kind            string     `json:"kind" db:"kind"`                         // market, limit
	LimitPrice      *float64   `json:"limit_price,omitempty" db:"limit_price"`
	StopPrice       *float64   `json:"stop_price,omitempty" db:"stop_price"`   // стоп для открываемой позиции
	TargetPrice     *float64   `json:"target_price,omitempty" db:"target_price"`
	Status          string     `json:"status" db:"status"`                     // queued, claimed, done, skipped, failed
	Reason          string     `json:"reason,omitempty" db:"reason"`           // почему действие создано (exit_target, exit_stop, manual, signal)
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Стороны действия
const (
	ActionSideBuy   = "buy"
	ActionSideSell  = "sell"
	ActionSideClose = "close"
)

// Виды ордера
const (
	ActionKindMarket = "market"
	ActionKindLimit  = "limit"
)

// Статусы действия в очереди
const (
	ActionStatusQueued  = "queued"  // ожидает исполнения
	ActionStatusClaimed = "claimed" // взято воркером, ордер ещё не терминален
	ActionStatusDone    = "done"    // ордер достиг терминального состояния
	ActionStatusSkipped = "skipped" // пропущено идемпотентным guard'ом
	ActionStatusFailed  = "failed"  // терминальная ошибка исполнения
)

// Причины создания действия
const (
	ActionReasonSignal = "signal"      // от анализатора сигналов
	ActionReasonTarget = "exit_target" // монитор: цена пересекла target
	ActionReasonStop   = "exit_stop"   // монитор: цена пересекла stop
	ActionReasonManual = "manual"      // ручное закрытие через API
)

// SizingQuantity переводит описательный размер в количество.
// Поведение унаследовано от исходного пайплайна сигналов:
// small=1, medium=5, large=10, неизвестное значение трактуется как small.
func SizingQuantity(sizing string) float64 {
	switch sizing {
	case "medium":
		return 5
	case "large":
		return 10
	default:
		return 1
	}
}

// IsTerminal возвращает true если действие больше не будет исполняться
func (a *Action) IsTerminal() bool {
	return a.Status == ActionStatusDone || a.Status == ActionStatusSkipped || a.Status == ActionStatusFailed
}
