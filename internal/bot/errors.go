package bot

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки торгового ядра
var (
	// ErrNoPosition - действие закрытия по инструменту без позиции
	ErrNoPosition = errors.New("no open position for symbol")

	// ErrSymbolHalted - воркер инструмента остановлен после
	// обнаружения расхождения, требуется ручная сверка
	ErrSymbolHalted = errors.New("symbol is halted, manual reconciliation required")
)

// PositionLimitError - действие превысило бы лимит позиции инструмента
type PositionLimitError struct {
	Symbol    string
	Requested float64
	Limit     float64
}

func (e *PositionLimitError) Error() string {
	return fmt.Sprintf("position limit exceeded for %s: requested %.4f, limit %.4f", e.Symbol, e.Requested, e.Limit)
}

// Retryable - лимит не исчезнет от повтора
func (e *PositionLimitError) Retryable() bool {
	return false
}

// StalePriceError - последняя котировка старше допустимого возраста
type StalePriceError struct {
	Symbol string
	Age    time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("stale price for %s: last quote is %v old", e.Symbol, e.Age)
}

func (e *StalePriceError) Retryable() bool {
	return true
}

// InconsistencyError - состояние в БД расходится с состоянием брокера.
// Исполнение по инструменту останавливается до ручной сверки,
// остальные инструменты продолжают работать.
type InconsistencyError struct {
	Symbol  string
	Details string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("state inconsistency for %s: %s", e.Symbol, e.Details)
}

func (e *InconsistencyError) Retryable() bool {
	return false
}
