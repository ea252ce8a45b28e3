package broker

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound - брокер не знает ордера с таким идентификатором
var ErrOrderNotFound = errors.New("order not found at broker")

// Error представляет ошибку вызова брокера.
//
// Transient=true означает сетевую/временную проблему: вызов можно
// повторить. Transient=false - терминальный отказ (реджект, невалидный
// запрос), повторять бессмысленно.
type Error struct {
	Broker    string
	Code      string
	Message   string
	Transient bool
	Original  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Broker, e.Message)
}

// Unwrap возвращает оригинальную ошибку для errors.Is() и errors.As()
func (e *Error) Unwrap() error {
	return e.Original
}

// Retryable реализует контракт pkg/retry
func (e *Error) Retryable() bool {
	return e.Transient
}

// NewTransient создаёт временную (повторяемую) ошибку брокера
func NewTransient(broker, message string, original error) *Error {
	return &Error{Broker: broker, Code: "transient", Message: message, Transient: true, Original: original}
}

// NewRejected создаёт терминальную ошибку отклонения
func NewRejected(broker, reason string) *Error {
	return &Error{Broker: broker, Code: "rejected", Message: reason, Transient: false}
}

// IsTransient проверяет, является ли ошибка временной ошибкой брокера
func IsTransient(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}
