// Package retry - повторные попытки с экспоненциальным backoff.
//
// Используется исполнителем ордеров: временные сбои брокера повторяются
// с растущей задержкой, терминальные отказы (reject) отдаются сразу.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config задаёт поведение повторных попыток.
//
// Задержка перед попыткой n: InitialDelay * Multiplier^n, с джиттером
// и потолком MaxDelay. Джиттер разносит одновременные повторы по времени.
type Config struct {
	// MaxAttempts - сколько всего попыток, включая первую.
	// Значение <= 0 означает без ограничения.
	MaxAttempts int

	// InitialDelay - задержка после первой неудачи
	InitialDelay time.Duration

	// MaxDelay - потолок задержки
	MaxDelay time.Duration

	// Multiplier - во сколько раз растёт задержка с каждой попыткой
	Multiplier float64

	// JitterFactor - доля случайного отклонения задержки, [0, 1]
	JitterFactor float64

	// RetryIf решает, стоит ли повторять после конкретной ошибки.
	// nil - повторяется всё.
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором
	OnRetry func(attempt int, err error, delay time.Duration)
}

// applyDefaults заполняет незаданные поля безопасными значениями
func (c *Config) applyDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	c.JitterFactor = math.Max(0, math.Min(c.JitterFactor, 1))
}

// delayFor возвращает задержку перед повтором после попытки attempt
func (c *Config) delayFor(attempt int) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	base = math.Min(base, float64(c.MaxDelay))

	if c.JitterFactor > 0 {
		// смещение в пределах ±JitterFactor от базы
		base += base * c.JitterFactor * (rand.Float64()*2 - 1)
	}

	return time.Duration(math.Max(base, 0))
}

// DoWithResult выполняет операцию с повторами и возвращает её результат.
//
// Повторы прекращаются при успехе, исчерпании попыток, отказе RetryIf
// или отмене контекста. Возвращается последняя ошибка операции; если
// операция ни разу не запускалась - ошибка контекста.
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.applyDefaults()

	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts-1 {
			return zero, lastErr
		}

		delay := cfg.delayFor(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}
}

// Do - вариант DoWithResult для операций без результата
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// RetryableError - ошибка, знающая о своей повторяемости
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable сообщает, имеет ли смысл повторять после ошибки.
//
// Порядок проверки: Retryable(), затем Temporary(). Ошибка без
// классификации считается повторяемой - лучше лишний повтор,
// чем потерянный ордер.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	var te interface{ Temporary() bool }
	if errors.As(err, &te) {
		return te.Temporary()
	}

	return true
}

// RetryIfNotContext запрещает повторы после отмены или таймаута контекста
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError помечает ошибку как терминальную для retry
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Permanent оборачивает ошибку, после которой повторять бессмысленно
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError помечает ошибку как временную
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string   { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error   { return e.Err }
func (e *TemporaryError) Retryable() bool { return true }
func (e *TemporaryError) Temporary() bool { return true }

// Temporary оборачивает ошибку, после которой нужно повторить
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
