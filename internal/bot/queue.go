package bot

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
)

// ActionQueue - долговечная FIFO очередь действий с разбивкой
// по инструментам.
//
// Содержимое живёт в таблице actions и переживает рестарт; в памяти
// только каналы пробуждения воркеров. Порядок выдачи внутри инструмента
// строго соответствует порядку постановки, между инструментами
// порядок не гарантируется.
type ActionQueue struct {
	actions ActionStore
	logger  *zap.Logger

	mu    sync.Mutex
	wakes map[string]chan struct{}
}

// NewActionQueue создаёт очередь поверх хранилища действий
func NewActionQueue(actions ActionStore, logger *zap.Logger) *ActionQueue {
	return &ActionQueue{
		actions: actions,
		logger:  logger,
		wakes:   make(map[string]chan struct{}),
	}
}

// Enqueue ставит действие в очередь и будит воркер инструмента
func (q *ActionQueue) Enqueue(action *models.Action) error {
	action.Status = models.ActionStatusQueued
	if err := q.actions.Create(action); err != nil {
		return err
	}

	q.logger.Debug("action enqueued",
		zap.String("action_id", action.ID),
		zap.String("symbol", action.Symbol),
		zap.String("side", action.Side))

	q.signal(action.Symbol)
	return nil
}

// Next забирает следующее действие инструмента (queued -> claimed).
// Возвращает nil если очередь инструмента пуста.
func (q *ActionQueue) Next(symbol string) (*models.Action, error) {
	for {
		action, err := q.actions.NextQueued(symbol)
		if err != nil {
			if errors.Is(err, repository.ErrActionNotFound) {
				return nil, nil
			}
			return nil, err
		}

		if err := q.actions.Claim(action.ID); err != nil {
			if errors.Is(err, repository.ErrActionNotQueued) {
				// кто-то успел раньше, берём следующее
				continue
			}
			return nil, err
		}

		action.Status = models.ActionStatusClaimed
		return action, nil
	}
}

// Complete фиксирует терминальный статус действия
func (q *ActionQueue) Complete(action *models.Action, status string) error {
	if err := q.actions.Complete(action.ID, status); err != nil {
		return err
	}
	action.Status = status
	RecordActionResult(action.Symbol, status)
	return nil
}

// Subscribe возвращает канал пробуждения воркера инструмента.
// Канал с буфером 1: сигналы схлопываются, пропусков не бывает,
// потому что воркер после пробуждения вычитывает очередь досуха.
func (q *ActionQueue) Subscribe(symbol string) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	wake, ok := q.wakes[symbol]
	if !ok {
		wake = make(chan struct{}, 1)
		q.wakes[symbol] = wake
	}
	return wake
}

func (q *ActionQueue) signal(symbol string) {
	q.mu.Lock()
	wake, ok := q.wakes[symbol]
	if !ok {
		wake = make(chan struct{}, 1)
		q.wakes[symbol] = wake
	}
	q.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}
