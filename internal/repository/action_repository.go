package repository

import (
	"database/sql"
	"errors"
	"time"

	"signalpilot/internal/models"
)

// Ошибки репозитория действий
var (
	ErrActionNotFound = errors.New("action not found")
	ErrActionNotQueued = errors.New("action is not queued")
)

// ActionRepository - работа с таблицей actions (долговечная очередь действий)
type ActionRepository struct {
	db *sql.DB
}

// NewActionRepository создает новый экземпляр репозитория
func NewActionRepository(db *sql.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// Create добавляет действие в очередь
func (r *ActionRepository) Create(action *models.Action) error {
	query := `
		INSERT INTO actions (id, source_message_id, symbol, side, quantity, fraction, sizing, kind, limit_price, stop_price, target_price, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		query,
		action.ID,
		action.SourceMessageID,
		action.Symbol,
		action.Side,
		action.Quantity,
		action.Fraction,
		action.Sizing,
		action.Kind,
		action.LimitPrice,
		action.StopPrice,
		action.TargetPrice,
		action.Status,
		action.Reason,
		action.CreatedAt,
	)

	return err
}

// GetByID возвращает действие по ID
func (r *ActionRepository) GetByID(id string) (*models.Action, error) {
	query := `
		SELECT id, source_message_id, symbol, side, quantity, fraction, sizing, kind, limit_price, stop_price, target_price, status, reason, created_at, completed_at
		FROM actions
		WHERE id = $1`

	action := &models.Action{}
	err := r.db.QueryRow(query, id).Scan(
		&action.ID,
		&action.SourceMessageID,
		&action.Symbol,
		&action.Side,
		&action.Quantity,
		&action.Fraction,
		&action.Sizing,
		&action.Kind,
		&action.LimitPrice,
		&action.StopPrice,
		&action.TargetPrice,
		&action.Status,
		&action.Reason,
		&action.CreatedAt,
		&action.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, err
	}

	return action, nil
}

// NextQueued возвращает самое старое queued действие инструмента.
// Порядок FIFO строгий: created_at, затем id для устойчивости при равных метках.
func (r *ActionRepository) NextQueued(symbol string) (*models.Action, error) {
	query := `
		SELECT id, source_message_id, symbol, side, quantity, fraction, sizing, kind, limit_price, stop_price, target_price, status, reason, created_at, completed_at
		FROM actions
		WHERE symbol = $1 AND status = $2
		ORDER BY created_at, id
		LIMIT 1`

	action := &models.Action{}
	err := r.db.QueryRow(query, symbol, models.ActionStatusQueued).Scan(
		&action.ID,
		&action.SourceMessageID,
		&action.Symbol,
		&action.Side,
		&action.Quantity,
		&action.Fraction,
		&action.Sizing,
		&action.Kind,
		&action.LimitPrice,
		&action.StopPrice,
		&action.TargetPrice,
		&action.Status,
		&action.Reason,
		&action.CreatedAt,
		&action.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, err
	}

	return action, nil
}

// Claim переводит действие queued -> claimed.
// Условие status = queued в WHERE защищает от двойного захвата.
func (r *ActionRepository) Claim(id string) error {
	query := `
		UPDATE actions
		SET status = $1
		WHERE id = $2 AND status = $3`

	result, err := r.db.Exec(query, models.ActionStatusClaimed, id, models.ActionStatusQueued)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrActionNotQueued
	}

	return nil
}

// Requeue возвращает claimed действие обратно в очередь.
// Используется при восстановлении: crash до создания ордера
// означает, что брокеру ничего не уходило и действие можно повторить.
func (r *ActionRepository) Requeue(id string) error {
	query := `
		UPDATE actions
		SET status = $1
		WHERE id = $2 AND status = $3`

	result, err := r.db.Exec(query, models.ActionStatusQueued, id, models.ActionStatusClaimed)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrActionNotFound
	}

	return nil
}

// Complete переводит действие в терминальный статус
func (r *ActionRepository) Complete(id string, status string) error {
	query := `
		UPDATE actions
		SET status = $1, completed_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrActionNotFound
	}

	return nil
}

// GetClaimed возвращает все claimed действия (сканирование при рестарте)
func (r *ActionRepository) GetClaimed() ([]*models.Action, error) {
	return r.getByStatus(models.ActionStatusClaimed)
}

// GetQueued возвращает все queued действия
func (r *ActionRepository) GetQueued() ([]*models.Action, error) {
	return r.getByStatus(models.ActionStatusQueued)
}

func (r *ActionRepository) getByStatus(status string) ([]*models.Action, error) {
	query := `
		SELECT id, source_message_id, symbol, side, quantity, fraction, sizing, kind, limit_price, stop_price, target_price, status, reason, created_at, completed_at
		FROM actions
		WHERE status = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		action := &models.Action{}
		err := rows.Scan(
			&action.ID,
			&action.SourceMessageID,
			&action.Symbol,
			&action.Side,
			&action.Quantity,
			&action.Fraction,
			&action.Sizing,
			&action.Kind,
			&action.LimitPrice,
			&action.StopPrice,
			&action.TargetPrice,
			&action.Status,
			&action.Reason,
			&action.CreatedAt,
			&action.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return actions, nil
}

// PendingSymbols возвращает инструменты с неотработанными действиями.
// Используется при рестарте для запуска воркеров до прихода новых сообщений.
func (r *ActionRepository) PendingSymbols() ([]string, error) {
	query := `
		SELECT DISTINCT symbol
		FROM actions
		WHERE status IN ($1, $2)`

	rows, err := r.db.Query(query, models.ActionStatusQueued, models.ActionStatusClaimed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return symbols, nil
}

// GetRecent возвращает последние N действий
func (r *ActionRepository) GetRecent(limit int) ([]*models.Action, error) {
	query := `
		SELECT id, source_message_id, symbol, side, quantity, fraction, sizing, kind, limit_price, stop_price, target_price, status, reason, created_at, completed_at
		FROM actions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		action := &models.Action{}
		err := rows.Scan(
			&action.ID,
			&action.SourceMessageID,
			&action.Symbol,
			&action.Side,
			&action.Quantity,
			&action.Fraction,
			&action.Sizing,
			&action.Kind,
			&action.LimitPrice,
			&action.StopPrice,
			&action.TargetPrice,
			&action.Status,
			&action.Reason,
			&action.CreatedAt,
			&action.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return actions, nil
}

// CountByStatus возвращает количество действий с определенным статусом
func (r *ActionRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM actions WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
