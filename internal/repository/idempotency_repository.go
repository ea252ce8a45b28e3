package repository

import (
	"database/sql"
	"time"
)

// IdempotencyRepository - работа с таблицей idempotency_keys.
//
// Таблица хранит идентификаторы уже обработанных сообщений-источников.
// Проверка и запись выполняются одним атомарным INSERT, поэтому гонка
// двух одинаковых сообщений невозможна даже между процессами.
type IdempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создает новый экземпляр репозитория
func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// RecordIfNew атомарно записывает ключ.
// Возвращает true если ключ новый, false если уже встречался.
func (r *IdempotencyRepository) RecordIfNew(key string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (key, seen_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`

	result, err := r.db.Exec(query, key, time.Now())
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// Release удаляет ключ сообщения, действие которого не удалось
// поставить в очередь. Повторная доставка после этого проходит
// как новое сообщение.
func (r *IdempotencyRepository) Release(key string) error {
	query := `DELETE FROM idempotency_keys WHERE key = $1`

	_, err := r.db.Exec(query, key)
	return err
}

// Seen проверяет ключ без записи
func (r *IdempotencyRepository) Seen(key string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM idempotency_keys WHERE key = $1)`

	var seen bool
	err := r.db.QueryRow(query, key).Scan(&seen)
	if err != nil {
		return false, err
	}

	return seen, nil
}

// PruneOlderThan удаляет ключи старше указанной даты.
// Горизонт хранения должен превышать максимальную задержку повтора
// сообщений в источнике.
func (r *IdempotencyRepository) PruneOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM idempotency_keys WHERE seen_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count возвращает количество хранимых ключей
func (r *IdempotencyRepository) Count() (int, error) {
	query := `SELECT COUNT(*) FROM idempotency_keys`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
