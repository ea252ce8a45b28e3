package repository

import (
	"database/sql"
	"errors"
	"time"

	"signalpilot/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository - работа с таблицами positions и closed_positions
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Get возвращает открытую позицию по инструменту
func (r *PositionRepository) Get(symbol string) (*models.Position, error) {
	query := `
		SELECT symbol, quantity, avg_entry_price, stop_price, target_price, max_quantity, closed_qty, avg_exit_price, realized_pnl, opened_at, updated_at
		FROM positions
		WHERE symbol = $1`

	position := &models.Position{}
	err := r.db.QueryRow(query, symbol).Scan(
		&position.Symbol,
		&position.Quantity,
		&position.AvgEntryPrice,
		&position.StopPrice,
		&position.TargetPrice,
		&position.MaxQuantity,
		&position.ClosedQty,
		&position.AvgExitPrice,
		&position.RealizedPnl,
		&position.OpenedAt,
		&position.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	return position, nil
}

// GetAll возвращает все открытые позиции
func (r *PositionRepository) GetAll() ([]*models.Position, error) {
	query := `
		SELECT symbol, quantity, avg_entry_price, stop_price, target_price, max_quantity, closed_qty, avg_exit_price, realized_pnl, opened_at, updated_at
		FROM positions
		ORDER BY symbol`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		position := &models.Position{}
		err := rows.Scan(
			&position.Symbol,
			&position.Quantity,
			&position.AvgEntryPrice,
			&position.StopPrice,
			&position.TargetPrice,
			&position.MaxQuantity,
			&position.ClosedQty,
			&position.AvgExitPrice,
			&position.RealizedPnl,
			&position.OpenedAt,
			&position.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}

// Upsert создает или обновляет позицию инструмента
func (r *PositionRepository) Upsert(position *models.Position) error {
	query := `
		INSERT INTO positions (symbol, quantity, avg_entry_price, stop_price, target_price, max_quantity, closed_qty, avg_exit_price, realized_pnl, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    avg_entry_price = EXCLUDED.avg_entry_price,
		    stop_price = EXCLUDED.stop_price,
		    target_price = EXCLUDED.target_price,
		    max_quantity = EXCLUDED.max_quantity,
		    closed_qty = EXCLUDED.closed_qty,
		    avg_exit_price = EXCLUDED.avg_exit_price,
		    realized_pnl = EXCLUDED.realized_pnl,
		    updated_at = EXCLUDED.updated_at`

	position.UpdatedAt = time.Now()
	if position.OpenedAt.IsZero() {
		position.OpenedAt = position.UpdatedAt
	}

	_, err := r.db.Exec(
		query,
		position.Symbol,
		position.Quantity,
		position.AvgEntryPrice,
		position.StopPrice,
		position.TargetPrice,
		position.MaxQuantity,
		position.ClosedQty,
		position.AvgExitPrice,
		position.RealizedPnl,
		position.OpenedAt,
		position.UpdatedAt,
	)

	return err
}

// UpdateExits обновляет уровни выхода позиции
func (r *PositionRepository) UpdateExits(symbol string, stopPrice, targetPrice *float64) error {
	query := `
		UPDATE positions
		SET stop_price = $1, target_price = $2, updated_at = $3
		WHERE symbol = $4`

	result, err := r.db.Exec(query, stopPrice, targetPrice, time.Now(), symbol)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}

// Delete удаляет строку позиции (вызывается при архивации)
func (r *PositionRepository) Delete(symbol string) error {
	query := `DELETE FROM positions WHERE symbol = $1`

	result, err := r.db.Exec(query, symbol)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}

// Archive записывает закрытую позицию в архив
func (r *PositionRepository) Archive(closed *models.ClosedPosition) error {
	query := `
		INSERT INTO closed_positions (symbol, quantity, avg_entry_price, avg_exit_price, realized_pnl, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if closed.ClosedAt.IsZero() {
		closed.ClosedAt = time.Now()
	}

	err := r.db.QueryRow(
		query,
		closed.Symbol,
		closed.Quantity,
		closed.AvgEntryPrice,
		closed.AvgExitPrice,
		closed.RealizedPnl,
		closed.OpenedAt,
		closed.ClosedAt,
	).Scan(&closed.ID)

	return err
}

// GetClosed возвращает последние N закрытых позиций
func (r *PositionRepository) GetClosed(limit int) ([]*models.ClosedPosition, error) {
	query := `
		SELECT id, symbol, quantity, avg_entry_price, avg_exit_price, realized_pnl, opened_at, closed_at
		FROM closed_positions
		ORDER BY closed_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closed []*models.ClosedPosition
	for rows.Next() {
		cp := &models.ClosedPosition{}
		err := rows.Scan(
			&cp.ID,
			&cp.Symbol,
			&cp.Quantity,
			&cp.AvgEntryPrice,
			&cp.AvgExitPrice,
			&cp.RealizedPnl,
			&cp.OpenedAt,
			&cp.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		closed = append(closed, cp)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return closed, nil
}

// TotalRealizedPnl возвращает суммарный реализованный P&L по архиву
func (r *PositionRepository) TotalRealizedPnl() (float64, error) {
	query := `SELECT COALESCE(SUM(realized_pnl), 0) FROM closed_positions`

	var total float64
	err := r.db.QueryRow(query).Scan(&total)
	if err != nil {
		return 0, err
	}

	return total, nil
}
