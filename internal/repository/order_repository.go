package repository

import (
	"database/sql"
	"errors"
	"time"

	"signalpilot/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицами orders и fills
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create создает запись об ордере.
//
// Запись создается в статусе pending ДО первой отправки брокеру:
// клиентский токен должен пережить рестарт, иначе повтор после
// неоднозначного таймаута породит второй ордер.
func (r *OrderRepository) Create(order *models.Order) error {
	query := `
		INSERT INTO orders (id, action_id, client_order_id, broker_order_id, symbol, side, kind, limit_price, quantity, filled_qty, avg_fill_price, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	_, err := r.db.Exec(
		query,
		order.ID,
		order.ActionID,
		order.ClientOrderID,
		order.BrokerOrderID,
		order.Symbol,
		order.Side,
		order.Kind,
		order.LimitPrice,
		order.Quantity,
		order.FilledQty,
		order.AvgFillPrice,
		order.Status,
		order.ErrorMessage,
		order.CreatedAt,
		order.UpdatedAt,
	)

	return err
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	return r.getOne(`WHERE id = $1`, id)
}

// GetByActionID возвращает ордер, порожденный действием (связь 1:1)
func (r *OrderRepository) GetByActionID(actionID string) (*models.Order, error) {
	return r.getOne(`WHERE action_id = $1`, actionID)
}

// GetByClientOrderID возвращает ордер по клиентскому токену
func (r *OrderRepository) GetByClientOrderID(clientOrderID string) (*models.Order, error) {
	return r.getOne(`WHERE client_order_id = $1`, clientOrderID)
}

func (r *OrderRepository) getOne(where string, arg interface{}) (*models.Order, error) {
	query := `
		SELECT id, action_id, client_order_id, broker_order_id, symbol, side, kind, limit_price, quantity, filled_qty, avg_fill_price, status, error_message, created_at, updated_at, filled_at
		FROM orders ` + where

	order := &models.Order{}
	err := r.db.QueryRow(query, arg).Scan(
		&order.ID,
		&order.ActionID,
		&order.ClientOrderID,
		&order.BrokerOrderID,
		&order.Symbol,
		&order.Side,
		&order.Kind,
		&order.LimitPrice,
		&order.Quantity,
		&order.FilledQty,
		&order.AvgFillPrice,
		&order.Status,
		&order.ErrorMessage,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.FilledAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetActive возвращает нетерминальные ордера (сканирование при рестарте)
func (r *OrderRepository) GetActive() ([]*models.Order, error) {
	query := `
		SELECT id, action_id, client_order_id, broker_order_id, symbol, side, kind, limit_price, quantity, filled_qty, avg_fill_price, status, error_message, created_at, updated_at, filled_at
		FROM orders
		WHERE status IN ($1, $2, $3)
		ORDER BY created_at`

	rows, err := r.db.Query(query, models.OrderStatusPending, models.OrderStatusSubmitted, models.OrderStatusPartiallyFilled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanOrders(rows)
}

// GetBySymbol возвращает ордера инструмента, новые первыми
func (r *OrderRepository) GetBySymbol(symbol string, limit int) ([]*models.Order, error) {
	query := `
		SELECT id, action_id, client_order_id, broker_order_id, symbol, side, kind, limit_price, quantity, filled_qty, avg_fill_price, status, error_message, created_at, updated_at, filled_at
		FROM orders
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanOrders(rows)
}

// GetRecent возвращает последние N ордеров
func (r *OrderRepository) GetRecent(limit int) ([]*models.Order, error) {
	query := `
		SELECT id, action_id, client_order_id, broker_order_id, symbol, side, kind, limit_price, quantity, filled_qty, avg_fill_price, status, error_message, created_at, updated_at, filled_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanOrders(rows)
}

func (r *OrderRepository) scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		err := rows.Scan(
			&order.ID,
			&order.ActionID,
			&order.ClientOrderID,
			&order.BrokerOrderID,
			&order.Symbol,
			&order.Side,
			&order.Kind,
			&order.LimitPrice,
			&order.Quantity,
			&order.FilledQty,
			&order.AvgFillPrice,
			&order.Status,
			&order.ErrorMessage,
			&order.CreatedAt,
			&order.UpdatedAt,
			&order.FilledAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// MarkSubmitted записывает брокерский id после подтверждения приема
func (r *OrderRepository) MarkSubmitted(id, brokerOrderID string) error {
	query := `
		UPDATE orders
		SET broker_order_id = $1, status = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(query, brokerOrderID, models.OrderStatusSubmitted, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// UpdateProgress обновляет исполненное количество и статус ордера
func (r *OrderRepository) UpdateProgress(id, status string, filledQty, avgFillPrice float64, filledAt *time.Time) error {
	query := `
		UPDATE orders
		SET status = $1, filled_qty = $2, avg_fill_price = $3, filled_at = $4, updated_at = $5
		WHERE id = $6`

	result, err := r.db.Exec(query, status, filledQty, avgFillPrice, filledAt, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// SetError помечает ордер отклоненным с сообщением об ошибке
func (r *OrderRepository) SetError(id, errorMessage string) error {
	query := `
		UPDATE orders
		SET error_message = $1, status = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(query, errorMessage, models.OrderStatusRejected, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// InsertFill записывает исполнение.
//
// Ключ (order_id, seq) с ON CONFLICT DO NOTHING делает запись
// идемпотентной: повторная доставка того же исполнения вернет false
// и позиция применена не будет.
func (r *OrderRepository) InsertFill(fill *models.Fill) (bool, error) {
	query := `
		INSERT INTO fills (order_id, seq, symbol, quantity, price, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, seq) DO NOTHING`

	if fill.Timestamp.IsZero() {
		fill.Timestamp = time.Now()
	}

	result, err := r.db.Exec(query, fill.OrderID, fill.Seq, fill.Symbol, fill.Quantity, fill.Price, fill.Timestamp)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// GetFills возвращает исполнения ордера по порядку
func (r *OrderRepository) GetFills(orderID string) ([]*models.Fill, error) {
	query := `
		SELECT order_id, seq, symbol, quantity, price, timestamp
		FROM fills
		WHERE order_id = $1
		ORDER BY seq`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []*models.Fill
	for rows.Next() {
		fill := &models.Fill{}
		err := rows.Scan(&fill.OrderID, &fill.Seq, &fill.Symbol, &fill.Quantity, &fill.Price, &fill.Timestamp)
		if err != nil {
			return nil, err
		}
		fills = append(fills, fill)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return fills, nil
}

// NextFillSeq возвращает следующий порядковый номер исполнения ордера
func (r *OrderRepository) NextFillSeq(orderID string) (int, error) {
	query := `SELECT COALESCE(MAX(seq), 0) + 1 FROM fills WHERE order_id = $1`

	var seq int
	err := r.db.QueryRow(query, orderID).Scan(&seq)
	if err != nil {
		return 0, err
	}

	return seq, nil
}

// CountByStatus возвращает количество ордеров с определенным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
