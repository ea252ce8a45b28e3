package repository

import "database/sql"

// InitSchema создает таблицы при первом запуске.
// Все выражения идемпотентны (IF NOT EXISTS), повторный запуск безопасен.
func InitSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS actions (
			id VARCHAR(64) PRIMARY KEY,
			source_message_id VARCHAR(128) NOT NULL DEFAULT '',
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL DEFAULT 0,
			fraction DECIMAL(10, 6) NOT NULL DEFAULT 0,
			sizing VARCHAR(10) NOT NULL DEFAULT '',
			kind VARCHAR(10) NOT NULL DEFAULT 'market',
			limit_price DECIMAL(20, 8),
			stop_price DECIMAL(20, 8),
			target_price DECIMAL(20, 8),
			status VARCHAR(10) NOT NULL DEFAULT 'queued',
			reason VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_symbol_status ON actions (symbol, status)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			action_id VARCHAR(64) NOT NULL,
			client_order_id VARCHAR(64) UNIQUE NOT NULL,
			broker_order_id VARCHAR(64) NOT NULL DEFAULT '',
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			kind VARCHAR(10) NOT NULL DEFAULT 'market',
			limit_price DECIMAL(20, 8),
			quantity DECIMAL(20, 8) NOT NULL,
			filled_qty DECIMAL(20, 8) NOT NULL DEFAULT 0,
			avg_fill_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			filled_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders (symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status)`,
		`CREATE TABLE IF NOT EXISTS fills (
			order_id VARCHAR(64) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (order_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol VARCHAR(20) PRIMARY KEY,
			quantity DECIMAL(20, 8) NOT NULL,
			avg_entry_price DECIMAL(20, 8) NOT NULL,
			stop_price DECIMAL(20, 8),
			target_price DECIMAL(20, 8),
			max_quantity DECIMAL(20, 8) NOT NULL DEFAULT 0,
			closed_qty DECIMAL(20, 8) NOT NULL DEFAULT 0,
			avg_exit_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			realized_pnl DECIMAL(20, 2) NOT NULL DEFAULT 0,
			opened_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS closed_positions (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			avg_entry_price DECIMAL(20, 8) NOT NULL,
			avg_exit_price DECIMAL(20, 8) NOT NULL,
			realized_pnl DECIMAL(20, 2) NOT NULL,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key VARCHAR(128) PRIMARY KEY,
			seen_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(10) NOT NULL DEFAULT 'info',
			symbol VARCHAR(20) NOT NULL DEFAULT '',
			action_id VARCHAR(64) NOT NULL DEFAULT '',
			order_id VARCHAR(64) NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			meta JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_symbol ON notifications (symbol)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
