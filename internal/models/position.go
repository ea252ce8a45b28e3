package models

import "time"

// Position - чистая (нетто) позиция по одному инструменту.
//
// Единственный писатель - реестр позиций: количество меняется только
// по подтверждённым исполнениям. Нулевое количество означает отсутствие
// позиции - строка архивируется, нулевые записи не хранятся.
type Position struct {
	Symbol        string    `json:"symbol" db:"symbol"`
	Quantity      float64   `json:"quantity" db:"quantity"`             // знаковое: >0 long, <0 short
	AvgEntryPrice float64   `json:"avg_entry_price" db:"avg_entry_price"` // средневзвешенная цена входа
	StopPrice     *float64  `json:"stop_price,omitempty" db:"stop_price"`
	TargetPrice   *float64  `json:"target_price,omitempty" db:"target_price"`

	// Накопленная статистика закрытия. Хранится в строке позиции,
	// чтобы частичное закрытие переживало рестарт: архивная запись
	// при обнулении собирается из этих полей, а не из памяти.
	MaxQuantity  float64 `json:"max_quantity" db:"max_quantity"`   // пиковый абсолютный размер
	ClosedQty    float64 `json:"closed_qty" db:"closed_qty"`       // абсолютное закрытое количество
	AvgExitPrice float64 `json:"avg_exit_price" db:"avg_exit_price"`
	RealizedPnl  float64 `json:"realized_pnl" db:"realized_pnl"`

	OpenOrderIDs []string  `json:"open_order_ids,omitempty" db:"-"` // нетерминальные ордера по инструменту
	OpenedAt     time.Time `json:"opened_at" db:"opened_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Side возвращает направление позиции
func (p *Position) Side() string {
	if p.Quantity < 0 {
		return PositionSideShort
	}
	return PositionSideLong
}

// Направления позиции
const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

// ClosedPosition - архивная запись закрытой позиции с реализованным P&L.
type ClosedPosition struct {
	ID            int       `json:"id" db:"id"`
	Symbol        string    `json:"symbol" db:"symbol"`
	Quantity      float64   `json:"quantity" db:"quantity"` // максимальный размер за время жизни
	AvgEntryPrice float64   `json:"avg_entry_price" db:"avg_entry_price"`
	AvgExitPrice  float64   `json:"avg_exit_price" db:"avg_exit_price"`
	RealizedPnl   float64   `json:"realized_pnl" db:"realized_pnl"`
	OpenedAt      time.Time `json:"opened_at" db:"opened_at"`
	ClosedAt      time.Time `json:"closed_at" db:"closed_at"`
}
