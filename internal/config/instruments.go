package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InstrumentLimits - пер-инструментные торговые ограничения
type InstrumentLimits struct {
	// MaxPositionQty - максимальный абсолютный размер позиции.
	// 0 = без лимита.
	MaxPositionQty float64 `yaml:"max_position_qty"`

	// DefaultStopPct - стоп по умолчанию в процентах от цены входа,
	// если сигнал не задал свой. 0 = не ставить.
	DefaultStopPct float64 `yaml:"default_stop_pct"`

	// DefaultTargetPct - цель по умолчанию в процентах от цены входа
	DefaultTargetPct float64 `yaml:"default_target_pct"`
}

// InstrumentsConfig - настройки по инструментам, ключ - символ.
// Символ "*" задаёт значения по умолчанию для всех остальных.
type InstrumentsConfig map[string]InstrumentLimits

// LoadInstruments читает YAML файл с настройками инструментов.
//
// Формат:
//
//	AAPL:
//	  max_position_qty: 100
//	  default_stop_pct: 5
//	"*":
//	  max_position_qty: 50
func LoadInstruments(path string) (InstrumentsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var instruments InstrumentsConfig
	if err := yaml.Unmarshal(data, &instruments); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for symbol, limits := range instruments {
		if limits.MaxPositionQty < 0 {
			return nil, fmt.Errorf("instrument %s: max_position_qty cannot be negative", symbol)
		}
		if limits.DefaultStopPct < 0 || limits.DefaultStopPct > 100 {
			return nil, fmt.Errorf("instrument %s: default_stop_pct must be within [0, 100]", symbol)
		}
		if limits.DefaultTargetPct < 0 {
			return nil, fmt.Errorf("instrument %s: default_target_pct cannot be negative", symbol)
		}
	}

	return instruments, nil
}

// Limits возвращает лимиты для символа с учётом значений по умолчанию ("*")
func (ic InstrumentsConfig) Limits(symbol string) InstrumentLimits {
	if ic == nil {
		return InstrumentLimits{}
	}
	if limits, ok := ic[symbol]; ok {
		return limits
	}
	return ic["*"]
}
