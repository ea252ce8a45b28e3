package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================

// ============ Очередь действий ============

// ActionsProcessed - обработанные действия по терминальному статусу
var ActionsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "pipeline",
		Name:      "actions_processed_total",
		Help:      "Total number of processed actions by terminal status",
	},
	[]string{"symbol", "status"}, // done, skipped, failed
)

// DuplicatesSkipped - сообщения, отброшенные реестром идемпотентности
var DuplicatesSkipped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "pipeline",
		Name:      "duplicates_skipped_total",
		Help:      "Number of source messages dropped by the idempotency ledger",
	},
)

// QueueDepth - глубина очереди действий по инструменту
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "signalpilot",
		Subsystem: "pipeline",
		Name:      "queue_depth",
		Help:      "Number of queued actions per symbol",
	},
	[]string{"symbol"},
)

// ============ Исполнение ордеров ============

// OrdersSubmitted - ордера, принятые брокером
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "execution",
		Name:      "orders_submitted_total",
		Help:      "Total number of orders accepted by the broker",
	},
	[]string{"symbol", "side"},
)

// OrderExecutionSeconds - время от отправки до терминального статуса
var OrderExecutionSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "signalpilot",
		Subsystem: "execution",
		Name:      "order_execution_seconds",
		Help:      "Time from submission to terminal order status in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	},
	[]string{"symbol"},
)

// SubmitRetries - повторные попытки отправки
var SubmitRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "execution",
		Name:      "submit_retries_total",
		Help:      "Number of order submission retries",
	},
	[]string{"symbol"},
)

// OrdersRejected - отклонённые ордера
var OrdersRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "execution",
		Name:      "orders_rejected_total",
		Help:      "Number of orders rejected by the broker",
	},
	[]string{"symbol"},
)

// ============ Позиции ============

// FillsApplied - применённые исполнения
var FillsApplied = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "positions",
		Name:      "fills_applied_total",
		Help:      "Number of fills applied to the position ledger",
	},
)

// FillsDuplicate - повторно доставленные исполнения (отброшены)
var FillsDuplicate = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "positions",
		Name:      "fills_duplicate_total",
		Help:      "Number of duplicate fill deliveries dropped",
	},
)

// OpenPositions - текущее количество открытых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signalpilot",
		Subsystem: "positions",
		Name:      "open_positions",
		Help:      "Current number of open positions",
	},
)

// RealizedPnl - суммарный реализованный P&L
var RealizedPnl = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signalpilot",
		Subsystem: "positions",
		Name:      "realized_pnl_total",
		Help:      "Cumulative realized P&L of archived positions",
	},
)

// ============ Мониторинг ============

// ExitTriggers - синтезированные действия закрытия
var ExitTriggers = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signalpilot",
		Subsystem: "monitor",
		Name:      "exit_triggers_total",
		Help:      "Number of exit actions synthesized by the position monitor",
	},
	[]string{"symbol", "reason"}, // exit_target, exit_stop
)

// MonitorDegraded - инструменты с устаревшими ценами (1=degraded)
var MonitorDegraded = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "signalpilot",
		Subsystem: "monitor",
		Name:      "degraded",
		Help:      "Whether monitoring for a symbol is degraded due to stale prices",
	},
	[]string{"symbol"},
)

// ============ Воркеры и восстановление ============

// ActiveWorkers - количество запущенных воркеров инструментов
var ActiveWorkers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signalpilot",
		Subsystem: "pipeline",
		Name:      "active_workers",
		Help:      "Current number of per-symbol workers",
	},
)

// HaltedSymbols - инструменты, остановленные до ручной сверки
var HaltedSymbols = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signalpilot",
		Subsystem: "pipeline",
		Name:      "halted_symbols",
		Help:      "Number of symbols halted after a recovery inconsistency",
	},
)

// ============ Вспомогательные функции ============

// RecordActionResult записывает терминальный статус действия
func RecordActionResult(symbol, status string) {
	ActionsProcessed.WithLabelValues(symbol, status).Inc()
}

// RecordFill записывает применение или отброс исполнения
func RecordFill(applied bool) {
	if applied {
		FillsApplied.Inc()
	} else {
		FillsDuplicate.Inc()
	}
}

// RecordExitTrigger записывает срабатывание условия выхода
func RecordExitTrigger(symbol, reason string) {
	ExitTriggers.WithLabelValues(symbol, reason).Inc()
}

// SetDegraded обновляет флаг degraded мониторинга инструмента
func SetDegraded(symbol string, degraded bool) {
	if degraded {
		MonitorDegraded.WithLabelValues(symbol).Set(1)
	} else {
		MonitorDegraded.WithLabelValues(symbol).Set(0)
	}
}
