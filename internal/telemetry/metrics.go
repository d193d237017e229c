// Package telemetry exposes Prometheus metrics for the trading process and
// runs a bounded-capacity retry queue for egress of trades and events, so a
// downstream persistence outage never blocks trading (§6).
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_signals_total",
			Help: "Signals emitted by the predictor, by symbol and action.",
		},
		[]string{"symbol", "action"},
	)

	acksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_acks_total",
			Help: "Executor acknowledgements, by symbol, status and reason.",
		},
		[]string{"symbol", "status", "reason"},
	)

	virtualPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "predictor_virtual_pnl",
			Help: "Current floating virtual PnL, by symbol.",
		},
		[]string{"symbol"},
	)

	paperDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "predictor_paper_drift_usd",
			Help: "Divergence between real and paper account balance, by symbol.",
		},
		[]string{"symbol"},
	)

	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "predictor_account_equity",
			Help: "Broker-reported account equity.",
		},
	)

	drawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "predictor_drawdown_pct",
			Help: "Current drawdown from the session's initial balance, as a percentage.",
		},
	)

	circuitBreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "predictor_circuit_breaker_open",
			Help: "1 if the risk guard's circuit breaker is currently open, 0 otherwise.",
		},
	)

	retryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "predictor_retry_queue_depth",
			Help: "Number of telemetry events pending persistence retry.",
		},
	)

	retryQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictor_retry_queue_dropped_total",
			Help: "Events dropped because the retry queue was at capacity.",
		},
	)

	heartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_heartbeats_total",
			Help: "Heartbeats observed per symbol task.",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		signalsTotal, acksTotal, virtualPnL, paperDrift,
		accountEquity, drawdownPct, circuitBreakerOpen,
		retryQueueDepth, retryQueueDropped, heartbeatsTotal,
	)
}

// RecordSignal increments the signal counter for symbol/action.
func RecordSignal(symbol, action string) {
	signalsTotal.WithLabelValues(symbol, action).Inc()
}

// RecordAck increments the ack counter for symbol/status/reason.
func RecordAck(symbol, status, reason string) {
	acksTotal.WithLabelValues(symbol, status, reason).Inc()
}

// SetVirtualPnL records symbol's current floating virtual PnL.
func SetVirtualPnL(symbol string, pnl float64) {
	virtualPnL.WithLabelValues(symbol).Set(pnl)
}

// SetPaperDrift records symbol's real-vs-paper balance divergence.
func SetPaperDrift(symbol string, drift float64) {
	paperDrift.WithLabelValues(symbol).Set(drift)
}

// SetAccountEquity records the broker-reported account equity.
func SetAccountEquity(equity float64) { accountEquity.Set(equity) }

// SetDrawdownPct records the current drawdown percentage.
func SetDrawdownPct(pct float64) { drawdownPct.Set(pct) }

// SetCircuitBreakerOpen records whether the circuit breaker is open.
func SetCircuitBreakerOpen(open bool) {
	if open {
		circuitBreakerOpen.Set(1)
	} else {
		circuitBreakerOpen.Set(0)
	}
}

// RecordHeartbeat increments the heartbeat counter for symbol.
func RecordHeartbeat(symbol string) {
	heartbeatsTotal.WithLabelValues(symbol).Inc()
}
