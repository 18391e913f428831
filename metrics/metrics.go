// Package metrics holds the Prometheus collectors the engine updates.
//
//   - hurst_signals_total{strategy,signal}     detector verdicts
//   - hurst_orders_total{mode,direction}       contracts bought
//   - hurst_order_errors_total{reason}         rejected or failed buys
//   - hurst_settlements_total{result}          settled contracts (win|loss)
//   - hurst_polls_total{outcome}               watchdog polls
//   - hurst_balance                            sizer balance
//   - hurst_session_profit                     profit since session start
//   - hurst_next_stake                         stake the next order would use
//   - hurst_exponent                           last estimated Hurst exponent
//
// They are registered in init() and served by the status server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hurst_signals_total",
			Help: "Detector verdicts",
		},
		[]string{"strategy", "signal"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hurst_orders_total",
			Help: "Contracts bought",
		},
		[]string{"mode", "direction"},
	)

	orderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hurst_order_errors_total",
			Help: "Orders that were skipped or rejected",
		},
		[]string{"reason"}, // broker|balance|position_open
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hurst_settlements_total",
			Help: "Settled contracts by result",
		},
		[]string{"result"},
	)

	polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hurst_polls_total",
			Help: "Watchdog polls by outcome (open|settled|error|auth_exhausted|stale)",
		},
		[]string{"outcome"},
	)

	balance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hurst_balance",
		Help: "Current balance tracked by the stake sizer",
	})

	sessionProfit = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hurst_session_profit",
		Help: "Profit since the session started",
	})

	nextStake = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hurst_next_stake",
		Help: "Stake the next order would use",
	})

	hurstExponent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hurst_exponent",
		Help: "Last estimated Hurst exponent",
	})
)

func init() {
	prometheus.MustRegister(signals, orders, orderErrors, settlements, polls)
	prometheus.MustRegister(balance, sessionProfit, nextStake, hurstExponent)
}

func IncSignal(strategy, signal string) { signals.WithLabelValues(strategy, signal).Inc() }
func IncOrder(mode, direction string)   { orders.WithLabelValues(mode, direction).Inc() }
func IncOrderError(reason string)       { orderErrors.WithLabelValues(reason).Inc() }
func IncPoll(outcome string)            { polls.WithLabelValues(outcome).Inc() }
func SetHurst(h float64)                { hurstExponent.Set(h) }

// ObserveSettlement counts the result and refreshes the money gauges.
func ObserveSettlement(isWin bool, bal, profit, stake float64) {
	result := "loss"
	if isWin {
		result = "win"
	}
	settlements.WithLabelValues(result).Inc()
	SetMoney(bal, profit, stake)
}

// SetMoney refreshes the balance, session profit and next stake gauges.
func SetMoney(bal, profit, stake float64) {
	balance.Set(bal)
	sessionProfit.Set(profit)
	nextStake.Set(stake)
}
