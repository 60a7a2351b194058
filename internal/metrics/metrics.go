package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// Fill reasons form a closed set already; risk levels are normalized
// here so arbitrary strings never become label values.
const (
	RiskLevelOK             = "ok"
	RiskLevelWarning        = "warning"
	RiskLevelCritical       = "critical"
	RiskLevelEmergency      = "emergency"
	RiskLevelBlackSwan      = "black_swan_freeze"
	RiskLevelCircuitBreaker = "circuit_breaker"
	RiskLevelOther          = "other"
)

// NormalizeRiskLevel maps a risk level to the bounded label set
func NormalizeRiskLevel(level string) string {
	switch strings.ToUpper(level) {
	case "OK":
		return RiskLevelOK
	case "WARNING":
		return RiskLevelWarning
	case "CRITICAL":
		return RiskLevelCritical
	case "EMERGENCY":
		return RiskLevelEmergency
	case "BLACK_SWAN_FREEZE":
		return RiskLevelBlackSwan
	case "CIRCUIT_BREAKER":
		return RiskLevelCircuitBreaker
	default:
		return RiskLevelOther
	}
}

// Trading performance metrics
var (
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptoguard_portfolio_value",
		Help: "Mark-to-market portfolio value in USD",
	})

	PortfolioPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptoguard_portfolio_pnl",
		Help: "Total profit and loss versus initial capital in USD",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptoguard_open_positions",
		Help: "Number of currently open positions",
	})

	TotalFeesPaid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptoguard_total_fees_paid",
		Help: "Cumulative trading fees in USD",
	})

	Fills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptoguard_fills_total",
		Help: "Executed fills by action and reason",
	}, []string{"action", "reason"})
)

// Control loop metrics
var (
	Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptoguard_ticks_total",
		Help: "Completed control-loop ticks",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptoguard_tick_duration_seconds",
		Help:    "Control-loop tick duration",
		Buckets: prometheus.DefBuckets,
	})

	RiskLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cryptoguard_risk_level",
		Help: "Risk state machine level (1 for the active level, 0 otherwise)",
	}, []string{"level"})

	RiskEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptoguard_risk_events_total",
		Help: "Risk events by trigger",
	}, []string{"trigger"})
)

// Market data metrics
var (
	QuotePrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cryptoguard_quote_price",
		Help: "Latest consensus price per symbol",
	}, []string{"symbol"})

	SimulatedQuotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptoguard_simulated_quotes_total",
		Help: "Quotes served by the simulated fallback per symbol",
	}, []string{"symbol"})
)

// allRiskLevels lists the bounded label values so the active-level gauge
// can be kept one-hot.
var allRiskLevels = []string{
	RiskLevelOK,
	RiskLevelWarning,
	RiskLevelCritical,
	RiskLevelEmergency,
	RiskLevelBlackSwan,
	RiskLevelCircuitBreaker,
}

// SetRiskLevel marks the active risk level on the one-hot gauge
func SetRiskLevel(level string) {
	active := NormalizeRiskLevel(level)
	for _, l := range allRiskLevels {
		v := 0.0
		if l == active {
			v = 1.0
		}
		RiskLevel.WithLabelValues(l).Set(v)
	}
}
