package rebalance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/davidrv/cryptoguard/internal/config"
	"github.com/davidrv/cryptoguard/internal/market"
)

// History and correlation windows
const (
	priceHistoryCap   = 100
	correlationWindow = 30
	eventHistoryCap   = 100
)

// stableSymbol is the reserve asset pinned to $1. It participates in
// weights but is excluded from correlation averages.
const stableSymbol = "USDC-USD"

// Actions recorded on rebalance events
const (
	ActionRebalanced   = "REBALANCED"
	ActionWithinLimits = "WITHIN_THRESHOLD"
)

// Event records one rebalance decision
type Event struct {
	ID           string             `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	Action       string             `json:"action"`
	TotalValue   float64            `json:"total_value"`
	Deviations   map[string]float64 `json:"deviations"`
	Correlations map[string]float64 `json:"correlations,omitempty"`
}

// Metrics summarises portfolio diversification health
type Metrics struct {
	AvgAbsCorrelation  float64 `json:"avg_abs_correlation"`
	TotalDeviation     float64 `json:"total_abs_deviation"`
	DaysSinceRebalance float64 `json:"days_since_rebalance"`
}

// Manager maintains target-weight holdings across a fixed asset set and
// rebalances on a weekly cadence when weights drift past the threshold.
type Manager struct {
	cfg    config.RebalanceConfig
	quotes market.QuoteProvider
	logger zerolog.Logger
	now    func() time.Time

	holdings      map[string]float64 // symbol -> quantity
	latestPrices  map[string]float64
	priceHistory  map[string][]float64
	totalValue    float64
	lastRebalance time.Time
	events        []Event
	initialised   bool
	capital       float64
}

// NewManager creates a rebalancer seeded with the starting capital
func NewManager(cfg config.RebalanceConfig, capital float64, quotes market.QuoteProvider, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		quotes:       quotes,
		logger:       logger,
		now:          time.Now,
		holdings:     make(map[string]float64),
		latestPrices: make(map[string]float64),
		priceHistory: make(map[string][]float64),
		capital:      capital,
	}
}

// SetClock overrides the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Holdings returns a copy of the per-symbol quantities
func (m *Manager) Holdings() map[string]float64 {
	out := make(map[string]float64, len(m.holdings))
	for sym, qty := range m.holdings {
		out[sym] = qty
	}
	return out
}

// TotalValue returns the last computed portfolio value
func (m *Manager) TotalValue() float64 { return m.totalValue }

// Events returns the recorded rebalance decisions
func (m *Manager) Events() []Event {
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// UpdateValue refreshes consensus prices for every target asset, updates
// the bounded per-asset histories, and recomputes the total value and
// weights. The first call allocates the starting capital at target
// weights.
func (m *Manager) UpdateValue(ctx context.Context) (map[string]float64, error) {
	for symbol := range m.cfg.Targets {
		price := m.price(ctx, symbol)
		if price <= 0 {
			return nil, fmt.Errorf("no usable price for %s", symbol)
		}
		m.latestPrices[symbol] = price
		m.priceHistory[symbol] = appendBounded(m.priceHistory[symbol], price, priceHistoryCap)
	}

	if !m.initialised {
		for symbol, weight := range m.cfg.Targets {
			m.holdings[symbol] = m.capital * weight / m.latestPrices[symbol]
		}
		m.lastRebalance = m.now()
		m.initialised = true
	}

	total := 0.0
	for symbol, qty := range m.holdings {
		total += qty * m.latestPrices[symbol]
	}
	m.totalValue = total

	weights := make(map[string]float64, len(m.holdings))
	if total > 0 {
		for symbol, qty := range m.holdings {
			weights[symbol] = qty * m.latestPrices[symbol] / total
		}
	}
	return weights, nil
}

// ShouldRebalance reports whether the cadence has elapsed
func (m *Manager) ShouldRebalance() bool {
	if !m.initialised {
		return false
	}
	return m.now().Sub(m.lastRebalance) >= m.cfg.Interval()
}

// Rebalance restores target weights if any asset drifted past the
// deviation threshold; otherwise it records a within-threshold event.
func (m *Manager) Rebalance(ctx context.Context) (*Event, error) {
	weights, err := m.UpdateValue(ctx)
	if err != nil {
		return nil, err
	}

	deviations := make(map[string]float64, len(m.cfg.Targets))
	needed := false
	for symbol, target := range m.cfg.Targets {
		dev := weights[symbol] - target
		deviations[symbol] = dev
		if math.Abs(dev) >= m.cfg.DeviationThreshold {
			needed = true
		}
	}

	event := Event{
		ID:         uuid.New().String(),
		Timestamp:  m.now(),
		TotalValue: m.totalValue,
		Deviations: deviations,
	}

	if !needed {
		event.Action = ActionWithinLimits
		m.record(event)
		m.logger.Info().Float64("total_value", m.totalValue).Msg("Rebalance skipped, weights within threshold")
		return &m.events[len(m.events)-1], nil
	}

	for symbol, target := range m.cfg.Targets {
		m.holdings[symbol] = m.totalValue * target / m.latestPrices[symbol]
	}
	m.lastRebalance = m.now()

	event.Action = ActionRebalanced
	event.Correlations = m.pairwiseCorrelations()
	m.record(event)

	m.logger.Info().
		Float64("total_value", m.totalValue).
		Interface("deviations", deviations).
		Msg("Portfolio rebalanced to target weights")
	return &m.events[len(m.events)-1], nil
}

// Correlation computes the Pearson correlation of simple returns between
// two assets over the last aligned observations. Degenerate series
// return 0.
func (m *Manager) Correlation(a, b string) float64 {
	ra := returns(m.priceHistory[a], correlationWindow)
	rb := returns(m.priceHistory[b], correlationWindow)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < 2 {
		return 0
	}
	ra = ra[len(ra)-n:]
	rb = rb[len(rb)-n:]

	corr := stat.Correlation(ra, rb, nil)
	if math.IsNaN(corr) {
		return 0
	}
	return corr
}

// DiversificationMetrics summarises correlation and drift across the
// non-stable assets.
func (m *Manager) DiversificationMetrics() Metrics {
	symbols := m.volatileSymbols()

	sum, count := 0.0, 0
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			sum += math.Abs(m.Correlation(symbols[i], symbols[j]))
			count++
		}
	}
	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}

	totalDev := 0.0
	if m.totalValue > 0 {
		for symbol, target := range m.cfg.Targets {
			weight := m.holdings[symbol] * m.latestPrices[symbol] / m.totalValue
			totalDev += math.Abs(weight - target)
		}
	}

	days := 0.0
	if m.initialised {
		days = m.now().Sub(m.lastRebalance).Hours() / 24
	}

	return Metrics{
		AvgAbsCorrelation:  avg,
		TotalDeviation:     totalDev,
		DaysSinceRebalance: days,
	}
}

// price resolves a consensus price, pinning the stable reserve to $1
func (m *Manager) price(ctx context.Context, symbol string) float64 {
	if symbol == stableSymbol {
		return 1.0
	}
	quote := m.quotes.Resolve(ctx, symbol)
	if quote == nil {
		return 0
	}
	return quote.Price
}

// pairwiseCorrelations computes correlations between all volatile pairs
func (m *Manager) pairwiseCorrelations() map[string]float64 {
	symbols := m.volatileSymbols()
	out := make(map[string]float64)
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			key := fmt.Sprintf("%s/%s", symbols[i], symbols[j])
			out[key] = m.Correlation(symbols[i], symbols[j])
		}
	}
	return out
}

// volatileSymbols lists the target assets excluding the stable reserve,
// sorted for deterministic iteration.
func (m *Manager) volatileSymbols() []string {
	var symbols []string
	for symbol := range m.cfg.Targets {
		if symbol != stableSymbol {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

func (m *Manager) record(event Event) {
	m.events = append(m.events, event)
	if len(m.events) > eventHistoryCap {
		m.events = m.events[len(m.events)-eventHistoryCap:]
	}
}

func appendBounded(series []float64, v float64, max int) []float64 {
	series = append(series, v)
	if len(series) > max {
		series = series[len(series)-max:]
	}
	return series
}

// returns converts a price series into simple returns over the last
// window observations
func returns(prices []float64, window int) []float64 {
	if len(prices) < 2 {
		return nil
	}
	if len(prices) > window+1 {
		prices = prices[len(prices)-window-1:]
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}
