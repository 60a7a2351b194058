package market

import "sync"

// History accumulates per-tick consensus prices and volumes by symbol,
// bounded to the most recent MaxCloses samples. Indicators and risk checks
// read from here rather than from any single source's candle series.
type History struct {
	mu      sync.RWMutex
	max     int
	prices  map[string][]float64
	volumes map[string][]float64
}

// NewHistory creates a bounded history store. max <= 0 uses MaxCloses.
func NewHistory(max int) *History {
	if max <= 0 {
		max = MaxCloses
	}
	return &History{
		max:     max,
		prices:  make(map[string][]float64),
		volumes: make(map[string][]float64),
	}
}

// Append records one observation for a symbol
func (h *History) Append(symbol string, price, volume float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prices[symbol] = appendBounded(h.prices[symbol], price, h.max)
	h.volumes[symbol] = appendBounded(h.volumes[symbol], volume, h.max)
}

// Seed replaces a symbol's series with an external candle history,
// trimmed to the bound. Used once at startup so indicators have context
// before enough ticks accumulate.
func (h *History) Seed(symbol string, prices, volumes []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prices[symbol] = boundCopy(prices, h.max)
	h.volumes[symbol] = boundCopy(volumes, h.max)
}

// Prices returns a copy of the price series, oldest first
func (h *History) Prices(symbol string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return boundCopy(h.prices[symbol], h.max)
}

// Volumes returns a copy of the volume series, oldest first
func (h *History) Volumes(symbol string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return boundCopy(h.volumes[symbol], h.max)
}

// Len returns the number of stored price samples for a symbol
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.prices[symbol])
}

func appendBounded(series []float64, v float64, max int) []float64 {
	series = append(series, v)
	if len(series) > max {
		series = series[len(series)-max:]
	}
	return series
}

func boundCopy(series []float64, max int) []float64 {
	if len(series) > max {
		series = series[len(series)-max:]
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out
}
