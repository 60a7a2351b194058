package market

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// seedPrices provides starting points for the simulated fallback when no
// real price has ever been observed for a symbol.
var seedPrices = map[string]float64{
	"BTC-USD":  88000,
	"ETH-USD":  3300,
	"SOL-USD":  210,
	"USDC-USD": 1,
	"DOGE-USD": 0.32,
	"XRP-USD":  2.2,
	"ADA-USD":  0.95,
	"LINK-USD": 22,
}

const simulatedDefaultPrice = 100.0

// Resolver fans out to all configured sources and produces a single
// consensus quote per symbol. It never fails: when every source is down
// it degrades to a simulated random walk off the last known price.
type Resolver struct {
	sources []Source
	budget  time.Duration
	logger  zerolog.Logger

	mu         sync.Mutex
	lastPrices map[string]float64
	rng        *rand.Rand
}

// NewResolver creates a consensus resolver over the given sources
func NewResolver(sources []Source, budget time.Duration, logger zerolog.Logger) *Resolver {
	if budget <= 0 {
		budget = 10 * time.Second
	}
	return &Resolver{
		sources:    sources,
		budget:     budget,
		logger:     logger,
		lastPrices: make(map[string]float64),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve fetches from all sources concurrently and merges the results.
// The returned quote is never nil.
func (r *Resolver) Resolve(ctx context.Context, symbol string) *Quote {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	var mu sync.Mutex
	var quotes []*Quote // arrival order

	g, ctx := errgroup.WithContext(ctx)
	for _, src := range r.sources {
		src := src
		g.Go(func() error {
			quote, err := src.Fetch(ctx, symbol)
			if err != nil {
				// A dead source degrades consensus quality but never
				// fails the resolve.
				return nil
			}
			mu.Lock()
			quotes = append(quotes, quote)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(quotes) == 0 {
		r.logger.Warn().Str("symbol", symbol).Msg("All sources failed, using simulated quote")
		return r.simulated(symbol)
	}

	merged := mergeQuotes(symbol, quotes)

	r.mu.Lock()
	r.lastPrices[symbol] = merged.Price
	r.mu.Unlock()

	r.logger.Debug().
		Str("symbol", symbol).
		Float64("price", merged.Price).
		Int("sources", len(quotes)).
		Str("source", merged.Source).
		Msg("Quote resolved")
	return merged
}

// mergeQuotes combines quotes into one consensus view. Price, volume,
// and 24h change take the per-field median; the 24h range and the candle
// series come from the quote whose price sits closest to the median,
// first arrival winning ties.
func mergeQuotes(symbol string, quotes []*Quote) *Quote {
	if len(quotes) == 1 {
		q := *quotes[0]
		return &q
	}

	prices := make([]float64, len(quotes))
	volumes := make([]float64, len(quotes))
	changes := make([]float64, len(quotes))
	for i, q := range quotes {
		prices[i] = q.Price
		volumes[i] = q.Volume24h
		changes[i] = q.Change24hPct
	}

	medianPrice := median(prices)

	carrier := quotes[0]
	best := math.Abs(carrier.Price - medianPrice)
	for _, q := range quotes[1:] {
		if d := math.Abs(q.Price - medianPrice); d < best {
			carrier = q
			best = d
		}
	}

	return &Quote{
		Symbol:       symbol,
		Price:        medianPrice,
		Volume24h:    median(volumes),
		Change24hPct: median(changes),
		High24h:      carrier.High24h,
		Low24h:       carrier.Low24h,
		Closes:       carrier.Closes,
		Volumes:      carrier.Volumes,
		Timestamp:    time.Now().UTC(),
		Source:       SourceConsensus,
	}
}

// simulated produces a random walk quote within ±2% of the last known price
func (r *Resolver) simulated(symbol string) *Quote {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, ok := r.lastPrices[symbol]
	if !ok {
		base, ok = seedPrices[symbol]
		if !ok {
			base = simulatedDefaultPrice
		}
	}

	price := base * (1 + (r.rng.Float64()*2-1)*0.02)
	r.lastPrices[symbol] = price

	return &Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
		Source:    SourceSimulated,
	}
}

// median returns the middle value of an unsorted slice.
// Even lengths average the two middle values.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
