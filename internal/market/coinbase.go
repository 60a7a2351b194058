package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// CoinbaseSource fetches quotes from the Coinbase Exchange public API
type CoinbaseSource struct {
	baseURL string
	client  sourceClient
	logger  zerolog.Logger
}

// NewCoinbaseSource creates a Coinbase price source
func NewCoinbaseSource(baseURL string, timeout time.Duration, requestsPerMinute int, breaker *gobreaker.CircuitBreaker, logger zerolog.Logger) *CoinbaseSource {
	return &CoinbaseSource{
		baseURL: baseURL,
		client:  newSourceClient(timeout, requestsPerMinute, breaker),
		logger:  logger,
	}
}

// Name returns the source tag
func (s *CoinbaseSource) Name() string {
	return SourceCoinbase
}

// coinbaseTicker is the /products/{id}/ticker response.
// Numeric fields arrive as strings.
type coinbaseTicker struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// coinbaseStats is the /products/{id}/stats response
type coinbaseStats struct {
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Volume string `json:"volume"`
	Last   string `json:"last"`
}

// Fetch retrieves the ticker, 24h stats, and hourly candle history for a symbol
func (s *CoinbaseSource) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	quote, err := s.client.execute(func() (*Quote, error) {
		return s.fetch(ctx, symbol)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Fetch failed")
		return nil, unavailable(SourceCoinbase, err)
	}
	return quote, nil
}

func (s *CoinbaseSource) fetch(ctx context.Context, symbol string) (*Quote, error) {
	var ticker coinbaseTicker
	if err := s.client.getJSON(ctx, fmt.Sprintf("%s/products/%s/ticker", s.baseURL, symbol), &ticker); err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("ticker price %q: %w", ticker.Price, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("non-positive price %.6f", price)
	}

	var stats coinbaseStats
	if err := s.client.getJSON(ctx, fmt.Sprintf("%s/products/%s/stats", s.baseURL, symbol), &stats); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	open, err := strconv.ParseFloat(stats.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("stats open %q: %w", stats.Open, err)
	}
	high, err := strconv.ParseFloat(stats.High, 64)
	if err != nil {
		return nil, fmt.Errorf("stats high %q: %w", stats.High, err)
	}
	low, err := strconv.ParseFloat(stats.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("stats low %q: %w", stats.Low, err)
	}
	volume, err := strconv.ParseFloat(stats.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("stats volume %q: %w", stats.Volume, err)
	}

	change := 0.0
	if open > 0 {
		change = (price - open) / open * 100
	}

	// Candles come newest first as [time, low, high, open, close, volume]
	var candles [][]float64
	if err := s.client.getJSON(ctx, fmt.Sprintf("%s/products/%s/candles?granularity=3600", s.baseURL, symbol), &candles); err != nil {
		return nil, fmt.Errorf("candles: %w", err)
	}

	closes := make([]float64, 0, len(candles))
	volumes := make([]float64, 0, len(candles))
	for i := len(candles) - 1; i >= 0; i-- {
		row := candles[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed candle row of length %d", len(row))
		}
		closes = append(closes, row[4])
		volumes = append(volumes, row[5])
	}

	return &Quote{
		Symbol:       symbol,
		Price:        price,
		Volume24h:    volume,
		Change24hPct: change,
		High24h:      high,
		Low24h:       low,
		Closes:       capSeries(closes),
		Volumes:      capSeries(volumes),
		Timestamp:    time.Now().UTC(),
		Source:       SourceCoinbase,
	}, nil
}
