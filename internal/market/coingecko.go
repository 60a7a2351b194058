package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// CoinGeckoSource fetches quotes from the CoinGecko public API
type CoinGeckoSource struct {
	baseURL string
	client  sourceClient
	logger  zerolog.Logger
}

// NewCoinGeckoSource creates a CoinGecko price source
func NewCoinGeckoSource(baseURL string, timeout time.Duration, requestsPerMinute int, breaker *gobreaker.CircuitBreaker, logger zerolog.Logger) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseURL: baseURL,
		client:  newSourceClient(timeout, requestsPerMinute, breaker),
		logger:  logger,
	}
}

// Name returns the source tag
func (s *CoinGeckoSource) Name() string {
	return SourceCoinGecko
}

type coingeckoSimplePrice struct {
	USD          float64 `json:"usd"`
	USD24hVol    float64 `json:"usd_24h_vol"`
	USD24hChange float64 `json:"usd_24h_change"`
}

type coingeckoMarketChart struct {
	Prices       [][]float64 `json:"prices"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

// Fetch retrieves the spot price and hourly chart history for a symbol
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	quote, err := s.client.execute(func() (*Quote, error) {
		return s.fetch(ctx, symbol)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Fetch failed")
		return nil, unavailable(SourceCoinGecko, err)
	}
	return quote, nil
}

func (s *CoinGeckoSource) fetch(ctx context.Context, symbol string) (*Quote, error) {
	id, err := CoinGeckoID(symbol)
	if err != nil {
		return nil, err
	}

	var prices map[string]coingeckoSimplePrice
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_vol=true&include_24hr_change=true", s.baseURL, id)
	if err := s.client.getJSON(ctx, url, &prices); err != nil {
		return nil, fmt.Errorf("simple price: %w", err)
	}
	entry, ok := prices[id]
	if !ok {
		return nil, fmt.Errorf("no price entry for id %s", id)
	}
	if entry.USD <= 0 {
		return nil, fmt.Errorf("non-positive price %.6f", entry.USD)
	}

	var chart coingeckoMarketChart
	url = fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=1&interval=hourly", s.baseURL, id)
	if err := s.client.getJSON(ctx, url, &chart); err != nil {
		return nil, fmt.Errorf("market chart: %w", err)
	}

	closes := make([]float64, 0, len(chart.Prices))
	high := entry.USD
	low := entry.USD
	for _, point := range chart.Prices {
		if len(point) < 2 {
			return nil, fmt.Errorf("malformed price point of length %d", len(point))
		}
		p := point[1]
		closes = append(closes, p)
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}

	volumes := make([]float64, 0, len(chart.TotalVolumes))
	for _, point := range chart.TotalVolumes {
		if len(point) < 2 {
			return nil, fmt.Errorf("malformed volume point of length %d", len(point))
		}
		volumes = append(volumes, point[1])
	}

	return &Quote{
		Symbol:       symbol,
		Price:        entry.USD,
		Volume24h:    entry.USD24hVol,
		Change24hPct: entry.USD24hChange,
		High24h:      high,
		Low24h:       low,
		Closes:       capSeries(closes),
		Volumes:      capSeries(volumes),
		Timestamp:    time.Now().UTC(),
		Source:       SourceCoinGecko,
	}, nil
}
