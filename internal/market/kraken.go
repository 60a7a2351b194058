package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// KrakenSource fetches quotes from the Kraken public API
type KrakenSource struct {
	baseURL string
	client  sourceClient
	logger  zerolog.Logger
}

// NewKrakenSource creates a Kraken price source
func NewKrakenSource(baseURL string, timeout time.Duration, requestsPerMinute int, breaker *gobreaker.CircuitBreaker, logger zerolog.Logger) *KrakenSource {
	return &KrakenSource{
		baseURL: baseURL,
		client:  newSourceClient(timeout, requestsPerMinute, breaker),
		logger:  logger,
	}
}

// Name returns the source tag
func (s *KrakenSource) Name() string {
	return SourceKraken
}

// krakenTickerInfo holds the per-pair arrays of the Ticker endpoint.
// c = last trade [price, lot], v = volume [today, 24h],
// h/l = high/low [today, 24h], o = today's open.
type krakenTickerInfo struct {
	C []string `json:"c"`
	V []string `json:"v"`
	H []string `json:"h"`
	L []string `json:"l"`
	O string   `json:"o"`
}

type krakenTickerResponse struct {
	Error  []string                    `json:"error"`
	Result map[string]krakenTickerInfo `json:"result"`
}

type krakenOHLCResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// Fetch retrieves the ticker and hourly OHLC history for a symbol
func (s *KrakenSource) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	quote, err := s.client.execute(func() (*Quote, error) {
		return s.fetch(ctx, symbol)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Fetch failed")
		return nil, unavailable(SourceKraken, err)
	}
	return quote, nil
}

func (s *KrakenSource) fetch(ctx context.Context, symbol string) (*Quote, error) {
	pair, err := KrakenPair(symbol)
	if err != nil {
		return nil, err
	}

	var ticker krakenTickerResponse
	if err := s.client.getJSON(ctx, fmt.Sprintf("%s/0/public/Ticker?pair=%s", s.baseURL, pair), &ticker); err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	if len(ticker.Error) > 0 {
		return nil, fmt.Errorf("ticker api error: %v", ticker.Error)
	}

	// Kraken keys the result by its own canonical pair name, which may differ
	// from the requested one. There is exactly one entry either way.
	var info krakenTickerInfo
	found := false
	for _, v := range ticker.Result {
		info = v
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("ticker result empty for pair %s", pair)
	}
	if len(info.C) < 1 || len(info.V) < 2 || len(info.H) < 2 || len(info.L) < 2 {
		return nil, fmt.Errorf("ticker result malformed for pair %s", pair)
	}

	price, err := strconv.ParseFloat(info.C[0], 64)
	if err != nil {
		return nil, fmt.Errorf("last price %q: %w", info.C[0], err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("non-positive price %.6f", price)
	}
	volume, err := strconv.ParseFloat(info.V[1], 64)
	if err != nil {
		return nil, fmt.Errorf("24h volume %q: %w", info.V[1], err)
	}
	high, err := strconv.ParseFloat(info.H[1], 64)
	if err != nil {
		return nil, fmt.Errorf("24h high %q: %w", info.H[1], err)
	}
	low, err := strconv.ParseFloat(info.L[1], 64)
	if err != nil {
		return nil, fmt.Errorf("24h low %q: %w", info.L[1], err)
	}
	open, err := strconv.ParseFloat(info.O, 64)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", info.O, err)
	}

	change := 0.0
	if open > 0 {
		change = (price - open) / open * 100
	}

	closes, volumes, err := s.fetchOHLC(ctx, pair)
	if err != nil {
		return nil, err
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
		Source:       SourceKraken,
	}, nil
}

// fetchOHLC retrieves the hourly candle series, oldest first.
// Rows are heterogeneous arrays: [time, "open", "high", "low", "close", "vwap", "volume", count].
func (s *KrakenSource) fetchOHLC(ctx context.Context, pair string) ([]float64, []float64, error) {
	var ohlc krakenOHLCResponse
	if err := s.client.getJSON(ctx, fmt.Sprintf("%s/0/public/OHLC?pair=%s&interval=60", s.baseURL, pair), &ohlc); err != nil {
		return nil, nil, fmt.Errorf("ohlc: %w", err)
	}
	if len(ohlc.Error) > 0 {
		return nil, nil, fmt.Errorf("ohlc api error: %v", ohlc.Error)
	}

	var rows []json.RawMessage
	for key, raw := range ohlc.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, nil, fmt.Errorf("ohlc rows: %w", err)
		}
		break
	}

	closes := make([]float64, 0, len(rows))
	volumes := make([]float64, 0, len(rows))
	for _, raw := range rows {
		var row []interface{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, nil, fmt.Errorf("ohlc row: %w", err)
		}
		if len(row) < 7 {
			return nil, nil, fmt.Errorf("malformed ohlc row of length %d", len(row))
		}
		closeVal, err := krakenFloat(row[4])
		if err != nil {
			return nil, nil, fmt.Errorf("ohlc close: %w", err)
		}
		volVal, err := krakenFloat(row[6])
		if err != nil {
			return nil, nil, fmt.Errorf("ohlc volume: %w", err)
		}
		closes = append(closes, closeVal)
		volumes = append(volumes, volVal)
	}
	return closes, volumes, nil
}

// krakenFloat parses a value that may arrive as a JSON string or number
func krakenFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
