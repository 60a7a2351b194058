package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func risingSeries(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func flatSeries(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{name: "monotonic rise maxes out", prices: risingSeries(30, 100, 1), want: 100},
		{name: "too short is neutral", prices: []float64{100, 101, 102}, want: 50},
		{name: "flat is max", prices: flatSeries(30, 100), want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RSI(tt.prices, RSIPeriod), 1e-9)
		})
	}
}

func TestRSIBalancedMoves(t *testing.T) {
	// Equal total gains and losses over the window put RSI at 50
	prices := []float64{100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100}
	rsi := RSI(prices, RSIPeriod)
	assert.Greater(t, rsi, 40.0)
	assert.Less(t, rsi, 60.0)
}

func TestEMA(t *testing.T) {
	assert.InDelta(t, 100.0, EMA([]float64{100}, 10), 1e-9)
	assert.InDelta(t, 100.0, EMA(flatSeries(50, 100), 10), 1e-9)
	assert.Equal(t, 0.0, EMA(nil, 10))

	// Seeded with the first element, alpha = 2/(p+1)
	got := EMA([]float64{100, 110}, 9)
	assert.InDelta(t, 100+0.2*(110-100), got, 1e-9)
}

func TestEMASeriesTracksUptrend(t *testing.T) {
	prices := risingSeries(60, 100, 1)
	series := EMASeries(prices, 12)
	assert.Len(t, series, 60)
	// EMA lags a rising series but keeps increasing
	assert.Less(t, series[59], prices[59])
	assert.Greater(t, series[59], series[30])
}

func TestEMA200ClampsToHistory(t *testing.T) {
	assert.InDelta(t, 100.0, EMA200(flatSeries(300, 100)), 1e-9)
	assert.InDelta(t, 100.0, EMA200([]float64{100}), 1e-9)
	assert.Equal(t, 0.0, EMA200(nil))

	// Short histories fall back to the last price
	short := risingSeries(49, 100, 1)
	assert.Equal(t, short[len(short)-1], EMA200(short))
}

func TestMACD(t *testing.T) {
	t.Run("short history is neutral", func(t *testing.T) {
		assert.Equal(t, MACDResult{}, MACD(risingSeries(8, 100, 1)))
	})

	t.Run("uptrend has positive line", func(t *testing.T) {
		res := MACD(risingSeries(60, 100, 1))
		assert.Greater(t, res.Line, 0.0)
		assert.InDelta(t, res.Line-res.Signal, res.Histogram, 1e-9)
	})

	t.Run("flat series is zero", func(t *testing.T) {
		res := MACD(flatSeries(60, 100))
		assert.InDelta(t, 0.0, res.Line, 1e-9)
		assert.InDelta(t, 0.0, res.Signal, 1e-9)
	})

	t.Run("scaled periods on short history", func(t *testing.T) {
		res := MACD(risingSeries(15, 100, 1))
		assert.Greater(t, res.Line, 0.0)
	})
}

func TestBollinger(t *testing.T) {
	t.Run("flat series collapses bands", func(t *testing.T) {
		bands := Bollinger(flatSeries(40, 100), BollingerPeriod, BollingerK)
		assert.InDelta(t, 100.0, bands.Upper, 1e-9)
		assert.InDelta(t, 100.0, bands.Middle, 1e-9)
		assert.InDelta(t, 100.0, bands.Lower, 1e-9)
	})

	t.Run("short history defaults around last price", func(t *testing.T) {
		bands := Bollinger([]float64{100, 102}, BollingerPeriod, BollingerK)
		assert.InDelta(t, 102*1.02, bands.Upper, 1e-9)
		assert.InDelta(t, 102.0, bands.Middle, 1e-9)
		assert.InDelta(t, 102*0.98, bands.Lower, 1e-9)
	})

	t.Run("bands bracket the mean", func(t *testing.T) {
		bands := Bollinger(risingSeries(40, 100, 1), BollingerPeriod, BollingerK)
		assert.Greater(t, bands.Upper, bands.Middle)
		assert.Less(t, bands.Lower, bands.Middle)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, BollingerBands{}, Bollinger(nil, BollingerPeriod, BollingerK))
	})
}

func TestATR(t *testing.T) {
	assert.Equal(t, 0.0, ATR([]float64{100, 101}, ATRPeriod))
	assert.InDelta(t, 0.0, ATR(flatSeries(30, 100), ATRPeriod), 1e-9)
	assert.InDelta(t, 1.0, ATR(risingSeries(30, 100, 1), ATRPeriod), 1e-9)
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 0.0, Volatility([]float64{100, 101}, VolatilityWindow))
	assert.InDelta(t, 0.0, Volatility(flatSeries(30, 100), VolatilityWindow), 1e-9)
	assert.Greater(t, Volatility([]float64{100, 105, 95, 108, 92, 110, 90, 112, 88, 115}, VolatilityWindow), 1.0)
}

func TestMomentum(t *testing.T) {
	assert.Equal(t, 0.0, Momentum(risingSeries(9, 100, 1), MomentumLookback))

	prices := risingSeries(10, 100, 1) // 100..109, base = prices[0]
	assert.InDelta(t, 9.0, Momentum(prices, MomentumLookback), 1e-9)

	prices = risingSeries(20, 100, 1) // base = prices[10] = 110
	assert.InDelta(t, (119.0-110.0)/110.0*100, Momentum(prices, MomentumLookback), 1e-9)
}

func TestTrendFilter(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		ema200 float64
		want   Trend
	}{
		{name: "above band", price: 103, ema200: 100, want: TrendBullish},
		{name: "below band", price: 97, ema200: 100, want: TrendBearish},
		{name: "inside band", price: 101, ema200: 100, want: TrendNeutral},
		{name: "at upper edge", price: 102, ema200: 100, want: TrendNeutral},
		{name: "at lower edge", price: 98, ema200: 100, want: TrendNeutral},
		{name: "no baseline", price: 100, ema200: 0, want: TrendNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrendFilter(tt.price, tt.ema200))
		})
	}
}

func TestComputeShortHistoryDefaults(t *testing.T) {
	set := Compute([]float64{100, 101}, 101)

	assert.InDelta(t, 50.0, set.RSI, 1e-9)
	assert.Equal(t, MACDResult{}, set.MACD)
	assert.InDelta(t, 101.0, set.Bollinger.Middle, 1e-9)
	assert.Equal(t, 0.0, set.ATR)
	assert.Equal(t, 0.0, set.VolatilityPct)
	assert.Equal(t, 0.0, set.MomentumPct)
}

func TestComputeFullHistory(t *testing.T) {
	prices := risingSeries(100, 100, 0.5)
	set := Compute(prices, prices[len(prices)-1])

	assert.InDelta(t, 100.0, set.RSI, 1e-9)
	assert.Greater(t, set.MACD.Line, 0.0)
	assert.Greater(t, set.EMA200, 0.0)
	assert.InDelta(t, 0.5, set.ATR, 1e-9)
	assert.Equal(t, TrendBullish, set.Trend)
}
