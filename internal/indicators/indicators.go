package indicators

import "gonum.org/v1/gonum/stat"

// Trend classifies price relative to the long EMA baseline
type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

// Default periods
const (
	RSIPeriod        = 14
	BollingerPeriod  = 20
	BollingerK       = 2.0
	ATRPeriod        = 14
	VolatilityWindow = 14
	MomentumLookback = 10
)

// IndicatorSet is the full derived view over one symbol's price history,
// recomputed from scratch each tick.
type IndicatorSet struct {
	RSI           float64        `json:"rsi"`
	MACD          MACDResult     `json:"macd"`
	Bollinger     BollingerBands `json:"bollinger"`
	EMA200        float64        `json:"ema_200"`
	ATR           float64        `json:"atr"`
	VolatilityPct float64        `json:"volatility_pct"`
	MomentumPct   float64        `json:"momentum_10_pct"`
	Trend         Trend          `json:"trend"`
}

// Compute derives the indicator set for a price history, oldest first.
// price is the current consensus price used for the trend filter.
func Compute(prices []float64, price float64) IndicatorSet {
	set := IndicatorSet{
		RSI:           RSI(prices, RSIPeriod),
		MACD:          MACD(prices),
		Bollinger:     Bollinger(prices, BollingerPeriod, BollingerK),
		EMA200:        EMA200(prices),
		ATR:           ATR(prices, ATRPeriod),
		VolatilityPct: Volatility(prices, VolatilityWindow),
		MomentumPct:   Momentum(prices, MomentumLookback),
	}
	set.Trend = TrendFilter(price, set.EMA200)
	return set
}

// Volatility is the population stdev of simple returns over the last
// window deltas, as a percentage. Fewer than minWindow deltas return 0.
func Volatility(prices []float64, window int) float64 {
	deltas := len(prices) - 1
	if deltas < minWindow {
		return 0
	}
	if window > deltas {
		window = deltas
	}
	if window < minWindow {
		window = minWindow
	}

	returns := make([]float64, 0, window)
	for i := len(prices) - window; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return 0
	}
	return stat.PopStdDev(returns, nil) * 100
}

// Momentum is the percent change over the last lookback samples.
// Histories shorter than the lookback return 0.
func Momentum(prices []float64, lookback int) float64 {
	if len(prices) < lookback {
		return 0
	}
	base := prices[len(prices)-lookback]
	if base == 0 {
		return 0
	}
	return (prices[len(prices)-1] - base) / base * 100
}

// TrendFilter classifies the regime with a 2% band around the long EMA
func TrendFilter(price, ema200 float64) Trend {
	if ema200 <= 0 {
		return TrendNeutral
	}
	switch {
	case price > ema200*1.02:
		return TrendBullish
	case price < ema200*0.98:
		return TrendBearish
	default:
		return TrendNeutral
	}
}
