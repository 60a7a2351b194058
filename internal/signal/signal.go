package signal

import (
	"fmt"

	"github.com/davidrv/cryptoguard/internal/indicators"
)

// Action is a trading decision
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// MinSamples is the history length below which the generator refuses to
// vote and emits a neutral HOLD.
const MinSamples = 15

// Action thresholds on the mean vote
const (
	buyThreshold  = 0.3
	sellThreshold = -0.3
)

// Signal is the generator's output for one symbol at one tick
type Signal struct {
	Action     Action                  `json:"action"`
	Confidence float64                 `json:"confidence"`
	Reasons    []string                `json:"reasons"`
	Indicators indicators.IndicatorSet `json:"indicators"`
	Price      float64                 `json:"price"`
}

// Generate produces a trend-filtered vote over the indicator set.
// Long votes only count in a BULLISH regime and short votes only in a
// BEARISH one; momentum votes are regime-independent.
func Generate(set indicators.IndicatorSet, price float64, samples int) Signal {
	if samples < MinSamples {
		return Signal{
			Action:     ActionHold,
			Confidence: 0,
			Reasons:    []string{fmt.Sprintf("Gathering data (%d/%d samples)", samples, MinSamples)},
			Indicators: set,
			Price:      price,
		}
	}

	var votes []float64
	var reasons []string

	bullish := set.Trend == indicators.TrendBullish
	bearish := set.Trend == indicators.TrendBearish

	// RSI extremes past the hard bands cast a second unit vote, widening
	// the denominator with them so the mean stays in [-1, 1].
	switch {
	case set.RSI < 30 && bullish:
		votes = append(votes, 1)
		if set.RSI < 25 {
			votes = append(votes, 1)
		}
		reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f) in bullish trend", set.RSI))
	case set.RSI > 70 && bearish:
		votes = append(votes, -1)
		if set.RSI > 75 {
			votes = append(votes, -1)
		}
		reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f) in bearish trend", set.RSI))
	default:
		votes = append(votes, 0)
	}

	// MACD alignment with the regime
	switch {
	case set.MACD.Histogram > 0 && set.MACD.Line > set.MACD.Signal && bullish:
		votes = append(votes, 1)
		reasons = append(reasons, "MACD bullish crossover")
	case set.MACD.Histogram < 0 && set.MACD.Line < set.MACD.Signal && bearish:
		votes = append(votes, -1)
		reasons = append(reasons, "MACD bearish crossover")
	default:
		votes = append(votes, 0)
	}

	// Bollinger band touches
	switch {
	case price < set.Bollinger.Lower && bullish:
		votes = append(votes, 1)
		reasons = append(reasons, "Price below lower Bollinger band")
	case price > set.Bollinger.Upper && bearish:
		votes = append(votes, -1)
		reasons = append(reasons, "Price above upper Bollinger band")
	default:
		votes = append(votes, 0)
	}

	// Momentum is regime-independent
	switch {
	case set.MomentumPct > 2:
		votes = append(votes, 1)
		reasons = append(reasons, fmt.Sprintf("Strong positive momentum (%+.1f%%)", set.MomentumPct))
	case set.MomentumPct < -2:
		votes = append(votes, -1)
		reasons = append(reasons, fmt.Sprintf("Strong negative momentum (%+.1f%%)", set.MomentumPct))
	default:
		votes = append(votes, 0)
	}

	mean := 0.0
	for _, v := range votes {
		mean += v
	}
	mean /= float64(len(votes))

	action := ActionHold
	switch {
	case mean > buyThreshold:
		action = ActionBuy
	case mean < sellThreshold:
		action = ActionSell
	}

	confidence := mean * 100
	if confidence < 0 {
		confidence = -confidence
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "No indicator consensus")
	}

	return Signal{
		Action:     action,
		Confidence: confidence,
		Reasons:    reasons,
		Indicators: set,
		Price:      price,
	}
}
