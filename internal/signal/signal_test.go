package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/davidrv/cryptoguard/internal/indicators"
)

func TestGenerateGatheringData(t *testing.T) {
	sig := Generate(indicators.IndicatorSet{}, 100, 10)

	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, 0.0, sig.Confidence)
	assert.Contains(t, sig.Reasons[0], "Gathering data")
}

func TestGenerateBullishConsensus(t *testing.T) {
	set := indicators.IndicatorSet{
		RSI:         24, // double-weight oversold
		MACD:        indicators.MACDResult{Line: 1.5, Signal: 1.0, Histogram: 0.5},
		Bollinger:   indicators.BollingerBands{Upper: 110, Middle: 105, Lower: 101},
		MomentumPct: 3.5,
		Trend:       indicators.TrendBullish,
	}
	sig := Generate(set, 100, 50)

	// Votes: +1+1 RSI (extreme), +1 MACD, +1 Bollinger, +1 momentum over
	// five votes → mean 1.0
	assert.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 100.0, sig.Confidence, 1e-9)
	assert.Len(t, sig.Reasons, 4)
}

func TestGenerateConfidenceNeverExceedsBound(t *testing.T) {
	tests := []struct {
		name string
		set  indicators.IndicatorSet
	}{
		{
			name: "extreme bullish consensus",
			set: indicators.IndicatorSet{
				RSI:         24,
				MACD:        indicators.MACDResult{Line: 1.5, Signal: 1.0, Histogram: 0.5},
				Bollinger:   indicators.BollingerBands{Upper: 110, Middle: 105, Lower: 101},
				MomentumPct: 3.5,
				Trend:       indicators.TrendBullish,
			},
		},
		{
			name: "extreme bearish consensus",
			set: indicators.IndicatorSet{
				RSI:         80,
				MACD:        indicators.MACDResult{Line: -1.5, Signal: -1.0, Histogram: -0.5},
				Bollinger:   indicators.BollingerBands{Upper: 99, Middle: 95, Lower: 90},
				MomentumPct: -4.0,
				Trend:       indicators.TrendBearish,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Generate(tt.set, 100, 50)
			assert.LessOrEqual(t, sig.Confidence, 100.0)
			assert.GreaterOrEqual(t, sig.Confidence, 0.0)
			assert.InDelta(t, 100.0, sig.Confidence, 1e-9)
		})
	}
}

func TestGenerateBearishConsensus(t *testing.T) {
	set := indicators.IndicatorSet{
		RSI:         72,
		MACD:        indicators.MACDResult{Line: -1.5, Signal: -1.0, Histogram: -0.5},
		Bollinger:   indicators.BollingerBands{Upper: 99, Middle: 95, Lower: 90},
		MomentumPct: -4.0,
		Trend:       indicators.TrendBearish,
	}
	sig := Generate(set, 100, 50)

	// Votes: -1 RSI, -1 MACD, -1 Bollinger, -1 momentum → mean -1
	assert.Equal(t, ActionSell, sig.Action)
	assert.InDelta(t, 100.0, sig.Confidence, 1e-9)
}

func TestGenerateTrendVetoesLongVotes(t *testing.T) {
	// Oversold RSI and a lower-band touch mean nothing in a bearish regime
	set := indicators.IndicatorSet{
		RSI:       20,
		MACD:      indicators.MACDResult{Line: 1.5, Signal: 1.0, Histogram: 0.5},
		Bollinger: indicators.BollingerBands{Upper: 110, Middle: 105, Lower: 101},
		Trend:     indicators.TrendBearish,
	}
	sig := Generate(set, 100, 50)

	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, 0.0, sig.Confidence)
}

func TestGenerateNeutralTrendBlocksEntries(t *testing.T) {
	set := indicators.IndicatorSet{
		RSI:       20,
		MACD:      indicators.MACDResult{Line: 1.5, Signal: 1.0, Histogram: 0.5},
		Bollinger: indicators.BollingerBands{Upper: 110, Middle: 105, Lower: 101},
		Trend:     indicators.TrendNeutral,
	}
	sig := Generate(set, 100, 50)

	assert.Equal(t, ActionHold, sig.Action)
}

func TestGenerateMomentumAloneIsNotEnough(t *testing.T) {
	// One +1 vote out of four stays under the 0.3 action threshold
	set := indicators.IndicatorSet{
		RSI:         50,
		MomentumPct: 3.0,
		Trend:       indicators.TrendNeutral,
	}
	sig := Generate(set, 100, 50)

	assert.Equal(t, ActionHold, sig.Action)
	assert.InDelta(t, 25.0, sig.Confidence, 1e-9)
}

func TestGenerateBoundaryThreshold(t *testing.T) {
	// Two +1 votes out of four give mean 0.5 which crosses the threshold
	set := indicators.IndicatorSet{
		RSI:         28,
		MomentumPct: 2.5,
		Trend:       indicators.TrendBullish,
		Bollinger:   indicators.BollingerBands{Upper: 110, Middle: 105, Lower: 90},
	}
	sig := Generate(set, 100, 50)

	assert.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 50.0, sig.Confidence, 1e-9)
}
