package indicators

import "gonum.org/v1/gonum/stat"

// BollingerBands holds the upper, middle, and lower band values
type BollingerBands struct {
	Upper  float64 `json:"bb_upper"`
	Middle float64 `json:"bb_mid"`
	Lower  float64 `json:"bb_lower"`
}

// Bollinger computes SMA ± k·stdev over the last period samples. The
// window clamps to the available history (lower bound minWindow); with
// fewer samples the bands default to ±2% around the last price.
func Bollinger(prices []float64, period int, k float64) BollingerBands {
	if len(prices) == 0 {
		return BollingerBands{}
	}
	last := prices[len(prices)-1]
	if len(prices) < minWindow {
		return BollingerBands{
			Upper:  last * 1.02,
			Middle: last,
			Lower:  last * 0.98,
		}
	}
	if period > len(prices) {
		period = len(prices)
	}
	if period < minWindow {
		period = minWindow
	}

	window := prices[len(prices)-period:]
	mean := stat.Mean(window, nil)
	sd := stat.PopStdDev(window, nil)

	return BollingerBands{
		Upper:  mean + k*sd,
		Middle: mean,
		Lower:  mean - k*sd,
	}
}
