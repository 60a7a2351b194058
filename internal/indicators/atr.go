package indicators

import "math"

// ATR approximates the average true range as the mean of absolute
// close-to-close differences over the last period samples. True range
// from OHLC is not available per tick, so closes stand in. The window
// clamps to the available deltas; fewer than minWindow return 0.
func ATR(prices []float64, period int) float64 {
	deltas := len(prices) - 1
	if deltas < minWindow {
		return 0
	}
	if period > deltas {
		period = deltas
	}
	if period < minWindow {
		period = minWindow
	}

	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += math.Abs(prices[i] - prices[i-1])
	}
	return sum / float64(period)
}
