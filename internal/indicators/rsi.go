package indicators

// minWindow is the smallest usable clamped window for any indicator.
// Shorter histories fall back to the neutral default.
const minWindow = 5

// RSI computes the relative strength index over the last period deltas.
// The window clamps down to the available history (lower bound minWindow);
// with fewer samples the neutral 50 is returned. A lossless run returns 100.
func RSI(prices []float64, period int) float64 {
	deltas := len(prices) - 1
	if deltas < minWindow {
		return 50
	}
	if period > deltas {
		period = deltas
	}
	if period < minWindow {
		period = minWindow
	}

	var gains, losses float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
