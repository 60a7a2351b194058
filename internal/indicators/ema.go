package indicators

// EMA computes an exponential moving average with smoothing 2/(period+1),
// seeded with the first element. Returns the final value of the series.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period < 1 {
		period = 1
	}
	alpha := 2.0 / float64(period+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = alpha*p + (1-alpha)*ema
	}
	return ema
}

// EMASeries computes the running EMA at every point of the input series
func EMASeries(prices []float64, period int) []float64 {
	if len(prices) == 0 {
		return nil
	}
	if period < 1 {
		period = 1
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = alpha*prices[i] + (1-alpha)*out[i-1]
	}
	return out
}

// EMA200 is the long trend baseline: an EMA over the full available
// history, capped at the most recent 200 samples. Histories under 50
// samples return the last price so the trend filter stays neutral.
func EMA200(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < 50 {
		return prices[len(prices)-1]
	}
	if len(prices) > 200 {
		prices = prices[len(prices)-200:]
	}
	return EMA(prices, len(prices))
}
