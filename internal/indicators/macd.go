package indicators

// MACDResult holds the MACD line, its signal line, and the histogram
type MACDResult struct {
	Line      float64 `json:"macd_line"`
	Signal    float64 `json:"macd_signal"`
	Histogram float64 `json:"macd_histogram"`
}

// MACD computes the moving average convergence divergence with standard
// 12/26/9 periods. Short histories scale the periods down proportionally,
// bounded at 5/10/3, and fewer than 10 samples return the neutral zero set.
func MACD(prices []float64) MACDResult {
	n := len(prices)
	if n < 10 {
		return MACDResult{}
	}

	fast, slow, signal := 12, 26, 9
	if n < 26 {
		slow = n
		if slow < 10 {
			slow = 10
		}
		fast = slow * 12 / 26
		if fast < 5 {
			fast = 5
		}
		signal = slow * 9 / 26
		if signal < 3 {
			signal = 3
		}
	}

	fastSeries := EMASeries(prices, fast)
	slowSeries := EMASeries(prices, slow)

	macdSeries := make([]float64, n)
	for i := range prices {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}

	signalSeries := EMASeries(macdSeries, signal)

	line := macdSeries[n-1]
	sig := signalSeries[n-1]
	return MACDResult{
		Line:      line,
		Signal:    sig,
		Histogram: line - sig,
	}
}
