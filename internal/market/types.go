package market

import "time"

// Source name tags carried on quotes
const (
	SourceCoinbase  = "coinbase"
	SourceKraken    = "kraken"
	SourceCoinGecko = "coingecko"
	SourceConsensus = "consensus"
	SourceSimulated = "simulated"
)

// MaxCloses bounds the length of the closes/volumes arrays carried on a quote
const MaxCloses = 200

// Quote is a point-in-time market observation for a trading pair.
// Closes and Volumes are aligned, oldest first.
type Quote struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Volume24h    float64   `json:"volume_24h"`
	Change24hPct float64   `json:"price_change_24h_pct"`
	High24h      float64   `json:"high_24h"`
	Low24h       float64   `json:"low_24h"`
	Closes       []float64 `json:"closes"`
	Volumes      []float64 `json:"volumes"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
}

// capSeries trims a series to the most recent MaxCloses entries
func capSeries(values []float64) []float64 {
	if len(values) > MaxCloses {
		return values[len(values)-MaxCloses:]
	}
	return values
}
