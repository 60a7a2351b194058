// Package advisor defines the optional reinforcement-learning policy
// hook. The deterministic signal generator rules by default; when an
// advisor is enabled its action joins signal synthesis as an extra
// weighted voter.
package advisor

import "github.com/davidrv/cryptoguard/internal/signal"

// Advisor is a learned trading policy
type Advisor interface {
	// SelectAction maps a state vector and a sentiment score in [-1, 1]
	// to an action and the policy's log-probability for it.
	SelectAction(state []float64, sentiment float64) (signal.Action, float64)

	// Value estimates the state's expected return under the policy
	Value(state []float64) float64
}

// Noop is the default advisor: it always abstains
type Noop struct{}

// NewNoop creates an advisor that never votes
func NewNoop() *Noop {
	return &Noop{}
}

// SelectAction always holds with zero log-probability
func (n *Noop) SelectAction(state []float64, sentiment float64) (signal.Action, float64) {
	return signal.ActionHold, 0
}

// Value is always zero
func (n *Noop) Value(state []float64) float64 {
	return 0
}

// StateVector builds the advisor input from the signal's indicator view.
// The layout is stable: callers training against snapshots depend on it.
func StateVector(sig signal.Signal) []float64 {
	set := sig.Indicators
	return []float64{
		sig.Price,
		set.RSI,
		set.MACD.Line,
		set.MACD.Signal,
		set.MACD.Histogram,
		set.Bollinger.Upper,
		set.Bollinger.Middle,
		set.Bollinger.Lower,
		set.EMA200,
		set.ATR,
		set.VolatilityPct,
		set.MomentumPct,
	}
}
