package trader

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/davidrv/cryptoguard/internal/advisor"
	"github.com/davidrv/cryptoguard/internal/alerts"
	"github.com/davidrv/cryptoguard/internal/config"
	"github.com/davidrv/cryptoguard/internal/indicators"
	"github.com/davidrv/cryptoguard/internal/market"
	"github.com/davidrv/cryptoguard/internal/metrics"
	"github.com/davidrv/cryptoguard/internal/portfolio"
	"github.com/davidrv/cryptoguard/internal/rebalance"
	"github.com/davidrv/cryptoguard/internal/risk"
	"github.com/davidrv/cryptoguard/internal/signal"
)

// baseVoterCount is the number of deterministic voters in the signal
// generator; the advisor joins as one more with its configured weight.
const baseVoterCount = 4

// Deps bundles the trader's collaborators
type Deps struct {
	Quotes     market.QuoteProvider
	History    *market.History
	Risk       *risk.Controller
	Engine     *portfolio.Engine
	Alerts     *alerts.Manager
	Rebalancer *rebalance.Manager // nil when disabled
	Advisor    advisor.Advisor    // nil when disabled
	Snapshots  *SnapshotWriter
}

// Trader drives the fixed-interval control loop. All portfolio and risk
// state is owned here and mutated only on the loop goroutine; only the
// per-tick quote fan-out runs concurrently.
type Trader struct {
	cfg    *config.Config
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	iteration   int
	maxDrawdown float64
	halted      bool
	haltReason  string
}

// New creates a trader
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Trader {
	return &Trader{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source
func (t *Trader) SetClock(now func() time.Time) {
	t.now = now
}

// Halted reports whether the trader shut down permanently
func (t *Trader) Halted() (bool, string) {
	return t.halted, t.haltReason
}

// Run executes the control loop until the configured duration expires,
// a permanent halt fires, or the context is cancelled. A final snapshot
// is always written on the way out.
func (t *Trader) Run(ctx context.Context) error {
	interval := t.cfg.Trading.TickInterval()

	var deadline time.Time
	if d := t.cfg.Trading.Duration(); d > 0 {
		deadline = t.now().Add(d)
	}

	t.logger.Info().
		Str("mode", t.cfg.Trading.Mode).
		Strs("symbols", t.cfg.Trading.Symbols).
		Dur("interval", interval).
		Msg("Control loop started")

	next := t.now()
	for {
		t.Tick(ctx)

		if t.halted {
			t.logger.Error().Str("reason", t.haltReason).Msg("Permanent halt")
			t.deps.Alerts.AlertShutdown(ctx, t.haltReason, t.portfolioValue())
			t.writeFinalSnapshot()
			return nil
		}
		if !deadline.IsZero() && !t.now().Before(deadline) {
			t.logger.Info().Msg("Configured duration elapsed")
			t.writeFinalSnapshot()
			return nil
		}

		// Absolute schedule: an overrun tick fires the next one
		// immediately instead of skipping it.
		next = next.Add(interval)
		wait := next.Sub(t.now())
		if wait <= 0 {
			select {
			case <-ctx.Done():
				t.writeFinalSnapshot()
				return ctx.Err()
			default:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.writeFinalSnapshot()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tick runs one full control-loop iteration
func (t *Trader) Tick(ctx context.Context) {
	started := t.now()
	t.iteration++

	// 1. Concurrent quote fan-out; everything after runs sequentially
	prices := t.fetchQuotes(ctx)
	if len(prices) == 0 {
		t.logger.Warn().Int("iteration", t.iteration).Msg("No prices this tick")
		return
	}

	value := t.deps.Engine.Value(prices)

	// 2. Risk evaluation strictly precedes exits and entries
	verdict := t.evaluateRisk(ctx, value)

	// 3. Forced liquidation on CRITICAL/EMERGENCY/black-swan verdicts
	if verdict.LiquidateAll && t.deps.Engine.OpenPositionCount() > 0 {
		fills := t.deps.Engine.LiquidateAll(prices, portfolio.ReasonKillSwitch)
		for _, fill := range fills {
			metrics.Fills.WithLabelValues(string(fill.Action), fill.Reason).Inc()
		}
		t.deps.Alerts.AlertLiquidation(ctx, len(fills), t.deps.Engine.Value(prices))
	}
	if verdict.Halt {
		t.halted = true
		t.haltReason = "global stop loss"
	}

	signals := t.computeSignals(prices)

	// 4. Exit chain for surviving positions
	if !t.halted {
		t.processExits(prices, signals)
	}

	// 5-6. Ranked entries, gated by the risk controller
	if !t.halted && (verdict.Level == risk.LevelOK || verdict.Level == risk.LevelWarning) {
		t.processEntries(prices, signals)
	}

	// Peak update happens last, after all trading activity
	value = t.deps.Engine.Value(prices)
	t.deps.Engine.UpdatePeak(value)
	t.trackDrawdown(value)

	t.runRebalancer(ctx)
	t.publishMetrics(prices, value, started)

	t.logger.Info().
		Int("iteration", t.iteration).
		Str("risk_level", string(verdict.Level)).
		Float64("portfolio_value", value).
		Int("open_positions", t.deps.Engine.OpenPositionCount()).
		Int("symbols_priced", len(prices)).
		Msg("Tick complete")

	// 7. Snapshot cadence
	if t.cfg.Trading.SnapshotEvery > 0 && t.iteration%t.cfg.Trading.SnapshotEvery == 0 {
		t.writeSnapshot(value)
	}
}

// fetchQuotes resolves every symbol concurrently and feeds the price
// history. It returns the per-symbol consensus prices.
func (t *Trader) fetchQuotes(ctx context.Context) map[string]float64 {
	var mu sync.Mutex
	prices := make(map[string]float64, len(t.cfg.Trading.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range t.cfg.Trading.Symbols {
		symbol := symbol
		g.Go(func() error {
			quote := t.deps.Quotes.Resolve(gctx, symbol)
			if quote == nil || quote.Price <= 0 {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()

			// First sight of a symbol seeds history from the source's
			// candle series so indicators have context immediately.
			if t.deps.History.Len(symbol) == 0 && len(quote.Closes) > 0 {
				t.deps.History.Seed(symbol, quote.Closes, quote.Volumes)
			}
			t.deps.History.Append(symbol, quote.Price, quote.Volume24h)
			prices[symbol] = quote.Price

			metrics.QuotePrice.WithLabelValues(symbol).Set(quote.Price)
			if quote.Source == market.SourceSimulated {
				metrics.SimulatedQuotes.WithLabelValues(symbol).Inc()
				t.deps.Alerts.AlertSourcesDegraded(ctx, symbol)
			}
			return nil
		})
	}
	_ = g.Wait()
	return prices
}

// evaluateRisk runs the risk controller on the current portfolio state
func (t *Trader) evaluateRisk(ctx context.Context, value float64) risk.Verdict {
	primary := t.cfg.Trading.Symbols[0]
	verdict := t.deps.Risk.Evaluate(risk.Snapshot{
		Value:          value,
		PeakValue:      t.deps.Engine.PeakValue(),
		InitialCapital: t.deps.Engine.InitialCapital(),
	}, t.deps.History.Prices(primary))

	for _, event := range verdict.Events {
		metrics.RiskEvents.WithLabelValues(string(event.Trigger)).Inc()
		t.deps.Alerts.AlertRiskEvent(ctx, string(event.Trigger), event.Ratio, event.PortfolioValue)
	}
	metrics.SetRiskLevel(string(verdict.Level))
	return verdict
}

// computeSignals derives an indicator set and signal per symbol
func (t *Trader) computeSignals(prices map[string]float64) map[string]signal.Signal {
	signals := make(map[string]signal.Signal, len(prices))
	for symbol, price := range prices {
		history := t.deps.History.Prices(symbol)
		set := indicators.Compute(history, price)
		sig := signal.Generate(set, price, len(history))

		if t.deps.Advisor != nil && t.cfg.Advisor.Enabled {
			sig = t.blendAdvisor(sig)
		}
		signals[symbol] = sig
	}
	return signals
}

// blendAdvisor folds the advisor's action into the vote mean as one
// extra voter with the configured weight.
func (t *Trader) blendAdvisor(sig signal.Signal) signal.Signal {
	action, _ := t.deps.Advisor.SelectAction(advisor.StateVector(sig), 0)

	dir := 0.0
	switch action {
	case signal.ActionBuy:
		dir = 1
	case signal.ActionSell:
		dir = -1
	default:
		return sig
	}

	mean := sig.Confidence / 100
	if sig.Action == signal.ActionSell {
		mean = -mean
	}

	weight := t.cfg.Advisor.Weight
	blended := (mean*baseVoterCount + weight*dir) / (baseVoterCount + weight)

	out := sig
	switch {
	case blended > 0.3:
		out.Action = signal.ActionBuy
	case blended < -0.3:
		out.Action = signal.ActionSell
	default:
		out.Action = signal.ActionHold
	}
	out.Confidence = blended * 100
	if out.Confidence < 0 {
		out.Confidence = -out.Confidence
	}
	out.Reasons = append(out.Reasons, "Advisor vote "+string(action))
	return out
}

// processExits runs the exit policy chain for every open position
func (t *Trader) processExits(prices map[string]float64, signals map[string]signal.Signal) {
	for symbol := range t.deps.Engine.Positions() {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		fill, err := t.deps.Engine.CheckExit(symbol, price, signals[symbol])
		if err != nil {
			t.logger.Error().Err(err).Str("symbol", symbol).Msg("Exit check failed")
			continue
		}
		if fill != nil {
			metrics.Fills.WithLabelValues(string(fill.Action), fill.Reason).Inc()
		}
	}
}

// entryCandidate is a symbol whose signal qualifies for a new position
type entryCandidate struct {
	symbol string
	sig    signal.Signal
	score  float64
}

// processEntries ranks qualifying signals and opens positions until the
// concurrent-position cap is reached.
func (t *Trader) processEntries(prices map[string]float64, signals map[string]signal.Signal) {
	var candidates []entryCandidate
	for symbol, sig := range signals {
		if !t.entryEligible(symbol, sig) {
			continue
		}
		score := sig.Confidence * (1 + sig.Indicators.VolatilityPct/100)
		if prior, ok := t.cfg.Trading.SymbolPriors[symbol]; ok {
			score *= prior
		}
		candidates = append(candidates, entryCandidate{symbol: symbol, sig: sig, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	portfolioValue := t.deps.Engine.Value(prices)
	for _, cand := range candidates {
		if t.deps.Engine.OpenPositionCount() >= t.cfg.Trading.MaxPositions {
			break
		}
		price := prices[cand.symbol]
		entryValue := t.deps.Engine.Cash() * t.cfg.Trading.PositionSizePct

		allowed, factor, reason := t.deps.Risk.AllowTrade(
			t.deps.Engine.Exposure(cand.symbol, price), entryValue, portfolioValue)
		if !allowed {
			t.logger.Debug().Str("symbol", cand.symbol).Str("reason", reason).Msg("Entry denied")
			continue
		}

		var fill *portfolio.Fill
		var err error
		if cand.sig.Action == signal.ActionBuy {
			fill, err = t.deps.Engine.OpenLong(cand.symbol, price, cand.sig.Indicators.ATR, factor)
		} else {
			fill, err = t.deps.Engine.OpenShort(cand.symbol, price, cand.sig.Indicators.ATR, factor)
		}
		if err != nil {
			t.logger.Debug().Err(err).Str("symbol", cand.symbol).Msg("Entry skipped")
			continue
		}
		metrics.Fills.WithLabelValues(string(fill.Action), fill.Reason).Inc()
	}
}

// entryEligible applies the per-signal admission rules
func (t *Trader) entryEligible(symbol string, sig signal.Signal) bool {
	if !t.deps.Engine.CanOpen(symbol) {
		return false
	}
	switch sig.Action {
	case signal.ActionBuy:
		return true
	case signal.ActionSell:
		return t.cfg.Trading.AllowShort && sig.Confidence >= t.cfg.Trading.ShortMinConfidence
	default:
		return false
	}
}

// runRebalancer advances the optional weekly rebalancer
func (t *Trader) runRebalancer(ctx context.Context) {
	rb := t.deps.Rebalancer
	if rb == nil {
		return
	}
	if _, err := rb.UpdateValue(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("Rebalancer value update failed")
		return
	}
	if rb.ShouldRebalance() {
		if _, err := rb.Rebalance(ctx); err != nil {
			t.logger.Warn().Err(err).Msg("Rebalance failed")
		}
	}
}

// trackDrawdown records the worst peak-to-trough drawdown seen
func (t *Trader) trackDrawdown(value float64) {
	peak := t.deps.Engine.PeakValue()
	if peak <= 0 {
		return
	}
	dd := (peak - value) / peak
	if dd > t.maxDrawdown {
		t.maxDrawdown = dd
	}
}

// publishMetrics updates the Prometheus gauges for this tick
func (t *Trader) publishMetrics(prices map[string]float64, value float64, started time.Time) {
	metrics.PortfolioValue.Set(value)
	metrics.PortfolioPnL.Set(value - t.deps.Engine.InitialCapital())
	metrics.OpenPositions.Set(float64(t.deps.Engine.OpenPositionCount()))
	metrics.TotalFeesPaid.Set(t.deps.Engine.TotalFeesPaid())
	metrics.Ticks.Inc()
	metrics.TickDuration.Observe(t.now().Sub(started).Seconds())
}

// portfolioValue marks the portfolio at the latest known prices
func (t *Trader) portfolioValue() float64 {
	prices := make(map[string]float64)
	for _, symbol := range t.cfg.Trading.Symbols {
		series := t.deps.History.Prices(symbol)
		if len(series) > 0 {
			prices[symbol] = series[len(series)-1]
		}
	}
	return t.deps.Engine.Value(prices)
}

// writeSnapshot persists the current session state
func (t *Trader) writeSnapshot(value float64) {
	engine := t.deps.Engine
	initial := engine.InitialCapital()

	pnl := value - initial
	pnlPct := 0.0
	if initial > 0 {
		pnlPct = pnl / initial * 100
	}

	snap := &SessionSnapshot{
		Timestamp:        t.now(),
		Mode:             t.cfg.Trading.Mode,
		InitialCapital:   initial,
		Cash:             engine.Cash(),
		Positions:        engine.Positions(),
		PortfolioValue:   value,
		PnL:              pnl,
		PnLPct:           pnlPct,
		PeakValue:        engine.PeakValue(),
		MaxDrawdown:      t.maxDrawdown,
		TotalFeesPaid:    engine.TotalFeesPaid(),
		TotalTrades:      len(engine.TradeLog()),
		TradeLog:         engine.TradeLog(),
		RiskEvents:       t.deps.Risk.Events(),
		KillSwitchActive: t.deps.Risk.KillSwitchActive(),
		Iteration:        t.iteration,
	}
	if err := t.deps.Snapshots.Write(snap); err != nil {
		t.logger.Error().Err(err).Msg("Snapshot write failed")
	}
}

func (t *Trader) writeFinalSnapshot() {
	t.writeSnapshot(t.portfolioValue())
}
