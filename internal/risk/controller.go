package risk

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/davidrv/cryptoguard/internal/config"
)

// Level is the risk state machine's current severity
type Level string

const (
	LevelOK             Level = "OK"
	LevelWarning        Level = "WARNING"
	LevelCritical       Level = "CRITICAL"
	LevelEmergency      Level = "EMERGENCY"
	LevelBlackSwan      Level = "BLACK_SWAN_FREEZE"
	LevelCircuitBreaker Level = "CIRCUIT_BREAKER"
)

// Trigger identifies what fired a risk event
type Trigger string

const (
	TriggerWarning    Trigger = "WARNING"
	TriggerCritical   Trigger = "CRITICAL"
	TriggerEmergency  Trigger = "EMERGENCY"
	TriggerDailyLoss  Trigger = "DAILY_LOSS"
	TriggerBlackSwan  Trigger = "BLACK_SWAN"
	TriggerFlashCrash Trigger = "FLASH_CRASH"
	TriggerGlobalStop Trigger = "GLOBAL_STOP"
)

// Detector windows
const (
	volReturnWindow   = 10  // returns in each volatility sample
	volBaselineWindow = 30  // samples in the spike baseline
	maxVolSamples     = 300 // bound on retained samples
)

// Event records a risk trigger firing
type Event struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Trigger        Trigger   `json:"trigger"`
	Ratio          float64   `json:"drawdown_or_ratio"`
	PortfolioValue float64   `json:"portfolio_value"`
	Extra          string    `json:"extra,omitempty"`
}

// Snapshot is the per-tick portfolio view the controller evaluates
type Snapshot struct {
	Value           float64
	PeakValue       float64
	InitialCapital  float64
	DailyStartValue float64
}

// Verdict is the outcome of one evaluation
type Verdict struct {
	Level        Level
	LiquidateAll bool
	Halt         bool // permanent shutdown (global stop or emergency)
	Events       []Event
}

// Controller is the risk state machine. It is owned by the scheduler and
// evaluated once per tick; it is not safe for concurrent use.
type Controller struct {
	cfg    config.RiskConfig
	logger zerolog.Logger
	now    func() time.Time

	level             Level
	killSwitchActive  bool
	circuitBreakerEnd time.Time
	blackSwanEnd      time.Time
	volatilitySamples []float64
	eventLog          []Event
	currentDay        string
	dailyStartValue   float64
}

// NewController creates a risk controller
func NewController(cfg config.RiskConfig, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		level:  LevelOK,
	}
}

// SetClock overrides the time source
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Level returns the current severity
func (c *Controller) Level() Level {
	return c.level
}

// KillSwitchActive reports whether the kill switch is engaged
func (c *Controller) KillSwitchActive() bool {
	return c.killSwitchActive
}

// Events returns the accumulated event log
func (c *Controller) Events() []Event {
	out := make([]Event, len(c.eventLog))
	copy(out, c.eventLog)
	return out
}

// Evaluate runs the state machine for one tick. priceHistory is any
// symbol's per-tick consensus prices, oldest first; it feeds the
// black-swan detectors. Evaluation never fails: bad input degrades to OK.
func (c *Controller) Evaluate(snap Snapshot, priceHistory []float64) Verdict {
	now := c.now()
	c.rollDay(now, snap.Value)

	if snap.Value <= 0 || snap.InitialCapital <= 0 {
		c.logger.Warn().
			Float64("value", snap.Value).
			Float64("initial_capital", snap.InitialCapital).
			Msg("Degenerate snapshot, defaulting to OK")
		c.level = LevelOK
		return Verdict{Level: LevelOK}
	}

	// 1. Active black-swan freeze dominates everything except the hard floor
	if !c.blackSwanEnd.IsZero() {
		if now.Before(c.blackSwanEnd) {
			c.level = LevelBlackSwan
			return Verdict{Level: LevelBlackSwan}
		}
		c.blackSwanEnd = time.Time{}
		c.level = LevelOK
		c.logger.Info().Msg("Black swan freeze expired, trading resumed")
	}

	// 2. Black-swan detectors
	if verdict, triggered := c.detectBlackSwan(snap, priceHistory, now); triggered {
		return verdict
	}

	// 3. Active circuit breaker
	if !c.circuitBreakerEnd.IsZero() {
		if now.Before(c.circuitBreakerEnd) {
			c.level = LevelCircuitBreaker
			return Verdict{Level: LevelCircuitBreaker}
		}
		c.circuitBreakerEnd = time.Time{}
		c.killSwitchActive = false
		c.level = LevelOK
		c.logger.Info().Msg("Circuit breaker released")
	}

	// Global stop: hard floor on slow bleed where peak never advanced
	floor := snap.InitialCapital * (1 - c.cfg.GlobalStopLossPct)
	if snap.Value <= floor {
		event := c.record(TriggerGlobalStop, (snap.InitialCapital-snap.Value)/snap.InitialCapital, snap.Value, now, "portfolio value at or below hard floor")
		c.killSwitchActive = true
		c.level = LevelEmergency
		return Verdict{Level: LevelEmergency, LiquidateAll: true, Halt: true, Events: []Event{event}}
	}

	// 4. Drawdown from peak
	dd := 0.0
	if snap.PeakValue > 0 {
		dd = (snap.PeakValue - snap.Value) / snap.PeakValue
	}
	switch {
	case dd >= c.cfg.MDDEmergency:
		event := c.record(TriggerEmergency, dd, snap.Value, now, "")
		c.killSwitchActive = true
		c.circuitBreakerEnd = now.Add(c.cfg.BreakerCooldown())
		c.level = LevelEmergency
		return Verdict{Level: LevelEmergency, LiquidateAll: true, Events: []Event{event}}
	case dd >= c.cfg.MDDCritical:
		event := c.record(TriggerCritical, dd, snap.Value, now, "")
		c.killSwitchActive = true
		c.circuitBreakerEnd = now.Add(c.cfg.BreakerCooldown())
		c.level = LevelCritical
		return Verdict{Level: LevelCritical, LiquidateAll: true, Events: []Event{event}}
	case dd >= c.cfg.MDDWarning:
		event := c.record(TriggerWarning, dd, snap.Value, now, "")
		c.level = LevelWarning
		return Verdict{Level: LevelWarning, Events: []Event{event}}
	}

	// 5. Intraday loss vs initial capital
	if c.dailyStartValue > 0 {
		dailyLoss := (c.dailyStartValue - snap.Value) / snap.InitialCapital
		if dailyLoss >= c.cfg.DailyLossLimit {
			event := c.record(TriggerDailyLoss, dailyLoss, snap.Value, now, "")
			c.killSwitchActive = true
			c.circuitBreakerEnd = now.Add(c.cfg.BreakerCooldown())
			c.level = LevelCritical
			return Verdict{Level: LevelCritical, LiquidateAll: true, Events: []Event{event}}
		}
	}

	c.level = LevelOK
	return Verdict{Level: LevelOK}
}

// detectBlackSwan runs the volatility-spike and flash-crash detectors.
// Both need a populated sample baseline before they can fire.
func (c *Controller) detectBlackSwan(snap Snapshot, priceHistory []float64, now time.Time) (Verdict, bool) {
	// Volatility spike: current sample vs baseline mean of prior samples
	if vol, ok := currentVolatility(priceHistory); ok {
		if len(c.volatilitySamples) >= volBaselineWindow {
			baseline := c.volatilitySamples[len(c.volatilitySamples)-volBaselineWindow:]
			mean := stat.Mean(baseline, nil)
			if mean > 0 && vol > c.cfg.VolSpikeFactor*mean {
				c.appendVolatility(vol)
				return c.freeze(TriggerBlackSwan, vol/mean, snap.Value, now, "volatility spike"), true
			}
		}
		c.appendVolatility(vol)
	}

	// Flash crash: drop across the configured window
	window := c.cfg.FlashCrashWindow
	if window > 0 && len(priceHistory) >= window {
		base := priceHistory[len(priceHistory)-window]
		if base > 0 {
			change := (priceHistory[len(priceHistory)-1] - base) / base
			if change < -c.cfg.FlashCrashDropPct {
				return c.freeze(TriggerFlashCrash, change, snap.Value, now, "flash crash"), true
			}
		}
	}

	return Verdict{}, false
}

// freeze enters the 24h black-swan freeze and orders liquidation
func (c *Controller) freeze(trigger Trigger, ratio, value float64, now time.Time, extra string) Verdict {
	event := c.record(trigger, ratio, value, now, extra)
	c.blackSwanEnd = now.Add(c.cfg.FreezeDuration())
	c.level = LevelBlackSwan
	return Verdict{Level: LevelBlackSwan, LiquidateAll: true, Events: []Event{event}}
}

// AllowTrade gates a prospective new entry. It returns whether the entry
// may proceed, the position-size factor to apply, and a denial reason.
func (c *Controller) AllowTrade(symbolExposure, entryValue, portfolioValue float64) (bool, float64, string) {
	now := c.now()

	if c.killSwitchActive {
		return false, 0, "kill switch active"
	}
	if !c.blackSwanEnd.IsZero() && now.Before(c.blackSwanEnd) {
		return false, 0, "black swan freeze active"
	}
	if !c.circuitBreakerEnd.IsZero() && now.Before(c.circuitBreakerEnd) {
		return false, 0, "circuit breaker active"
	}

	if portfolioValue > 0 && (symbolExposure+entryValue) > c.cfg.MaxPositionPct*portfolioValue {
		return false, 0, "max position percent exceeded"
	}

	if c.level == LevelWarning {
		return true, 0.5, ""
	}
	return true, 1.0, ""
}

// record appends an event to the log and emits a structured log line
func (c *Controller) record(trigger Trigger, ratio, value float64, now time.Time, extra string) Event {
	event := Event{
		ID:             uuid.New().String(),
		Timestamp:      now,
		Trigger:        trigger,
		Ratio:          ratio,
		PortfolioValue: value,
		Extra:          extra,
	}
	c.eventLog = append(c.eventLog, event)

	c.logger.Warn().
		Str("event_id", event.ID).
		Str("trigger", string(trigger)).
		Float64("ratio", ratio).
		Float64("portfolio_value", value).
		Msg("Risk event")
	return event
}

// rollDay resets the intraday baseline at UTC midnight
func (c *Controller) rollDay(now time.Time, value float64) {
	day := now.UTC().Format("2006-01-02")
	if day != c.currentDay {
		c.currentDay = day
		c.dailyStartValue = value
	}
}

func (c *Controller) appendVolatility(vol float64) {
	c.volatilitySamples = append(c.volatilitySamples, vol)
	if len(c.volatilitySamples) > maxVolSamples {
		c.volatilitySamples = c.volatilitySamples[len(c.volatilitySamples)-maxVolSamples:]
	}
}

// currentVolatility is the population stdev of the last 10 simple returns
func currentVolatility(prices []float64) (float64, bool) {
	if len(prices) < volReturnWindow+1 {
		return 0, false
	}
	returns := make([]float64, 0, volReturnWindow)
	for i := len(prices) - volReturnWindow; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return 0, false
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return stat.PopStdDev(returns, nil), true
}
