package config

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation.
// Invalid configuration is fatal at startup; there is no partial-configuration
// operation.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateSources()...)
	errors = append(errors, c.validateRebalance()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors

	if c.Trading.Mode != "paper" && c.Trading.Mode != "live" {
		errors = append(errors, ValidationError{
			Field:   "trading.mode",
			Message: fmt.Sprintf("Mode must be 'paper' or 'live', got %q", c.Trading.Mode),
		})
	}
	if len(c.Trading.Symbols) == 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.symbols",
			Message: "At least one trading symbol is required",
		})
	}
	if c.Trading.InitialCapital <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.initial_capital",
			Message: "Initial capital must be positive",
		})
	}
	if c.Trading.PositionSizePct <= 0 || c.Trading.PositionSizePct > 1 {
		errors = append(errors, ValidationError{
			Field:   "trading.position_size_pct",
			Message: "Position size must be in (0, 1]",
		})
	}
	if c.Trading.MaxPositions <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.max_positions",
			Message: "Max positions must be positive",
		})
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		errors = append(errors, ValidationError{
			Field:   "trading.stop_loss_pct",
			Message: "Stop loss must be in (0, 1)",
		})
	}
	if c.Trading.TakeProfitPct <= 0 || c.Trading.TakeProfitPct >= 1 {
		errors = append(errors, ValidationError{
			Field:   "trading.take_profit_pct",
			Message: "Take profit must be in (0, 1)",
		})
	}
	if c.Trading.FeePct < 0 || c.Trading.FeePct > 0.1 {
		errors = append(errors, ValidationError{
			Field:   "trading.fee_pct",
			Message: "Fee must be in [0, 0.1]",
		})
	}
	if c.Trading.SlippagePct < 0 || c.Trading.SlippagePct > 0.1 {
		errors = append(errors, ValidationError{
			Field:   "trading.slippage_pct",
			Message: "Slippage must be in [0, 0.1]",
		})
	}
	if c.Trading.TickIntervalS <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.tick_interval_s",
			Message: "Tick interval must be positive",
		})
	}
	if c.Trading.SnapshotEvery <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.snapshot_every",
			Message: "Snapshot cadence must be positive",
		})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	if c.Risk.MDDWarning <= 0 || c.Risk.MDDCritical <= 0 || c.Risk.MDDEmergency <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.mdd_*",
			Message: "Drawdown thresholds must be positive",
		})
	}
	if !(c.Risk.MDDWarning < c.Risk.MDDCritical && c.Risk.MDDCritical < c.Risk.MDDEmergency) {
		errors = append(errors, ValidationError{
			Field:   "risk.mdd_*",
			Message: fmt.Sprintf("Drawdown thresholds must be strictly ordered warning < critical < emergency, got %.3f/%.3f/%.3f",
				c.Risk.MDDWarning, c.Risk.MDDCritical, c.Risk.MDDEmergency),
		})
	}
	if c.Risk.DailyLossLimit <= 0 || c.Risk.DailyLossLimit >= 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.daily_loss_limit",
			Message: "Daily loss limit must be in (0, 1)",
		})
	}
	if c.Risk.GlobalStopLossPct <= 0 || c.Risk.GlobalStopLossPct >= 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.global_stop_loss_pct",
			Message: "Global stop loss must be in (0, 1)",
		})
	}
	if c.Risk.CircuitBreakerCooldownS <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.circuit_breaker_cooldown_s",
			Message: "Circuit breaker cooldown must be positive",
		})
	}
	if c.Risk.BlackSwanFreezeS <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.black_swan_freeze_s",
			Message: "Black swan freeze window must be positive",
		})
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_position_pct",
			Message: "Max position percent must be in (0, 1]",
		})
	}
	if c.Risk.VolSpikeFactor <= 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.vol_spike_factor",
			Message: "Volatility spike factor must be greater than 1",
		})
	}

	return errors
}

func (c *Config) validateSources() ValidationErrors {
	var errors ValidationErrors

	if c.Sources.TimeoutS <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sources.timeout_s",
			Message: "Source timeout must be positive",
		})
	}
	if c.Sources.FetchBudgetS < c.Sources.TimeoutS {
		errors = append(errors, ValidationError{
			Field:   "sources.fetch_budget_s",
			Message: "Per-tick fetch budget must be at least the per-call timeout",
		})
	}
	if c.Sources.RequestsPerMinute <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sources.requests_per_minute",
			Message: "Rate limit must be positive",
		})
	}

	return errors
}

func (c *Config) validateRebalance() ValidationErrors {
	var errors ValidationErrors

	if !c.Rebalance.Enabled {
		return nil
	}

	sum := 0.0
	for symbol, weight := range c.Rebalance.Targets {
		if weight < 0 || weight > 1 {
			errors = append(errors, ValidationError{
				Field:   "rebalance.targets",
				Message: fmt.Sprintf("Target weight for %s must be in [0, 1], got %.3f", symbol, weight),
			})
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > 1e-3 {
		errors = append(errors, ValidationError{
			Field:   "rebalance.targets",
			Message: fmt.Sprintf("Target weights must sum to 1.0 (±0.001), got %.4f", sum),
		})
	}
	if c.Rebalance.DeviationThreshold <= 0 || c.Rebalance.DeviationThreshold >= 1 {
		errors = append(errors, ValidationError{
			Field:   "rebalance.deviation_threshold",
			Message: "Deviation threshold must be in (0, 1)",
		})
	}
	if c.Rebalance.IntervalDays <= 0 {
		errors = append(errors, ValidationError{
			Field:   "rebalance.interval_days",
			Message: "Rebalance interval must be positive",
		})
	}

	return errors
}
