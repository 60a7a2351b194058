package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/davidrv/cryptoguard/internal/config"
	"github.com/davidrv/cryptoguard/internal/signal"
)

// Trailing-stop and exit-chain thresholds, as fractions of entry price
const (
	macdExitMinProfit     = 0.01
	indicatorExitProfit   = 0.01
	indicatorExitMinConf  = 50.0
	secureProfitThreshold = 0.02
	secureProfitMinConf   = 35.0
	trailingTrigger       = 0.015
	trailingBuffer        = 0.005
	atrStopMultiple       = 2.0
)

// Engine holds cash and open positions and applies the cost model.
// It is owned by the scheduler and not safe for concurrent use.
type Engine struct {
	cfg    config.TradingConfig
	logger zerolog.Logger
	now    func() time.Time

	cash          float64
	positions     map[string]*Position
	peakValue     float64
	totalFeesPaid float64
	tradeLog      []Fill
}

// NewEngine creates a position engine seeded with the initial capital
func NewEngine(cfg config.TradingConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		cash:      cfg.InitialCapital,
		positions: make(map[string]*Position),
		peakValue: cfg.InitialCapital,
	}
}

// SetClock overrides the time source
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Cash returns the available cash
func (e *Engine) Cash() float64 { return e.cash }

// PeakValue returns the all-time-high portfolio value
func (e *Engine) PeakValue() float64 { return e.peakValue }

// TotalFeesPaid returns the cumulative fees
func (e *Engine) TotalFeesPaid() float64 { return e.totalFeesPaid }

// InitialCapital returns the starting cash
func (e *Engine) InitialCapital() float64 { return e.cfg.InitialCapital }

// Position returns the open position for a symbol, or nil
func (e *Engine) Position(symbol string) *Position {
	return e.positions[symbol]
}

// Positions returns a copy of the open positions map
func (e *Engine) Positions() map[string]*Position {
	out := make(map[string]*Position, len(e.positions))
	for sym, pos := range e.positions {
		p := *pos
		out[sym] = &p
	}
	return out
}

// OpenPositionCount returns the number of open positions
func (e *Engine) OpenPositionCount() int { return len(e.positions) }

// TradeLog returns the ordered fill history
func (e *Engine) TradeLog() []Fill {
	out := make([]Fill, len(e.tradeLog))
	copy(out, e.tradeLog)
	return out
}

// CanOpen reports whether a new position in the symbol is admissible
func (e *Engine) CanOpen(symbol string) bool {
	if len(e.positions) >= e.cfg.MaxPositions {
		return false
	}
	_, exists := e.positions[symbol]
	return !exists
}

// OpenLong opens a long position budgeted from cash. sizeFactor scales
// the configured position size (0.5 under risk WARNING).
func (e *Engine) OpenLong(symbol string, price, atr, sizeFactor float64) (*Fill, error) {
	if !e.CanOpen(symbol) {
		return nil, fmt.Errorf("cannot open position in %s", symbol)
	}
	if price <= 0 {
		return nil, fmt.Errorf("non-positive price %.6f for %s", price, symbol)
	}

	value := e.cash * e.cfg.PositionSizePct * sizeFactor
	if value < e.cfg.MinOrderValue {
		return nil, fmt.Errorf("order value %.2f below minimum %.2f", value, e.cfg.MinOrderValue)
	}
	fee := value * e.cfg.FeePct
	if value+fee > e.cash {
		return nil, fmt.Errorf("insufficient cash for %s entry", symbol)
	}

	execPrice := price * (1 + e.cfg.SlippagePct)
	quantity := value / execPrice

	stop := execPrice * (1 - e.cfg.StopLossPct)
	if atr > 0 {
		stop = math.Max(stop, execPrice-atrStopMultiple*atr)
	}

	e.cash -= value + fee
	e.totalFeesPaid += fee
	e.positions[symbol] = &Position{
		Symbol:     symbol,
		Side:       SideLong,
		Quantity:   quantity,
		EntryPrice: execPrice,
		EntryTime:  e.now(),
		StopLoss:   stop,
		TakeProfit: execPrice * (1 + e.cfg.TakeProfitPct),
		ATRAtEntry: atr,
	}

	fill := e.log(Fill{
		Symbol:         symbol,
		Action:         ActionOpenLong,
		ExecutionPrice: execPrice,
		Quantity:       quantity,
		GrossValue:     value,
		Fee:            fee,
		NetValue:       value + fee,
		Reason:         ReasonSignal,
	})
	return fill, nil
}

// OpenShort opens a short position. Sale proceeds are not credited to
// cash: the short is collateralised by existing cash and P&L is booked
// at close.
func (e *Engine) OpenShort(symbol string, price, atr, sizeFactor float64) (*Fill, error) {
	if !e.cfg.AllowShort {
		return nil, fmt.Errorf("short entries disabled")
	}
	if !e.CanOpen(symbol) {
		return nil, fmt.Errorf("cannot open position in %s", symbol)
	}
	if price <= 0 {
		return nil, fmt.Errorf("non-positive price %.6f for %s", price, symbol)
	}

	value := e.cash * e.cfg.PositionSizePct * sizeFactor
	if value < e.cfg.MinOrderValue {
		return nil, fmt.Errorf("order value %.2f below minimum %.2f", value, e.cfg.MinOrderValue)
	}
	fee := value * e.cfg.FeePct
	if fee > e.cash {
		return nil, fmt.Errorf("insufficient cash for %s entry fee", symbol)
	}

	execPrice := price * (1 - e.cfg.SlippagePct)
	quantity := value / execPrice

	stop := execPrice * (1 + e.cfg.StopLossPct)
	if atr > 0 {
		stop = math.Min(stop, execPrice+atrStopMultiple*atr)
	}

	e.cash -= fee
	e.totalFeesPaid += fee
	e.positions[symbol] = &Position{
		Symbol:     symbol,
		Side:       SideShort,
		Quantity:   quantity,
		EntryPrice: execPrice,
		EntryTime:  e.now(),
		StopLoss:   stop,
		TakeProfit: execPrice * (1 - e.cfg.TakeProfitPct),
		ATRAtEntry: atr,
	}

	fill := e.log(Fill{
		Symbol:         symbol,
		Action:         ActionOpenShort,
		ExecutionPrice: execPrice,
		Quantity:       quantity,
		GrossValue:     value,
		Fee:            fee,
		NetValue:       fee,
		Reason:         ReasonSignal,
	})
	return fill, nil
}

// Close closes the open position in a symbol at the given market price
func (e *Engine) Close(symbol string, price float64, reason string) (*Fill, error) {
	pos, ok := e.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("no open position in %s", symbol)
	}
	if price <= 0 {
		return nil, fmt.Errorf("non-positive price %.6f for %s", price, symbol)
	}

	var fill Fill
	if pos.Side == SideLong {
		execPrice := price * (1 - e.cfg.SlippagePct)
		proceeds := pos.Quantity * execPrice
		fee := proceeds * e.cfg.FeePct
		pnl := (proceeds - fee) - pos.Quantity*pos.EntryPrice

		e.cash += proceeds - fee
		e.totalFeesPaid += fee
		fill = Fill{
			Symbol:         symbol,
			Action:         ActionCloseLong,
			ExecutionPrice: execPrice,
			Quantity:       pos.Quantity,
			GrossValue:     proceeds,
			Fee:            fee,
			NetValue:       proceeds - fee,
			PnL:            pnl,
			PnLPct:         pnl / (pos.Quantity * pos.EntryPrice) * 100,
			Reason:         reason,
		}
	} else {
		execPrice := price * (1 + e.cfg.SlippagePct)
		cost := pos.Quantity * execPrice
		fee := cost * e.cfg.FeePct
		pnl := pos.Quantity*pos.EntryPrice - (cost + fee)

		e.cash += pnl
		e.totalFeesPaid += fee
		fill = Fill{
			Symbol:         symbol,
			Action:         ActionCloseShort,
			ExecutionPrice: execPrice,
			Quantity:       pos.Quantity,
			GrossValue:     cost,
			Fee:            fee,
			NetValue:       cost + fee,
			PnL:            pnl,
			PnLPct:         pnl / (pos.Quantity * pos.EntryPrice) * 100,
			Reason:         reason,
		}
	}

	if e.cash < 0 {
		e.logger.Error().
			Str("symbol", symbol).
			Float64("cash", e.cash).
			Msg("Cash went negative on close")
	}

	delete(e.positions, symbol)
	return e.log(fill), nil
}

// CheckExit runs the exit policy chain for one open position. It returns
// the fill if an exit fired, or nil. sig is the current signal for the
// symbol; its direction is opposing when it points against the position.
func (e *Engine) CheckExit(symbol string, price float64, sig signal.Signal) (*Fill, error) {
	pos, ok := e.positions[symbol]
	if !ok {
		return nil, nil
	}

	profit := pos.ProfitPct(price)
	set := sig.Indicators

	// 1. Stop loss
	if (pos.Side == SideLong && price <= pos.StopLoss) ||
		(pos.Side == SideShort && price >= pos.StopLoss) {
		return e.Close(symbol, price, ReasonStopLoss)
	}

	// 2. Take profit
	if (pos.Side == SideLong && price >= pos.TakeProfit) ||
		(pos.Side == SideShort && price <= pos.TakeProfit) {
		return e.Close(symbol, price, ReasonTakeProfit)
	}

	// 3. MACD crossover, only once in profit
	if profit >= macdExitMinProfit {
		if (pos.Side == SideLong && set.MACD.Line < set.MACD.Signal) ||
			(pos.Side == SideShort && set.MACD.Line > set.MACD.Signal) {
			return e.Close(symbol, price, ReasonMACDExit)
		}
	}

	opposing := (pos.Side == SideLong && sig.Action == signal.ActionSell) ||
		(pos.Side == SideShort && sig.Action == signal.ActionBuy)

	// 4. Strong inverse signal
	if profit >= indicatorExitProfit && opposing && sig.Confidence >= indicatorExitMinConf {
		return e.Close(symbol, price, ReasonIndicator)
	}

	// 5. Secure profit on a weaker inverse signal
	if profit >= secureProfitThreshold && opposing && sig.Confidence >= secureProfitMinConf {
		return e.Close(symbol, price, ReasonSecureProfit)
	}

	// 6. Trailing stop toward break-even; never loosens
	if profit >= trailingTrigger {
		if pos.Side == SideLong {
			candidate := pos.EntryPrice * (1 + trailingBuffer)
			if candidate > pos.StopLoss {
				pos.StopLoss = candidate
				e.logger.Debug().
					Str("symbol", symbol).
					Float64("stop_loss", candidate).
					Msg("Trailing stop tightened")
			}
		} else {
			candidate := pos.EntryPrice * (1 - trailingBuffer)
			if candidate < pos.StopLoss {
				pos.StopLoss = candidate
				e.logger.Debug().
					Str("symbol", symbol).
					Float64("stop_loss", candidate).
					Msg("Trailing stop tightened")
			}
		}
	}

	return nil, nil
}

// LiquidateAll force-closes every open position at the latest price
func (e *Engine) LiquidateAll(prices map[string]float64, reason string) []Fill {
	var fills []Fill
	for symbol := range e.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			// No usable price; fall back to entry so the position
			// still unwinds.
			price = e.positions[symbol].EntryPrice
		}
		fill, err := e.Close(symbol, price, reason)
		if err != nil {
			e.logger.Error().Err(err).Str("symbol", symbol).Msg("Liquidation close failed")
			continue
		}
		fills = append(fills, *fill)
	}
	return fills
}

// Value computes the mark-to-market portfolio value.
// Longs contribute qty·price, shorts qty·(entry − price).
func (e *Engine) Value(prices map[string]float64) float64 {
	value := e.cash
	for symbol, pos := range e.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			price = pos.EntryPrice
		}
		if pos.Side == SideLong {
			value += pos.Quantity * price
		} else {
			value += pos.Quantity * (pos.EntryPrice - price)
		}
	}
	return value
}

// Exposure returns the absolute mark-to-market value of the position in
// a symbol, zero when none is open.
func (e *Engine) Exposure(symbol string, price float64) float64 {
	pos, ok := e.positions[symbol]
	if !ok {
		return 0
	}
	if price <= 0 {
		price = pos.EntryPrice
	}
	return pos.Quantity * price
}

// UpdatePeak advances the all-time-high watermark; called once per tick
// after all trading activity.
func (e *Engine) UpdatePeak(value float64) {
	if value > e.peakValue {
		e.peakValue = value
	}
}

func (e *Engine) log(fill Fill) *Fill {
	fill.ID = uuid.New().String()
	fill.Timestamp = e.now()
	e.tradeLog = append(e.tradeLog, fill)

	e.logger.Info().
		Str("symbol", fill.Symbol).
		Str("action", string(fill.Action)).
		Float64("price", fill.ExecutionPrice).
		Float64("quantity", fill.Quantity).
		Float64("fee", fill.Fee).
		Float64("pnl", fill.PnL).
		Str("reason", fill.Reason).
		Msg("Fill executed")
	return &e.tradeLog[len(e.tradeLog)-1]
}
