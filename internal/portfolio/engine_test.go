package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidrv/cryptoguard/internal/config"
	"github.com/davidrv/cryptoguard/internal/indicators"
	"github.com/davidrv/cryptoguard/internal/signal"
)

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		InitialCapital:  1000,
		PositionSizePct: 0.10,
		MaxPositions:    3,
		StopLossPct:     0.02,
		TakeProfitPct:   0.03,
		FeePct:          0.001,
		SlippagePct:     0.0005,
		AllowShort:      true,
		MinOrderValue:   1.0,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(testTradingConfig(), zerolog.Nop())
}

func holdSignal() signal.Signal {
	return signal.Signal{Action: signal.ActionHold}
}

func TestOpenLongCostModel(t *testing.T) {
	e := newTestEngine(t)

	fill, err := e.OpenLong("BTC-USD", 100, 1.0, 1.0)
	require.NoError(t, err)

	// Budget 10% of cash, slippage up, fee on gross value
	assert.InDelta(t, 100.05, fill.ExecutionPrice, 1e-9)
	assert.InDelta(t, 100.0, fill.GrossValue, 1e-9)
	assert.InDelta(t, 0.1, fill.Fee, 1e-9)
	assert.InDelta(t, 100.0/100.05, fill.Quantity, 1e-9)
	assert.InDelta(t, 899.9, e.Cash(), 1e-9)

	pos := e.Position("BTC-USD")
	require.NotNil(t, pos)
	assert.Equal(t, SideLong, pos.Side)
	// Stop is the more protective of the percent stop and the ATR stop
	assert.InDelta(t, 100.05-2*1.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 100.05*1.03, pos.TakeProfit, 1e-9)
}

func TestOpenLongHalvedUnderWarning(t *testing.T) {
	e := newTestEngine(t)

	fill, err := e.OpenLong("BTC-USD", 100, 0, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 50.0, fill.GrossValue, 1e-9)
	assert.InDelta(t, 0.05, fill.Fee, 1e-9)
	assert.InDelta(t, 50.0/100.05, fill.Quantity, 1e-9)
}

func TestOpenLongRejectsBelowMinOrder(t *testing.T) {
	cfg := testTradingConfig()
	cfg.InitialCapital = 5 // 10% budget = 0.50, under the $1 floor
	e := NewEngine(cfg, zerolog.Nop())

	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below minimum")
}

func TestOpenShortCollateralModel(t *testing.T) {
	e := newTestEngine(t)

	fill, err := e.OpenShort("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	// Slippage works against the seller; only the fee leaves cash
	assert.InDelta(t, 99.95, fill.ExecutionPrice, 1e-9)
	assert.InDelta(t, 100.0, fill.GrossValue, 1e-9)
	assert.InDelta(t, 0.1, fill.Fee, 1e-9)
	assert.InDelta(t, 999.9, e.Cash(), 1e-9)

	pos := e.Position("BTC-USD")
	require.NotNil(t, pos)
	assert.Equal(t, SideShort, pos.Side)
	assert.InDelta(t, 99.95*1.02, pos.StopLoss, 1e-9)
	assert.InDelta(t, 99.95*0.97, pos.TakeProfit, 1e-9)
}

func TestOpenShortDisabled(t *testing.T) {
	cfg := testTradingConfig()
	cfg.AllowShort = false
	e := NewEngine(cfg, zerolog.Nop())

	_, err := e.OpenShort("BTC-USD", 100, 0, 1.0)
	assert.Error(t, err)
}

func TestCloseLongRoundTripCosts(t *testing.T) {
	e := newTestEngine(t)

	open, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	// Flat market close: the loss is exactly fees plus double slippage
	fill, err := e.Close("BTC-USD", 100, ReasonManual)
	require.NoError(t, err)

	assert.Equal(t, ActionCloseLong, fill.Action)
	assert.InDelta(t, 99.95, fill.ExecutionPrice, 1e-9)
	assert.Less(t, fill.PnL, 0.0)

	expectedProceeds := open.Quantity * 99.95
	expectedFee := expectedProceeds * 0.001
	expectedPnL := (expectedProceeds - expectedFee) - open.Quantity*100.05
	assert.InDelta(t, expectedPnL, fill.PnL, 1e-9)

	assert.Nil(t, e.Position("BTC-USD"))
	assert.InDelta(t, 899.9+expectedProceeds-expectedFee, e.Cash(), 1e-9)
}

func TestCloseLongProfit(t *testing.T) {
	e := newTestEngine(t)

	open, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	fill, err := e.Close("BTC-USD", 110, ReasonTakeProfit)
	require.NoError(t, err)

	proceeds := open.Quantity * 110 * (1 - 0.0005)
	fee := proceeds * 0.001
	assert.InDelta(t, (proceeds-fee)-open.Quantity*100.05, fill.PnL, 1e-9)
	assert.Greater(t, fill.PnL, 0.0)
	assert.InDelta(t, fill.PnL/(open.Quantity*100.05)*100, fill.PnLPct, 1e-9)
}

func TestCloseShortProfit(t *testing.T) {
	e := newTestEngine(t)

	open, err := e.OpenShort("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	cashAfterOpen := e.Cash()

	fill, err := e.Close("BTC-USD", 90, ReasonTakeProfit)
	require.NoError(t, err)

	cost := open.Quantity * 90 * (1 + 0.0005)
	fee := cost * 0.001
	expectedPnL := open.Quantity*99.95 - (cost + fee)
	assert.InDelta(t, expectedPnL, fill.PnL, 1e-9)
	assert.Greater(t, fill.PnL, 0.0)
	assert.InDelta(t, cashAfterOpen+expectedPnL, e.Cash(), 1e-9)
}

func TestCanOpenLimits(t *testing.T) {
	e := newTestEngine(t)

	for _, sym := range []string{"BTC-USD", "ETH-USD", "SOL-USD"} {
		_, err := e.OpenLong(sym, 100, 0, 1.0)
		require.NoError(t, err)
	}

	assert.False(t, e.CanOpen("DOGE-USD"))
	_, err := e.OpenLong("DOGE-USD", 100, 0, 1.0)
	assert.Error(t, err)

	// Same symbol twice is also rejected
	_, err = e.Close("BTC-USD", 100, ReasonManual)
	require.NoError(t, err)
	assert.True(t, e.CanOpen("DOGE-USD"))
	assert.False(t, e.CanOpen("ETH-USD"))
}

func TestCheckExitStopLoss(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	stop := e.Position("BTC-USD").StopLoss

	fill, err := e.CheckExit("BTC-USD", stop-0.01, holdSignal())
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonStopLoss, fill.Reason)
	assert.Nil(t, e.Position("BTC-USD"))
}

func TestCheckExitShortStopLoss(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenShort("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	stop := e.Position("BTC-USD").StopLoss

	fill, err := e.CheckExit("BTC-USD", stop+0.01, holdSignal())
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonStopLoss, fill.Reason)
}

func TestCheckExitTakeProfit(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	tp := e.Position("BTC-USD").TakeProfit

	fill, err := e.CheckExit("BTC-USD", tp+0.01, holdSignal())
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonTakeProfit, fill.Reason)
}

func TestCheckExitMACDOnlyInProfit(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	bearishCross := signal.Signal{
		Action:     signal.ActionHold,
		Indicators: indicators.IndicatorSet{MACD: indicators.MACDResult{Line: -0.5, Signal: 0.2}},
	}

	// Underwater: the crossover is ignored
	fill, err := e.CheckExit("BTC-USD", 100.0, bearishCross)
	require.NoError(t, err)
	assert.Nil(t, fill)

	// In profit past 1%: the crossover closes the position
	fill, err = e.CheckExit("BTC-USD", 101.2, bearishCross)
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonMACDExit, fill.Reason)
}

func TestCheckExitStrongInverseSignal(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	sell := signal.Signal{Action: signal.ActionSell, Confidence: 55}

	fill, err := e.CheckExit("BTC-USD", 101.2, sell)
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonIndicator, fill.Reason)
}

func TestCheckExitSecureProfit(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	weakSell := signal.Signal{Action: signal.ActionSell, Confidence: 40}

	// +1.2% profit with a weak opposing signal: not enough
	fill, err := e.CheckExit("BTC-USD", 101.2, weakSell)
	require.NoError(t, err)
	assert.Nil(t, fill)

	// +2.2% profit crosses the secure-profit threshold
	fill, err = e.CheckExit("BTC-USD", 102.3, weakSell)
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonSecureProfit, fill.Reason)
}

func TestCheckExitTrailingStop(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	entry := e.Position("BTC-USD").EntryPrice

	// +1.6% profit tightens the stop to break-even plus buffer
	fill, err := e.CheckExit("BTC-USD", entry*1.016, holdSignal())
	require.NoError(t, err)
	require.Nil(t, fill)
	assert.InDelta(t, entry*1.005, e.Position("BTC-USD").StopLoss, 1e-9)

	// The stop never loosens afterwards
	_, err = e.CheckExit("BTC-USD", entry*1.015, holdSignal())
	require.NoError(t, err)
	assert.InDelta(t, entry*1.005, e.Position("BTC-USD").StopLoss, 1e-9)

	// Falling back to the tightened stop closes at break-even-ish
	fill, err = e.CheckExit("BTC-USD", entry*1.004, holdSignal())
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonStopLoss, fill.Reason)
}

func TestCheckExitShortTrailingStop(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenShort("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	entry := e.Position("BTC-USD").EntryPrice

	_, err = e.CheckExit("BTC-USD", entry*0.984, holdSignal())
	require.NoError(t, err)
	assert.InDelta(t, entry*0.995, e.Position("BTC-USD").StopLoss, 1e-9)
}

func TestValueMarksLongsAndShorts(t *testing.T) {
	e := newTestEngine(t)

	longFill, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	shortFill, err := e.OpenShort("ETH-USD", 50, 0, 1.0)
	require.NoError(t, err)

	prices := map[string]float64{"BTC-USD": 110, "ETH-USD": 45}
	want := e.Cash() +
		longFill.Quantity*110 +
		shortFill.Quantity*(shortFill.ExecutionPrice-45)
	assert.InDelta(t, want, e.Value(prices), 1e-9)
}

func TestLiquidateAll(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	_, err = e.OpenShort("ETH-USD", 50, 0, 1.0)
	require.NoError(t, err)

	fills := e.LiquidateAll(map[string]float64{"BTC-USD": 100, "ETH-USD": 50}, ReasonKillSwitch)

	assert.Len(t, fills, 2)
	assert.Equal(t, 0, e.OpenPositionCount())
	for _, fill := range fills {
		assert.Equal(t, ReasonKillSwitch, fill.Reason)
	}
}

func TestUpdatePeakMonotonic(t *testing.T) {
	e := newTestEngine(t)

	e.UpdatePeak(1100)
	assert.InDelta(t, 1100.0, e.PeakValue(), 1e-9)
	e.UpdatePeak(1050)
	assert.InDelta(t, 1100.0, e.PeakValue(), 1e-9)
}

func TestExposure(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, 0.0, e.Exposure("BTC-USD", 100))

	fill, err := e.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, fill.Quantity*110, e.Exposure("BTC-USD", 110), 1e-9)
}
