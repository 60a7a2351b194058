package trader

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidrv/cryptoguard/internal/alerts"
	"github.com/davidrv/cryptoguard/internal/config"
	"github.com/davidrv/cryptoguard/internal/market"
	"github.com/davidrv/cryptoguard/internal/portfolio"
	"github.com/davidrv/cryptoguard/internal/risk"
)

type stubQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	closes map[string][]float64
}

func newStubQuotes() *stubQuotes {
	return &stubQuotes{
		prices: make(map[string]float64),
		closes: make(map[string][]float64),
	}
}

func (s *stubQuotes) set(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *stubQuotes) Resolve(ctx context.Context, symbol string) *market.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[symbol]
	if !ok {
		return nil
	}
	return &market.Quote{
		Symbol:    symbol,
		Price:     price,
		Volume24h: 1000,
		Closes:    s.closes[symbol],
		Timestamp: time.Now(),
		Source:    market.SourceCoinbase,
	}
}

func testConfig(tb testing.TB) *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Mode:               "paper",
			Symbols:            []string{"BTC-USD"},
			InitialCapital:     1000,
			PositionSizePct:    0.10,
			MaxPositions:       3,
			StopLossPct:        0.02,
			TakeProfitPct:      0.03,
			FeePct:             0.001,
			SlippagePct:        0.0005,
			AllowShort:         true,
			ShortMinConfidence: 40,
			MinOrderValue:      1,
			TickIntervalS:      30,
			SnapshotEvery:      0,
			SnapshotDir:        tb.TempDir(),
		},
		Risk: config.RiskConfig{
			MDDWarning:              0.03,
			MDDCritical:             0.05,
			MDDEmergency:            0.08,
			CircuitBreakerCooldownS: 3600,
			BlackSwanFreezeS:        86400,
			DailyLossLimit:          0.08,
			GlobalStopLossPct:       0.20,
			MaxPositionPct:          0.25,
			VolSpikeFactor:          3.0,
			FlashCrashWindow:        60,
			FlashCrashDropPct:       0.15,
		},
	}
}

func newTestTrader(tb testing.TB, cfg *config.Config, quotes *stubQuotes) *Trader {
	logger := zerolog.Nop()
	deps := Deps{
		Quotes:    quotes,
		History:   market.NewHistory(500),
		Risk:      risk.NewController(cfg.Risk, logger),
		Engine:    portfolio.NewEngine(cfg.Trading, logger),
		Alerts:    alerts.NewManager(alerts.NewLogAlerter()),
		Snapshots: NewSnapshotWriter(cfg.Trading.SnapshotDir, time.Now(), logger),
	}
	return New(cfg, deps, logger)
}

// A compounding 1%-per-step series produces a BUY: bullish trend, MACD
// histogram positive, and strong momentum.
func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price *= 1.01
	}
	return closes
}

func flatCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100
	}
	return closes
}

func TestTickOpensLongOnBuySignal(t *testing.T) {
	cfg := testConfig(t)
	quotes := newStubQuotes()
	closes := risingCloses(60)
	quotes.closes["BTC-USD"] = closes
	quotes.set("BTC-USD", closes[len(closes)-1]*1.01)

	tr := newTestTrader(t, cfg, quotes)
	tr.Tick(context.Background())

	engine := tr.deps.Engine
	require.Equal(t, 1, engine.OpenPositionCount())
	pos := engine.Position("BTC-USD")
	require.NotNil(t, pos)
	assert.Equal(t, portfolio.SideLong, pos.Side)
	assert.Less(t, engine.Cash(), 1000.0)
}

func TestTickHoldsBelowMinSamples(t *testing.T) {
	cfg := testConfig(t)
	quotes := newStubQuotes()
	quotes.closes["BTC-USD"] = risingCloses(5)
	quotes.set("BTC-USD", 110)

	tr := newTestTrader(t, cfg, quotes)
	tr.Tick(context.Background())

	assert.Equal(t, 0, tr.deps.Engine.OpenPositionCount())
}

func TestTickLiquidatesOnCriticalDrawdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.PositionSizePct = 0.5
	quotes := newStubQuotes()
	quotes.closes["BTC-USD"] = flatCloses(20)
	quotes.set("BTC-USD", 100)

	tr := newTestTrader(t, cfg, quotes)
	tr.Tick(context.Background())
	require.Equal(t, 0, tr.deps.Engine.OpenPositionCount())

	_, err := tr.deps.Engine.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	// 12% price drop puts the portfolio ~6% below peak
	quotes.set("BTC-USD", 88)
	tr.Tick(context.Background())

	engine := tr.deps.Engine
	assert.Equal(t, 0, engine.OpenPositionCount())

	log := engine.TradeLog()
	require.NotEmpty(t, log)
	last := log[len(log)-1]
	assert.Equal(t, portfolio.ReasonKillSwitch, last.Reason)
	assert.Equal(t, portfolio.ActionCloseLong, last.Action)

	require.NotEmpty(t, tr.deps.Risk.Events())
	assert.Equal(t, risk.TriggerCritical, tr.deps.Risk.Events()[0].Trigger)

	halted, _ := tr.Halted()
	assert.False(t, halted)
}

func TestTickHaltsOnGlobalStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.PositionSizePct = 0.9
	quotes := newStubQuotes()
	quotes.closes["BTC-USD"] = flatCloses(20)
	quotes.set("BTC-USD", 100)

	tr := newTestTrader(t, cfg, quotes)
	tr.Tick(context.Background())

	_, err := tr.deps.Engine.OpenLong("BTC-USD", 100, 0, 1.0)
	require.NoError(t, err)

	// 30% crash drops the portfolio under the 20% hard floor
	quotes.set("BTC-USD", 70)
	tr.Tick(context.Background())

	halted, reason := tr.Halted()
	assert.True(t, halted)
	assert.Equal(t, "global stop loss", reason)
	assert.Equal(t, 0, tr.deps.Engine.OpenPositionCount())
}

func TestSnapshotCadence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.SnapshotEvery = 1
	quotes := newStubQuotes()
	quotes.closes["BTC-USD"] = flatCloses(20)
	quotes.set("BTC-USD", 100)

	tr := newTestTrader(t, cfg, quotes)
	tr.Tick(context.Background())

	path := tr.deps.Snapshots.Path()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap SessionSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "paper", snap.Mode)
	assert.Equal(t, 1000.0, snap.InitialCapital)
	assert.Equal(t, 1, snap.Iteration)
	assert.False(t, snap.KillSwitchActive)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	// Second tick overwrites the same session file
	tr.Tick(context.Background())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 2, snap.Iteration)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	quotes := newStubQuotes()
	quotes.closes["BTC-USD"] = flatCloses(20)
	quotes.set("BTC-USD", 100)

	tr := newTestTrader(t, cfg, quotes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// Final snapshot is written on the way out
	_, statErr := os.Stat(tr.deps.Snapshots.Path())
	assert.NoError(t, statErr)
}

func TestRunStopsAfterDuration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.DurationHours = 0.001 // 3.6s of session time
	quotes := newStubQuotes()
	quotes.closes["BTC-USD"] = flatCloses(20)
	quotes.set("BTC-USD", 100)

	tr := newTestTrader(t, cfg, quotes)

	// Each clock read advances a minute, so the first tick overshoots
	// the deadline and the loop exits without sleeping.
	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	})

	require.NoError(t, tr.Run(context.Background()))

	data, err := os.ReadFile(tr.deps.Snapshots.Path())
	require.NoError(t, err)

	var snap SessionSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 1, snap.Iteration)
}
