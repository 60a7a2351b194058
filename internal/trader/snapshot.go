package trader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidrv/cryptoguard/internal/portfolio"
	"github.com/davidrv/cryptoguard/internal/risk"
)

// SessionSnapshot is the persisted view of a trading session
type SessionSnapshot struct {
	Timestamp        time.Time                      `json:"timestamp"`
	Mode             string                         `json:"mode"`
	InitialCapital   float64                        `json:"initial_capital"`
	Cash             float64                        `json:"cash"`
	Positions        map[string]*portfolio.Position `json:"positions"`
	PortfolioValue   float64                        `json:"portfolio_value"`
	PnL              float64                        `json:"pnl"`
	PnLPct           float64                        `json:"pnl_pct"`
	PeakValue        float64                        `json:"peak_value"`
	MaxDrawdown      float64                        `json:"max_drawdown"`
	TotalFeesPaid    float64                        `json:"total_fees_paid"`
	TotalTrades      int                            `json:"total_trades"`
	TradeLog         []portfolio.Fill               `json:"trade_log"`
	RiskEvents       []risk.Event                   `json:"risk_events"`
	KillSwitchActive bool                           `json:"kill_switch_active"`
	Iteration        int                            `json:"iteration"`
}

// SnapshotWriter persists session snapshots to a single per-session file.
// Writes go to a temp file first and are renamed into place so readers
// never observe a partial snapshot.
type SnapshotWriter struct {
	path   string
	logger zerolog.Logger
}

// NewSnapshotWriter creates a writer whose filename is fixed at the
// session start time.
func NewSnapshotWriter(dir string, start time.Time, logger zerolog.Logger) *SnapshotWriter {
	name := fmt.Sprintf("session_%s.json", start.Format("20060102_150405"))
	return &SnapshotWriter{
		path:   filepath.Join(dir, name),
		logger: logger,
	}
}

// Path returns the snapshot file location
func (w *SnapshotWriter) Path() string {
	return w.path
}

// Write persists a snapshot atomically
func (w *SnapshotWriter) Write(snap *SessionSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	w.logger.Debug().
		Str("path", w.path).
		Int("iteration", snap.Iteration).
		Msg("Snapshot written")
	return nil
}
