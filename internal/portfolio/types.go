package portfolio

import "time"

// Side is the direction of an open position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// FillAction identifies what a fill did
type FillAction string

const (
	ActionOpenLong   FillAction = "OPEN_LONG"
	ActionCloseLong  FillAction = "CLOSE_LONG"
	ActionOpenShort  FillAction = "OPEN_SHORT"
	ActionCloseShort FillAction = "CLOSE_SHORT"
)

// Exit and entry reasons recorded on fills
const (
	ReasonSignal       = "SIGNAL"
	ReasonStopLoss     = "STOP_LOSS"
	ReasonTakeProfit   = "TAKE_PROFIT"
	ReasonMACDExit     = "MACD_EXIT"
	ReasonIndicator    = "INDICATOR_EXIT"
	ReasonSecureProfit = "SECURE_PROFIT"
	ReasonKillSwitch   = "KILL_SWITCH"
	ReasonManual       = "MANUAL"
)

// Position is a single open position, one per symbol
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"` // post-slippage execution price
	EntryTime  time.Time `json:"entry_time"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	ATRAtEntry float64   `json:"atr_at_entry"`
}

// ProfitPct is the signed unrealised return at the given price, as a fraction
func (p *Position) ProfitPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideLong {
		return (price - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - price) / p.EntryPrice
}

// Fill records an executed trade
type Fill struct {
	ID             string     `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	Symbol         string     `json:"symbol"`
	Action         FillAction `json:"action"`
	ExecutionPrice float64    `json:"execution_price"`
	Quantity       float64    `json:"quantity"`
	GrossValue     float64    `json:"gross_value"`
	Fee            float64    `json:"fee"`
	NetValue       float64    `json:"net_proceeds_or_cost"`
	PnL            float64    `json:"pnl,omitempty"`
	PnLPct         float64    `json:"pnl_pct,omitempty"`
	Reason         string     `json:"reason"`
}
