// Package position tracks open positions through their lifecycle and applies
// the tiered exit strategy.
package position

import (
	"fmt"
	"strconv"
	"time"
)

// State is a position lifecycle state. IN_POSITION may transition to
// TIER1_EXITED, CLOSED or STOPPED; TIER1_EXITED may transition to CLOSED or
// STOPPED; CLOSED and STOPPED are terminal.
type State string

const (
	StateInPosition  State = "IN_POSITION"
	StateTier1Exited State = "TIER1_EXITED"
	StateClosed      State = "CLOSED"
	StateStopped     State = "STOPPED"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateStopped
}

// Exit reasons recorded on trades and close events.
const (
	ExitTier1    = "TIER1_TAKE_PROFIT"
	ExitTier2    = "TIER2_TAKE_PROFIT"
	ExitStopLoss = "STOP_LOSS"
	ExitDecay    = "TIME_DECAY"
	ExitAnomaly  = "ANOMALY"
)

// Position is one tracked holding. Every field with a JSON tag survives a
// restart via snapshots; the price window is monitoring-local and rebuilds
// from live ticks after recovery.
type Position struct {
	ID           string `json:"id"`
	Mint         string `json:"mint"`
	CurveAddress string `json:"curve_address"`
	State        State  `json:"state"`
	Tier         string `json:"tier"`
	Decimals     uint8  `json:"decimals"`
	Tier1Exited  bool   `json:"tier1_exited"`
	Tier2Exited  bool   `json:"tier2_exited"`

	EntryPrice    float64   `json:"entry_price"`
	EntryTime     time.Time `json:"entry_time"`
	EntrySlot     uint64    `json:"entry_slot"`
	TokenQty      float64   `json:"token_qty"`
	RemainingQty  float64   `json:"remaining_qty"`
	QuoteInvested float64   `json:"quote_invested"`

	// RealizedSOL accumulates sell proceeds across partial exits.
	RealizedSOL      float64 `json:"realized_sol"`
	PeakLiquiditySOL float64 `json:"peak_liquidity_sol"`
	LastPrice        float64 `json:"last_price"`

	priceWindow []float64
}

// PnLPct returns the unrealized move of price against the entry, in percent.
func (p *Position) PnLPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// observePrice appends a tick to the acceleration window, keeping the last
// accelWindow samples.
func (p *Position) observePrice(price float64) {
	p.LastPrice = price
	p.priceWindow = append(p.priceWindow, price)
	if len(p.priceWindow) > accelWindow {
		p.priceWindow = p.priceWindow[len(p.priceWindow)-accelWindow:]
	}
}

// accelWindow is how many monitor ticks feed the acceleration estimate.
const accelWindow = 5

// accelerationPct measures the price change across the window, in percent.
// A short window returns 0 so tier-2 cannot fire before enough ticks exist.
func (p *Position) accelerationPct() float64 {
	if len(p.priceWindow) < accelWindow {
		return 0
	}
	first := p.priceWindow[0]
	if first == 0 {
		return 0
	}
	return (p.priceWindow[len(p.priceWindow)-1] - first) / first * 100
}

// Trade is one executed buy or sell, archived for the daily report.
type Trade struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Mint       string    `json:"mint"`
	Action     string    `json:"action"` // buy or sell
	AmountSOL  float64   `json:"amount_sol"`
	AmountTok  float64   `json:"amount_tokens"`
	Price      float64   `json:"price"`
	EntryPrice float64   `json:"entry_price"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	Reason     string    `json:"reason"`
	Success    bool      `json:"success"`
}

// CSVHeaders returns the column names for trade CSV export.
func CSVHeaders() []string {
	return []string{
		"id", "timestamp", "mint", "action", "amount_sol", "amount_tokens",
		"price", "entry_price", "pnl", "pnl_percent", "reason", "success",
	}
}

// ToCSV renders the trade as a CSV row matching CSVHeaders.
func (t Trade) ToCSV() []string {
	return []string{
		t.ID,
		t.Timestamp.Format(time.RFC3339),
		t.Mint,
		t.Action,
		fmt.Sprintf("%.9f", t.AmountSOL),
		fmt.Sprintf("%.6f", t.AmountTok),
		fmt.Sprintf("%.12f", t.Price),
		fmt.Sprintf("%.12f", t.EntryPrice),
		fmt.Sprintf("%.9f", t.PnL),
		fmt.Sprintf("%.2f", t.PnLPercent),
		t.Reason,
		strconv.FormatBool(t.Success),
	}
}

// DailyStats aggregates one UTC day of trading. The date string keys the
// rollover; realized PnL feeds the circuit breaker.
type DailyStats struct {
	Date     string  `json:"date"` // 2006-01-02, UTC
	Trades   []Trade `json:"trades"`
	TotalPnL float64 `json:"total_pnl"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Aborted  int     `json:"aborted"` // anomaly exits, regardless of PnL
}

// Record folds one executed trade into the day's totals.
func (d *DailyStats) Record(t Trade) {
	d.Trades = append(d.Trades, t)
	if t.Action != "sell" {
		return
	}
	d.TotalPnL += t.PnL
	if t.Reason == ExitAnomaly {
		d.Aborted++
	}
	if t.PnL > 0 {
		d.Wins++
	} else if t.PnL < 0 {
		d.Losses++
	}
}
