package position

import (
	"fmt"

	"github.com/curvewatch/solana-sniper/internal/curve"
)

// RiskFlagger inspects live curve state for a held position and can force an
// immediate exit.
type RiskFlagger interface {
	// HighRisk returns true and a short reason when the position should be
	// abandoned regardless of PnL.
	HighRisk(state curve.State, p *Position) (bool, string)
}

// LiquidityDrainDetector flags a position when the curve's real quote
// reserves collapse below a fraction of the peak observed while holding.
// A fast drain usually means the deployer is pulling out.
type LiquidityDrainDetector struct {
	// MaxDrawdownPct is how far liquidity may fall from its peak, in
	// percent, before the detector fires.
	MaxDrawdownPct float64
}

// NewLiquidityDrainDetector returns a detector firing at a 40% drain.
func NewLiquidityDrainDetector() *LiquidityDrainDetector {
	return &LiquidityDrainDetector{MaxDrawdownPct: 40}
}

func (d *LiquidityDrainDetector) HighRisk(state curve.State, p *Position) (bool, string) {
	liq := curve.LiquiditySOL(state)
	if liq > p.PeakLiquiditySOL {
		p.PeakLiquiditySOL = liq
		return false, ""
	}
	if p.PeakLiquiditySOL == 0 {
		return false, ""
	}
	drawdown := (p.PeakLiquiditySOL - liq) / p.PeakLiquiditySOL * 100
	if drawdown >= d.MaxDrawdownPct {
		return true, fmt.Sprintf("liquidity drained %.1f%% from peak %.3f SOL", drawdown, p.PeakLiquiditySOL)
	}
	return false, ""
}
