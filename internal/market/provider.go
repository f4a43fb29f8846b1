// Package market provides the data the validation pipeline cannot read
// directly off the curve account: holder and volume estimates, and the size
// of the creator's initial buy.
package market

import (
	"context"

	"github.com/curvewatch/solana-sniper/internal/curve"
)

// Snapshot is the market view of one asset at validation time.
type Snapshot struct {
	Holders       int
	VolumeSOL     float64
	InitialBuySOL float64
}

// Provider estimates market activity for an asset. Implementations must be
// deterministic for identical inputs; randomized stand-ins belong in tests.
type Provider interface {
	Estimate(ctx context.Context, mint string, state curve.State) (Snapshot, error)
}

// CurveProvider derives estimates from the curve reserves alone. It needs no
// extra remote calls, which keeps validation inside the RPC budget: quote
// inflow approximates traded volume, and holder count is approximated from
// how far the sale has spread relative to a typical initial buy.
type CurveProvider struct {
	// AvgBuySOL is the assumed average position size used to turn quote
	// inflow into a holder estimate.
	AvgBuySOL float64
}

// NewCurveProvider returns a provider with the default average-buy divisor.
func NewCurveProvider() *CurveProvider {
	return &CurveProvider{AvgBuySOL: 0.05}
}

func (p *CurveProvider) Estimate(_ context.Context, _ string, state curve.State) (Snapshot, error) {
	inflow := curve.LiquiditySOL(state)

	avg := p.AvgBuySOL
	if avg <= 0 {
		avg = 0.05
	}

	holders := int(inflow / avg)
	if holders < 1 && inflow > 0 {
		holders = 1
	}

	return Snapshot{
		Holders: holders,
		// Quote inflow is a floor on traded volume: every lamport in the
		// real reserves was bought at least once.
		VolumeSOL:     inflow,
		InitialBuySOL: inflow,
	}, nil
}
