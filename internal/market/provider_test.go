package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvewatch/solana-sniper/internal/curve"
)

func TestCurveProviderEstimate(t *testing.T) {
	p := NewCurveProvider()

	// 1 SOL of quote inflow at a 0.05 SOL average buy.
	snap, err := p.Estimate(context.Background(), "mint-1", curve.State{RealQuote: 1_000_000_000})
	require.NoError(t, err)

	assert.Equal(t, 20, snap.Holders)
	assert.InDelta(t, 1.0, snap.VolumeSOL, 1e-9)
	assert.InDelta(t, 1.0, snap.InitialBuySOL, 1e-9)
}

func TestCurveProviderDeterministic(t *testing.T) {
	p := NewCurveProvider()
	state := curve.State{RealQuote: 3_700_000_000}

	a, err := p.Estimate(context.Background(), "mint-1", state)
	require.NoError(t, err)
	b, err := p.Estimate(context.Background(), "mint-1", state)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCurveProviderTinyInflow(t *testing.T) {
	p := NewCurveProvider()

	snap, err := p.Estimate(context.Background(), "mint-1", curve.State{RealQuote: 10_000_000})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Holders, "any inflow implies at least one holder")

	snap, err = p.Estimate(context.Background(), "mint-1", curve.State{})
	require.NoError(t, err)
	assert.Zero(t, snap.Holders)
}
