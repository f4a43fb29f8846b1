package pipeline

import (
	"math"

	"github.com/curvewatch/solana-sniper/internal/config"
)

// Weights are the normalized momentum score weights. They must sum to 1,
// which keeps the composite inside [0, 100].
type Weights struct {
	Volume float64
	Holder float64
	Curve  float64
}

// volumeSubScore normalizes traded volume (SOL) onto 0-100. Two SOL of
// traded volume saturates the sub-score.
func volumeSubScore(volumeSOL float64) float64 {
	return clampScore(volumeSOL * 50)
}

// holderSubScore normalizes the holder estimate onto 0-100. Fifty holders
// saturate the sub-score.
func holderSubScore(holders int) float64 {
	return clampScore(float64(holders) * 2)
}

// curveSubScore peaks at mid-curve: 50% progress scores 100, falling off
// linearly toward both the untraded start and graduation.
func curveSubScore(progress float64) float64 {
	return clampScore(100 - math.Abs(progress-50)*2)
}

// momentumScore is the weighted composite. Deterministic for identical
// sub-scores and weights.
func momentumScore(volumeSOL float64, holders int, progress float64, w Weights) float64 {
	return w.Volume*volumeSubScore(volumeSOL) +
		w.Holder*holderSubScore(holders) +
		w.Curve*curveSubScore(progress)
}

// earlyScore is the reduced-confidence score for freshly minted assets where
// no mint record has propagated yet: a base constant plus progress-band and
// liquidity-tier bonuses, capped at 100.
func earlyScore(progress, liquiditySOL float64) float64 {
	score := 35.0

	switch {
	case progress >= 10:
		score += 15
	case progress >= 3:
		score += 10
	}

	switch {
	case liquiditySOL >= 2:
		score += 25
	case liquiditySOL >= 1:
		score += 15
	case liquiditySOL >= 0.5:
		score += 5
	}

	return clampScore(score)
}

// tierFor assigns a tier from descending score cutoffs. Anything below the
// configured minimum score never reaches this function.
func tierFor(score float64) Tier {
	switch {
	case score >= 90:
		return TierExtreme
	case score >= 75:
		return TierVeryHot
	case score >= 55:
		return TierHot
	case score >= 40:
		return TierWarm
	default:
		return TierCold
	}
}

// sizeMultiplierFor maps a tier onto a position-size multiplier.
func sizeMultiplierFor(tier Tier) float64 {
	switch tier {
	case TierExtreme:
		return 1.5
	case TierVeryHot:
		return 1.25
	case TierHot:
		return 1.0
	case TierWarm:
		return 0.75
	default:
		return 0
	}
}

func weightsFrom(cfg config.PipelineConfig) Weights {
	return Weights{
		Volume: cfg.VolumeWeight,
		Holder: cfg.HolderWeight,
		Curve:  cfg.CurveWeight,
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
