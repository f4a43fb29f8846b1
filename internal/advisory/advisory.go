// Package advisory defines the capability interface for optional heuristic
// strategies. The pipeline consumes only this interface; concrete advisors
// contribute a bounded adjustment to the momentum score and are never load
// bearing for a decision.
package advisory

import (
	"context"

	"github.com/curvewatch/solana-sniper/internal/curve"
	"github.com/curvewatch/solana-sniper/internal/market"
)

// Signal is the normalized output of one advisor.
type Signal struct {
	Score      float64 // -100..100, sign indicates direction
	Confidence float64 // 0..1
	Rationale  string
}

// Input is what an advisor may look at.
type Input struct {
	Mint     string
	Curve    curve.State
	Progress float64
	Market   market.Snapshot
}

// Advisor analyzes a candidate and returns a normalized signal. Errors are
// ignored by the caller: an advisor that cannot answer contributes nothing.
type Advisor interface {
	Name() string
	Analyze(ctx context.Context, in Input) (Signal, error)
}

// CurveMomentumAdvisor favors candidates in the mid-curve momentum band where
// buy pressure historically continues, and fades late-curve entries.
type CurveMomentumAdvisor struct{}

func (CurveMomentumAdvisor) Name() string { return "curve_momentum" }

func (CurveMomentumAdvisor) Analyze(_ context.Context, in Input) (Signal, error) {
	switch curve.StageFor(in.Progress) {
	case curve.StageMomentum:
		return Signal{Score: 20, Confidence: 0.6, Rationale: "mid-curve momentum band"}, nil
	case curve.StageBuilding:
		return Signal{Score: 10, Confidence: 0.5, Rationale: "building phase"}, nil
	case curve.StageLate:
		return Signal{Score: -15, Confidence: 0.7, Rationale: "late curve, graduation risk"}, nil
	case curve.StageGraduated:
		return Signal{Score: -100, Confidence: 1.0, Rationale: "already graduated"}, nil
	default:
		return Signal{Score: 0, Confidence: 0.3, Rationale: "too early to judge"}, nil
	}
}
