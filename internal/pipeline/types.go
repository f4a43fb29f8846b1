package pipeline

import (
	"time"

	"github.com/curvewatch/solana-sniper/internal/curve"
)

// Decision is the terminal outcome of validating one candidate.
type Decision string

const (
	DecisionEnter Decision = "ENTER"
	DecisionPass  Decision = "PASS"
)

// Tier buckets the momentum score; it controls position sizing.
type Tier string

const (
	TierCold    Tier = "COLD"
	TierWarm    Tier = "WARM"
	TierHot     Tier = "HOT"
	TierVeryHot Tier = "VERY_HOT"
	TierExtreme Tier = "EXTREME"
)

// Rejection reasons for PASS outcomes. These are normal business outcomes,
// tagged for metrics; they are not errors.
const (
	ReasonCurveNotFound      = "CURVE_NOT_FOUND"
	ReasonCurveActivityLow   = "CURVE_ACTIVITY_LOW"
	ReasonCurveGraduated     = "CURVE_GRADUATED"
	ReasonCurveTooMature     = "CURVE_TOO_MATURE"
	ReasonMintNotInitialized = "MINT_NOT_INITIALIZED"
	ReasonLiquidityTooLow    = "LIQUIDITY_TOO_LOW"
	ReasonHoldersTooFew      = "HOLDERS_TOO_FEW"
	ReasonVolumeTooLow       = "VOLUME_TOO_LOW"
	ReasonInitialBuyTooSmall = "INITIAL_BUY_TOO_SMALL"
	ReasonMomentumBelow      = "MOMENTUM_BELOW_THRESHOLD"
	ReasonValidationError    = "VALIDATION_ERROR"
)

// Result is the immutable outcome of one validation.
type Result struct {
	Mint     string
	Decision Decision
	Score    float64
	Tier     Tier
	Reason   string // set only on PASS
}

// Signal is emitted on an ENTER decision and consumed by trade execution.
type Signal struct {
	Mint           string
	Score          float64
	Tier           Tier
	SizeMultiplier float64
	Curve          curve.State
	Decimals       uint8
	GeneratedAt    time.Time
}
