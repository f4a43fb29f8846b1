package curve

import "math/bits"

// Stage buckets curve progress into named ranges. Buckets are monotonic in
// progress, ending at graduation.
type Stage string

const (
	StageEarly     Stage = "early"     // 0-20%
	StageBuilding  Stage = "building"  // 20-50%
	StageMomentum  Stage = "momentum"  // 50-80%
	StageLate      Stage = "late"      // 80-99%
	StageGraduated Stage = "graduated" // >=99%
)

// Progress returns the percentage of the tracked supply already sold off the
// curve, rounded to two decimals and clamped to [0, 100].
//
// The ratio is computed in integer arithmetic (multiply before divide, scaled
// by 10000) so that u64 supplies near the top of the range cannot lose
// precision or overflow a float mantissa.
func Progress(s State, supply uint64) float64 {
	if supply == 0 {
		return 0
	}
	if s.RealBase >= supply {
		return 0
	}
	sold := supply - s.RealBase
	// sold*10000 can exceed 64 bits for base units scaled by 10^6 decimals,
	// so the ratio is taken through a 128-bit intermediate.
	hi, lo := bits.Mul64(sold, 10000)
	scaled, _ := bits.Div64(hi, lo, supply)
	pct := float64(scaled) / 100.0
	if pct > 100 {
		pct = 100
	}
	return pct
}

// StageFor maps a progress percentage onto its named bucket.
func StageFor(progress float64) Stage {
	switch {
	case progress >= 99:
		return StageGraduated
	case progress >= 80:
		return StageLate
	case progress >= 50:
		return StageMomentum
	case progress >= 20:
		return StageBuilding
	default:
		return StageEarly
	}
}
