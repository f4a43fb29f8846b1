package curve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSupply uint64 = 1_000_000_000_000_000

func TestProgress(t *testing.T) {
	tests := []struct {
		name     string
		realBase uint64
		want     float64
	}{
		{"nothing sold", testSupply, 0},
		{"forty percent sold", testSupply - testSupply*40/100, 40},
		{"half sold", testSupply / 2, 50},
		{"graduation threshold", testSupply * 5 / 1000, 99.5},
		{"fully sold", 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Progress(State{RealBase: tt.realBase}, testSupply)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestProgressZeroSupply(t *testing.T) {
	assert.Zero(t, Progress(State{RealBase: 123}, 0))
}

func TestProgressReservesExceedSupply(t *testing.T) {
	assert.Zero(t, Progress(State{RealBase: testSupply + 1}, testSupply))
}

func TestProgressMonotonic(t *testing.T) {
	// Progress never decreases as reserves drain.
	prev := -1.0
	for remaining := testSupply; ; remaining -= testSupply / 20 {
		got := Progress(State{RealBase: remaining}, testSupply)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, 100.0)
		prev = got
		if remaining < testSupply/20 {
			break
		}
	}
}

func TestProgressTwoDecimalResolution(t *testing.T) {
	// 12.34% sold must come back as exactly 12.34, not a truncation artifact.
	sold := testSupply * 1234 / 10000
	got := Progress(State{RealBase: testSupply - sold}, testSupply)
	assert.InDelta(t, 12.34, got, 0.001)
}

func TestStageFor(t *testing.T) {
	tests := []struct {
		progress float64
		want     Stage
	}{
		{0, StageEarly},
		{19.99, StageEarly},
		{20, StageBuilding},
		{49.99, StageBuilding},
		{50, StageMomentum},
		{79.99, StageMomentum},
		{80, StageLate},
		{98.99, StageLate},
		{99, StageGraduated},
		{100, StageGraduated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StageFor(tt.progress), "progress %.2f", tt.progress)
	}
}
