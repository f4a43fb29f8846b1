package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/position"
	"github.com/curvewatch/solana-sniper/internal/stats"
)

func testStateConfig(dir string) config.StateConfig {
	return config.StateConfig{
		DataDir:          dir,
		WALFlushSize:     100,
		WALFlushInterval: time.Second,
		SnapshotInterval: time.Minute,
		SnapshotKeep:     5,
	}
}

func newTestStateManager(t *testing.T, dir string) *Manager {
	t.Helper()
	return NewManager(testStateConfig(dir), nil, stats.NewCollector(), zaptest.NewLogger(t))
}

func samplePosition(id, mint string, st position.State) position.Position {
	return position.Position{
		ID:            id,
		Mint:          mint,
		State:         st,
		EntryPrice:    100,
		TokenQty:      1,
		RemainingQty:  1,
		QuoteInvested: 0.1,
	}
}

func TestRecoverFromWALOnly(t *testing.T) {
	dir := t.TempDir()

	m1 := newTestStateManager(t, dir)
	_, err := m1.Open()
	require.NoError(t, err)

	m1.RecordSeenSignature("sig-1")
	m1.RecordSeenSignature("sig-2")
	m1.PositionOpened(samplePosition("a", "mint-a", position.StateInPosition))
	m1.TradeExecuted(position.Trade{ID: "t1", Action: "buy", AmountSOL: 0.1})
	m1.Flush()
	// Simulate a crash: no Close, no snapshot.

	m2 := newTestStateManager(t, dir)
	rec, err := m2.Open()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"sig-1", "sig-2"}, rec.SeenSignatures)
	require.Len(t, rec.Positions, 1)
	assert.Equal(t, "mint-a", rec.Positions[0].Mint)
	require.Len(t, rec.Daily.Trades, 1)
	assert.Equal(t, "t1", rec.Daily.Trades[0].ID)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	positions := []position.Position{
		samplePosition("a", "mint-a", position.StateInPosition),
		samplePosition("b", "mint-b", position.StateTier1Exited),
	}
	daily := position.DailyStats{
		Date:     "2026-08-31",
		Trades:   []position.Trade{{ID: "t1", Action: "sell", PnL: 0.5}},
		TotalPnL: 0.5,
		Wins:     1,
	}

	m1 := newTestStateManager(t, dir)
	_, err := m1.Open()
	require.NoError(t, err)
	m1.SetSources(Sources{
		SeenSignatures: func() []string { return []string{"sig-1"} },
		Positions:      func() []position.Position { return positions },
		Daily:          func() position.DailyStats { return daily },
	})
	m1.RecordSeenSignature("sig-1")
	m1.Close()

	m2 := newTestStateManager(t, dir)
	rec, err := m2.Open()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"sig-1"}, rec.SeenSignatures)
	assert.Len(t, rec.Positions, 2)
	assert.InDelta(t, 0.5, rec.Daily.TotalPnL, 1e-9)
	assert.Equal(t, 1, rec.Daily.Wins)
}

func TestReplayIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	m1 := newTestStateManager(t, dir)
	_, err := m1.Open()
	require.NoError(t, err)
	p := samplePosition("a", "mint-a", position.StateInPosition)
	m1.PositionOpened(p)
	p.State = position.StateTier1Exited
	m1.PositionUpdated(p)
	m1.TradeExecuted(position.Trade{ID: "t1", Action: "sell", PnL: 0.1})
	m1.TradeExecuted(position.Trade{ID: "t1", Action: "sell", PnL: 0.1}) // duplicate id
	m1.Flush()

	// Recover twice; the second recovery must see the same state.
	for i := 0; i < 2; i++ {
		m := newTestStateManager(t, dir)
		rec, err := m.Open()
		require.NoError(t, err)

		require.Len(t, rec.Positions, 1, "updates must overwrite, not duplicate")
		assert.Equal(t, position.StateTier1Exited, rec.Positions[0].State)
		assert.Len(t, rec.Daily.Trades, 1, "duplicate trade ids must fold")
	}
}

func TestSnapshotRetention(t *testing.T) {
	dir := t.TempDir()

	m := newTestStateManager(t, dir)
	_, err := m.Open()
	require.NoError(t, err)
	m.SetSources(Sources{})

	for i := 0; i < 7; i++ {
		m.TakeSnapshot()
		time.Sleep(2 * time.Millisecond) // distinct file timestamps
	}

	files, err := snapshotFiles(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	assert.Len(t, files, 5)
}

func TestRecoveryToleratesTornWALTail(t *testing.T) {
	dir := t.TempDir()

	m1 := newTestStateManager(t, dir)
	_, err := m1.Open()
	require.NoError(t, err)
	m1.RecordSeenSignature("sig-1")
	m1.Flush()

	// Append garbage as if the process died mid-write.
	segments, err := walSegments(filepath.Join(dir, "wal"))
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	f, err := os.OpenFile(segments[len(segments)-1], os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":99,"type":"seen_sig`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m2 := newTestStateManager(t, dir)
	rec, err := m2.Open()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sig-1"}, rec.SeenSignatures)
}

func TestCorruptSnapshotFallsBack(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")

	m1 := newTestStateManager(t, dir)
	_, err := m1.Open()
	require.NoError(t, err)
	m1.SetSources(Sources{
		SeenSignatures: func() []string { return []string{"sig-good"} },
	})
	m1.TakeSnapshot()

	// A newer, corrupt snapshot must be skipped in favor of the good one.
	corrupt := filepath.Join(snapDir, snapshotPrefix+"99999999999999999999.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))

	m2 := newTestStateManager(t, dir)
	rec, err := m2.Open()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sig-good"}, rec.SeenSignatures)
}
