package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curvewatch/solana-sniper/internal/position"
)

func sampleDay() position.DailyStats {
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	return position.DailyStats{
		Date: "2026-08-31",
		Trades: []position.Trade{
			{ID: "t2", Timestamp: base.Add(time.Hour), Mint: "mint-a", Action: "sell", AmountSOL: 0.15, PnL: 0.05, Reason: position.ExitTier1, Success: true},
			{ID: "t1", Timestamp: base, Mint: "mint-a", Action: "buy", AmountSOL: 0.1, Success: true},
			{ID: "t3", Timestamp: base.Add(2 * time.Hour), Mint: "mint-b", Action: "sell", AmountSOL: 0.08, PnL: -0.02, Reason: position.ExitStopLoss, Success: true},
		},
		TotalPnL: 0.03,
		Wins:     1,
		Losses:   1,
	}
}

func TestWriteDaily(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, zaptest.NewLogger(t))

	require.NoError(t, e.WriteDaily(sampleDay()))

	csvFile, err := os.Open(filepath.Join(dir, "trades_2026-08-31.csv"))
	require.NoError(t, err)
	defer csvFile.Close()

	rows, err := csv.NewReader(csvFile).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus three trades")
	assert.Equal(t, position.CSVHeaders(), rows[0])
	assert.Equal(t, "t1", rows[1][0], "rows must be sorted by timestamp")

	data, err := os.ReadFile(filepath.Join(dir, "daily_report_2026-08-31.json"))
	require.NoError(t, err)

	var report DailyReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "2026-08-31", report.Date)
	assert.Equal(t, 3, report.Summary.TotalTrades)
	assert.Equal(t, 1, report.Summary.BuyCount)
	assert.Equal(t, 2, report.Summary.SellCount)
	assert.InDelta(t, 0.03, report.Summary.TotalPnL, 1e-9)
	assert.InDelta(t, 50.0, report.Summary.WinRate, 1e-9)
}

func TestWriteDailySkipsEmptyDay(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, zaptest.NewLogger(t))

	require.NoError(t, e.WriteDaily(position.DailyStats{Date: "2026-08-31"}))

	entries, err := os.ReadDir(dir)
	if err == nil {
		assert.Empty(t, entries)
	}
}
