// Package export archives finished trading days to CSV and JSON reports.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/position"
)

// Exporter writes daily trade archives under a base directory.
type Exporter struct {
	dir    string
	logger *zap.Logger
}

// New creates an exporter rooted at dir.
func New(dir string, logger *zap.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger.Named("export")}
}

// Summary aggregates one archived day.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	BuyCount    int     `json:"buy_count"`
	SellCount   int     `json:"sell_count"`
	TotalPnL    float64 `json:"total_pnl"`
	WinCount    int     `json:"win_count"`
	LossCount   int     `json:"loss_count"`
	WinRate     float64 `json:"win_rate"`
	AvgPnL      float64 `json:"avg_pnl"`
}

// DailyReport is the JSON archive written at rollover.
type DailyReport struct {
	Date    string           `json:"date"`
	Summary Summary          `json:"summary"`
	Trades  []position.Trade `json:"trades"`
}

// WriteDaily archives a finished day as both CSV and JSON. Errors are logged
// and returned; the caller decides whether they matter.
func (e *Exporter) WriteDaily(day position.DailyStats) error {
	if len(day.Trades) == 0 {
		return nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	trades := append([]position.Trade(nil), day.Trades...)
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})

	if err := e.writeCSV(day.Date, trades); err != nil {
		return err
	}
	if err := e.writeJSON(day.Date, trades); err != nil {
		return err
	}

	e.logger.Info("Daily archive written",
		zap.String("date", day.Date),
		zap.Int("trades", len(trades)),
		zap.Float64("pnl_sol", day.TotalPnL))
	return nil
}

func (e *Exporter) writeCSV(date string, trades []position.Trade) error {
	path := filepath.Join(e.dir, fmt.Sprintf("trades_%s.csv", date))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV archive: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write(position.CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, t := range trades {
		if err := w.Write(t.ToCSV()); err != nil {
			return fmt.Errorf("failed to write trade row: %w", err)
		}
	}
	return nil
}

func (e *Exporter) writeJSON(date string, trades []position.Trade) error {
	path := filepath.Join(e.dir, fmt.Sprintf("daily_report_%s.json", date))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON report: %w", err)
	}
	defer file.Close()

	report := DailyReport{
		Date:    date,
		Summary: summarize(trades),
		Trades:  trades,
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func summarize(trades []position.Trade) Summary {
	s := Summary{TotalTrades: len(trades)}
	for _, t := range trades {
		switch t.Action {
		case "buy":
			s.BuyCount++
		case "sell":
			s.SellCount++
			s.TotalPnL += t.PnL
			if t.PnL > 0 {
				s.WinCount++
			} else if t.PnL < 0 {
				s.LossCount++
			}
		}
	}
	if s.SellCount > 0 {
		s.WinRate = float64(s.WinCount) / float64(s.SellCount) * 100
		s.AvgPnL = s.TotalPnL / float64(s.SellCount)
	}
	return s
}
