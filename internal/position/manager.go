package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/curve"
	"github.com/curvewatch/solana-sniper/internal/events"
	"github.com/curvewatch/solana-sniper/internal/executor"
	"github.com/curvewatch/solana-sniper/internal/pipeline"
	"github.com/curvewatch/solana-sniper/internal/stats"
)

// MarketReader is the slice of the RPC client the monitor needs: live curve
// account reads for pricing and the slot clock for time decay.
type MarketReader interface {
	FetchAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	GetSlot(ctx context.Context) (uint64, error)
}

// Journal receives position mutations for write-ahead logging. A nil journal
// disables persistence.
type Journal interface {
	PositionOpened(p Position)
	PositionUpdated(p Position)
	PositionClosed(p Position)
	TradeExecuted(t Trade)
}

// Manager owns the open position set, the monitoring loop and the exit
// strategy. One position per mint; all transitions happen on the monitor
// goroutine or inside Open, serialized by the mutex.
type Manager struct {
	cfg       config.PositionConfig
	buySOL    float64
	reader    MarketReader
	exec      executor.Executor
	journal   Journal
	flagger   RiskFlagger
	bus       *events.Bus
	collector *stats.Collector
	logger    *zap.Logger

	// archive receives the finished day's stats at rollover.
	archive func(DailyStats)

	mu             sync.Mutex
	active         map[string]*Position
	daily          DailyStats
	breakerTripped bool
}

// NewManager wires the position manager. journal and flagger may be nil.
func NewManager(
	cfg config.PositionConfig,
	buySOL float64,
	reader MarketReader,
	exec executor.Executor,
	journal Journal,
	flagger RiskFlagger,
	bus *events.Bus,
	collector *stats.Collector,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:       cfg,
		buySOL:    buySOL,
		reader:    reader,
		exec:      exec,
		journal:   journal,
		flagger:   flagger,
		bus:       bus,
		collector: collector,
		logger:    logger.Named("position"),
		active:    make(map[string]*Position),
		daily:     DailyStats{Date: utcDate(time.Now())},
	}
}

// SetArchive registers the daily rollover sink.
func (m *Manager) SetArchive(fn func(DailyStats)) {
	m.archive = fn
}

// Open enters a position from a validated signal. Entries are refused while
// the daily circuit breaker is tripped, when the position cap is reached, or
// when the mint is already held; refusals are errors to the caller but normal
// outcomes operationally.
func (m *Manager) Open(ctx context.Context, sig pipeline.Signal) error {
	m.mu.Lock()
	if m.breakerTripped {
		m.mu.Unlock()
		return fmt.Errorf("circuit breaker tripped, not entering %s", sig.Mint)
	}
	if len(m.active) >= m.cfg.MaxPositions {
		m.mu.Unlock()
		return fmt.Errorf("position cap %d reached, not entering %s", m.cfg.MaxPositions, sig.Mint)
	}
	if _, held := m.active[sig.Mint]; held {
		m.mu.Unlock()
		return fmt.Errorf("already holding %s", sig.Mint)
	}
	m.mu.Unlock()

	price := curve.PriceSOL(sig.Curve, sig.Decimals)
	if price <= 0 {
		return fmt.Errorf("no quotable price for %s", sig.Mint)
	}
	amount := m.buySOL * sig.SizeMultiplier

	fill, err := m.exec.Buy(ctx, sig.Mint, amount, price)
	if err != nil {
		return fmt.Errorf("buy failed for %s: %w", sig.Mint, err)
	}

	slot, err := m.reader.GetSlot(ctx)
	if err != nil {
		m.logger.Warn("Could not read entry slot", zap.Error(err))
	}

	p := &Position{
		ID:               uuid.NewString(),
		Mint:             sig.Mint,
		CurveAddress:     sig.Curve.Address.String(),
		State:            StateInPosition,
		Tier:             string(sig.Tier),
		Decimals:         sig.Decimals,
		EntryPrice:       fill.ExecutionPrice,
		EntryTime:        fill.ExecutedAt,
		EntrySlot:        slot,
		TokenQty:         fill.FilledQty,
		RemainingQty:     fill.FilledQty,
		QuoteInvested:    amount,
		PeakLiquiditySOL: curve.LiquiditySOL(sig.Curve),
		LastPrice:        fill.ExecutionPrice,
	}

	trade := Trade{
		ID:         uuid.NewString(),
		Timestamp:  fill.ExecutedAt,
		Mint:       sig.Mint,
		Action:     "buy",
		AmountSOL:  amount,
		AmountTok:  fill.FilledQty,
		Price:      fill.ExecutionPrice,
		EntryPrice: fill.ExecutionPrice,
		Reason:     string(sig.Tier),
		Success:    true,
	}

	m.mu.Lock()
	m.active[sig.Mint] = p
	m.daily.Record(trade)
	open := len(m.active)
	m.mu.Unlock()

	if m.journal != nil {
		m.journal.PositionOpened(*p)
		m.journal.TradeExecuted(trade)
	}
	m.collector.SetOpenPositions(int64(open))
	m.publish(events.PositionOpenedEvent{
		BaseEvent:     events.NewBase(events.PositionOpened),
		PositionID:    p.ID,
		Mint:          p.Mint,
		EntryPrice:    p.EntryPrice,
		TokenQty:      p.TokenQty,
		QuoteInvested: p.QuoteInvested,
		Tier:          p.Tier,
	})
	m.logger.Info("Position opened",
		zap.String("mint", p.Mint),
		zap.String("tier", p.Tier),
		zap.Float64("entry_price", p.EntryPrice),
		zap.Float64("invested_sol", p.QuoteInvested))
	return nil
}

// Run drives the monitor loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.rolloverIfNeeded()

	slot, err := m.reader.GetSlot(ctx)
	if err != nil {
		m.logger.Warn("Slot read failed, skipping decay checks this tick", zap.Error(err))
		slot = 0
	}

	for _, p := range m.snapshotActive() {
		m.evaluate(ctx, p, slot)
	}
}

func (m *Manager) snapshotActive() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Position, 0, len(m.active))
	for _, p := range m.active {
		out = append(out, p)
	}
	return out
}

// evaluate applies the exit strategy to one position. A failure on one
// position never disturbs the others.
func (m *Manager) evaluate(ctx context.Context, p *Position, slot uint64) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic while evaluating position",
				zap.String("mint", p.Mint),
				zap.Any("panic", r))
		}
	}()

	addr, err := solana.PublicKeyFromBase58(p.CurveAddress)
	if err != nil {
		m.logger.Error("Corrupt curve address on position", zap.String("mint", p.Mint), zap.Error(err))
		return
	}
	data, err := m.reader.FetchAccountData(ctx, addr)
	if err != nil {
		m.logger.Warn("Curve read failed, position untouched",
			zap.String("mint", p.Mint), zap.Error(err))
		return
	}
	cs, err := curve.DecodeCurveAccount(addr, data)
	if err != nil {
		m.logger.Warn("Curve decode failed, position untouched",
			zap.String("mint", p.Mint), zap.Error(err))
		return
	}

	price := curve.PriceSOL(cs, p.Decimals)
	if price <= 0 {
		return
	}

	// Snapshot readers copy positions under the mutex, so every per-tick
	// mutation (price window, peak liquidity via the flagger) happens under
	// it too.
	m.mu.Lock()
	p.observePrice(price)
	pnl := p.PnLPct(price)
	accel := p.accelerationPct()
	state := p.State
	tier1Done := p.Tier1Exited
	var risky bool
	var riskReason string
	if m.flagger != nil {
		risky, riskReason = m.flagger.HighRisk(cs, p)
	}
	m.mu.Unlock()

	// Exit checks in strict precedence order. At most one fires per tick.
	switch {
	case state == StateInPosition && !tier1Done &&
		pnl >= m.cfg.Tier1MinPct && pnl <= m.cfg.Tier1MaxPct:
		m.partialExit(ctx, p, price, pnl)

	case pnl >= m.cfg.Tier2MinPct && accel >= m.cfg.Tier2AccelPct:
		m.fullExit(ctx, p, price, pnl, ExitTier2, StateClosed)

	case pnl <= m.cfg.StopLossPct:
		m.fullExit(ctx, p, price, pnl, ExitStopLoss, StateStopped)

	case slot > 0 && slot > p.EntrySlot && slot-p.EntrySlot > m.cfg.MaxHoldSlots &&
		(!m.cfg.DecayNeedsProfit || pnl > 0):
		m.fullExit(ctx, p, price, pnl, ExitDecay, StateClosed)

	case risky:
		m.logger.Warn("Anomaly detected, abandoning position",
			zap.String("mint", p.Mint), zap.String("reason", riskReason))
		m.fullExit(ctx, p, price, pnl, ExitAnomaly, StateClosed)
	}
}

// partialExit sells the tier-1 fraction of the remaining quantity.
func (m *Manager) partialExit(ctx context.Context, p *Position, price, pnl float64) {
	qty := p.RemainingQty * m.cfg.Tier1SellFraction
	fill, err := m.exec.Sell(ctx, p.Mint, qty, price)
	if err != nil {
		m.logger.Error("Tier-1 sell failed, will retry next tick",
			zap.String("mint", p.Mint), zap.Error(err))
		return
	}

	proceeds := fill.FilledQty * fill.ExecutionPrice
	costBasis := p.QuoteInvested * (fill.FilledQty / p.TokenQty)

	trade := Trade{
		ID:         uuid.NewString(),
		Timestamp:  fill.ExecutedAt,
		Mint:       p.Mint,
		Action:     "sell",
		AmountSOL:  proceeds,
		AmountTok:  fill.FilledQty,
		Price:      fill.ExecutionPrice,
		EntryPrice: p.EntryPrice,
		PnL:        proceeds - costBasis,
		PnLPercent: pnl,
		Reason:     ExitTier1,
		Success:    true,
	}

	m.mu.Lock()
	p.RemainingQty -= fill.FilledQty
	p.RealizedSOL += proceeds
	p.State = StateTier1Exited
	p.Tier1Exited = true
	m.daily.Record(trade)
	dailyPnL := m.daily.TotalPnL
	m.mu.Unlock()

	if m.journal != nil {
		m.journal.PositionUpdated(*p)
		m.journal.TradeExecuted(trade)
	}
	m.collector.SetDailyPnL(dailyPnL)
	m.publish(events.PositionPartialExitEvent{
		BaseEvent:  events.NewBase(events.PositionPartialExit),
		PositionID: p.ID,
		Mint:       p.Mint,
		SoldQty:    fill.FilledQty,
		ExitPrice:  fill.ExecutionPrice,
		PnLPct:     pnl,
	})
	m.logger.Info("Tier-1 partial exit",
		zap.String("mint", p.Mint),
		zap.Float64("pnl_pct", pnl),
		zap.Float64("sold", fill.FilledQty),
		zap.Float64("proceeds_sol", proceeds))
	m.checkBreaker(dailyPnL)
}

// fullExit liquidates the remaining quantity and moves the position to a
// terminal state.
func (m *Manager) fullExit(ctx context.Context, p *Position, price, pnl float64, reason string, final State) {
	fill, err := m.exec.Sell(ctx, p.Mint, p.RemainingQty, price)
	if err != nil {
		m.logger.Error("Exit sell failed, will retry next tick",
			zap.String("mint", p.Mint),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}

	proceeds := fill.FilledQty * fill.ExecutionPrice
	costBasis := p.QuoteInvested * (fill.FilledQty / p.TokenQty)

	trade := Trade{
		ID:         uuid.NewString(),
		Timestamp:  fill.ExecutedAt,
		Mint:       p.Mint,
		Action:     "sell",
		AmountSOL:  proceeds,
		AmountTok:  fill.FilledQty,
		Price:      fill.ExecutionPrice,
		EntryPrice: p.EntryPrice,
		PnL:        proceeds - costBasis,
		PnLPercent: pnl,
		Reason:     reason,
		Success:    true,
	}

	m.mu.Lock()
	p.RemainingQty = 0
	p.RealizedSOL += proceeds
	p.State = final
	if reason == ExitTier2 {
		p.Tier2Exited = true
	}
	realized := p.RealizedSOL - p.QuoteInvested
	delete(m.active, p.Mint)
	m.daily.Record(trade)
	dailyPnL := m.daily.TotalPnL
	open := len(m.active)
	m.mu.Unlock()

	if m.journal != nil {
		m.journal.PositionClosed(*p)
		m.journal.TradeExecuted(trade)
	}
	if realized > 0 {
		m.collector.Win()
	} else if realized < 0 {
		m.collector.Loss()
	}
	m.collector.SetOpenPositions(int64(open))
	m.collector.SetDailyPnL(dailyPnL)
	m.publish(events.PositionClosedEvent{
		BaseEvent:   events.NewBase(events.PositionClosed),
		PositionID:  p.ID,
		Mint:        p.Mint,
		ExitPrice:   fill.ExecutionPrice,
		RealizedPnL: realized,
		PnLPct:      pnl,
		Reason:      reason,
		FinalState:  string(final),
	})
	m.logger.Info("Position closed",
		zap.String("mint", p.Mint),
		zap.String("reason", reason),
		zap.String("state", string(final)),
		zap.Float64("pnl_pct", pnl),
		zap.Float64("realized_sol", realized))
	m.checkBreaker(dailyPnL)
}

// checkBreaker trips the daily circuit breaker once per day when realized
// losses reach the configured limit. The breaker blocks new entries only;
// open positions keep being monitored and exited.
func (m *Manager) checkBreaker(dailyPnL float64) {
	if m.cfg.DailyLossLimitSOL <= 0 || dailyPnL > -m.cfg.DailyLossLimitSOL {
		return
	}
	m.mu.Lock()
	already := m.breakerTripped
	m.breakerTripped = true
	m.mu.Unlock()
	if already {
		return
	}
	m.publish(events.CircuitBreakerTrippedEvent{
		BaseEvent: events.NewBase(events.CircuitBreakerTripped),
		DailyPnL:  dailyPnL,
		Limit:     m.cfg.DailyLossLimitSOL,
	})
	m.logger.Warn("Daily loss limit reached, blocking new entries",
		zap.Float64("daily_pnl", dailyPnL),
		zap.Float64("limit", m.cfg.DailyLossLimitSOL))
}

// rolloverIfNeeded archives the finished day and resets the daily counters
// at the first tick past UTC midnight.
func (m *Manager) rolloverIfNeeded() {
	today := utcDate(time.Now())

	m.mu.Lock()
	if m.daily.Date == today {
		m.mu.Unlock()
		return
	}
	finished := m.daily
	m.daily = DailyStats{Date: today}
	m.breakerTripped = false
	m.mu.Unlock()

	m.collector.SetDailyPnL(0)
	m.logger.Info("Daily rollover",
		zap.String("finished", finished.Date),
		zap.Int("trades", len(finished.Trades)),
		zap.Float64("pnl_sol", finished.TotalPnL))
	if m.archive != nil && len(finished.Trades) > 0 {
		m.archive(finished)
	}
}

// Restore repopulates state from a recovery snapshot. Terminal positions are
// ignored; monitoring resumes for the rest on the next tick.
func (m *Manager) Restore(positions []Position, daily DailyStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range positions {
		p := positions[i]
		if p.State.Terminal() {
			continue
		}
		m.active[p.Mint] = &p
	}
	if daily.Date == utcDate(time.Now()) {
		m.daily = daily
		m.breakerTripped = m.cfg.DailyLossLimitSOL > 0 &&
			daily.TotalPnL <= -m.cfg.DailyLossLimitSOL
	}
	m.collector.SetOpenPositions(int64(len(m.active)))
	m.collector.SetDailyPnL(m.daily.TotalPnL)
}

// Active returns a copy of the open position set.
func (m *Manager) Active() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.active))
	for _, p := range m.active {
		out = append(out, *p)
	}
	return out
}

// Daily returns a copy of today's stats.
func (m *Manager) Daily() DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.daily
	d.Trades = append([]Trade(nil), m.daily.Trades...)
	return d
}

// BreakerTripped reports whether new entries are currently blocked.
func (m *Manager) BreakerTripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerTripped
}

func (m *Manager) publish(e events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(e); err != nil {
		m.logger.Debug("Event dropped", zap.String("type", string(e.Type())))
	}
}

func utcDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
