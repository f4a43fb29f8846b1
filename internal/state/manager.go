// Package state makes the sniper crash-safe: every meaningful mutation is
// journaled to a write-ahead log and the full state is snapshotted
// periodically, so a restart resumes from the newest snapshot plus the WAL
// tail.
package state

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/events"
	"github.com/curvewatch/solana-sniper/internal/position"
	"github.com/curvewatch/solana-sniper/internal/stats"
)

// degradedAfter is how many consecutive persistence failures flip the
// process into degraded mode. Trading continues either way; degraded mode
// just announces that a crash would lose recent state.
const degradedAfter = 3

// Sources supplies the live state a snapshot captures. All three must be
// safe to call from the persistence goroutine.
type Sources struct {
	SeenSignatures func() []string
	Positions      func() []position.Position
	Daily          func() position.DailyStats
}

// Recovered is what a restart gets back from disk.
type Recovered struct {
	SeenSignatures []string
	Positions      []position.Position
	Daily          position.DailyStats
}

// Manager owns the WAL and snapshot files under the data directory. It
// implements position.Journal.
type Manager struct {
	cfg       config.StateConfig
	bus       *events.Bus
	collector *stats.Collector
	logger    *zap.Logger
	sources   Sources

	walDir  string
	snapDir string

	mu  sync.Mutex
	wal *walWriter
	seq uint64
}

// NewManager builds the persistence layer rooted at cfg.DataDir.
func NewManager(cfg config.StateConfig, bus *events.Bus, collector *stats.Collector, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		bus:       bus,
		collector: collector,
		logger:    logger.Named("state"),
		walDir:    filepath.Join(cfg.DataDir, "wal"),
		snapDir:   filepath.Join(cfg.DataDir, "snapshots"),
	}
}

// SetSources registers the snapshot providers. Must be called before Run.
func (m *Manager) SetSources(s Sources) {
	m.sources = s
}

// Open recovers state from disk and starts a fresh WAL segment. Replay is
// idempotent: positions key by ID so an entry already folded into the
// snapshot overwrites with identical data.
func (m *Manager) Open() (*Recovered, error) {
	snap, err := loadNewestSnapshot(m.snapDir)
	if err != nil {
		return nil, err
	}

	var offset uint64
	rec := &Recovered{}
	posByID := make(map[string]position.Position)
	seenSet := make(map[string]struct{})
	tradeIDs := make(map[string]struct{})

	if snap != nil {
		offset = snap.WALOffset
		rec.Daily = snap.Daily
		for _, sig := range snap.SeenSignatures {
			if _, dup := seenSet[sig]; !dup {
				seenSet[sig] = struct{}{}
				rec.SeenSignatures = append(rec.SeenSignatures, sig)
			}
		}
		for _, p := range snap.Positions {
			posByID[p.ID] = p
		}
		for _, t := range snap.Daily.Trades {
			tradeIDs[t.ID] = struct{}{}
		}
	}

	entries, err := readWALAfter(m.walDir, offset)
	if err != nil {
		return nil, err
	}
	maxSeq := offset
	for _, e := range entries {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		switch e.Type {
		case EntrySeenSignature:
			if _, dup := seenSet[e.Signature]; !dup {
				seenSet[e.Signature] = struct{}{}
				rec.SeenSignatures = append(rec.SeenSignatures, e.Signature)
			}
		case EntryPositionOpened, EntryPositionUpdated, EntryPositionClosed:
			if e.Position != nil {
				posByID[e.Position.ID] = *e.Position
			}
		case EntryTrade:
			if e.Trade != nil {
				if _, dup := tradeIDs[e.Trade.ID]; !dup {
					tradeIDs[e.Trade.ID] = struct{}{}
					rec.Daily.Record(*e.Trade)
				}
			}
		}
	}
	for _, p := range posByID {
		rec.Positions = append(rec.Positions, p)
	}

	wal, err := newWALWriter(m.walDir)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.wal = wal
	m.seq = maxSeq
	m.mu.Unlock()

	m.logger.Info("State recovered",
		zap.Bool("had_snapshot", snap != nil),
		zap.Int("replayed_entries", len(entries)),
		zap.Int("positions", len(rec.Positions)),
		zap.Int("seen_signatures", len(rec.SeenSignatures)))
	return rec, nil
}

// RecordSeenSignature journals a deduped creation signature.
func (m *Manager) RecordSeenSignature(sig string) {
	m.appendEntry(Entry{Type: EntrySeenSignature, Signature: sig})
}

// PositionOpened implements position.Journal.
func (m *Manager) PositionOpened(p position.Position) {
	m.appendEntry(Entry{Type: EntryPositionOpened, Position: &p})
}

// PositionUpdated implements position.Journal.
func (m *Manager) PositionUpdated(p position.Position) {
	m.appendEntry(Entry{Type: EntryPositionUpdated, Position: &p})
}

// PositionClosed implements position.Journal.
func (m *Manager) PositionClosed(p position.Position) {
	m.appendEntry(Entry{Type: EntryPositionClosed, Position: &p})
}

// TradeExecuted implements position.Journal.
func (m *Manager) TradeExecuted(t position.Trade) {
	m.appendEntry(Entry{Type: EntryTrade, Trade: &t})
}

func (m *Manager) appendEntry(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wal == nil {
		return
	}
	m.seq++
	e.Seq = m.seq
	e.Time = time.Now()
	if m.wal.append(e) >= m.cfg.WALFlushSize {
		m.flushLocked()
	}
}

// Flush forces buffered WAL entries to disk.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushLocked()
}

func (m *Manager) flushLocked() {
	if m.wal == nil {
		return
	}
	if err := m.wal.flush(); err != nil {
		m.persistFailure("wal flush", err)
		return
	}
	m.collector.PersistenceOK()
}

// Run drives periodic flushes and snapshots until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	flushTicker := time.NewTicker(m.cfg.WALFlushInterval)
	defer flushTicker.Stop()
	snapTicker := time.NewTicker(m.cfg.SnapshotInterval)
	defer snapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			m.Flush()
		case <-snapTicker.C:
			m.TakeSnapshot()
		}
	}
}

// TakeSnapshot flushes the WAL, captures live state through the sources and
// publishes it atomically, then prunes old snapshots and covered WAL
// segments.
func (m *Manager) TakeSnapshot() {
	m.mu.Lock()
	m.flushLocked()
	offset := m.seq
	m.mu.Unlock()

	snap := Snapshot{
		TakenAt:   time.Now(),
		WALOffset: offset,
	}
	if m.sources.SeenSignatures != nil {
		snap.SeenSignatures = m.sources.SeenSignatures()
	}
	if m.sources.Positions != nil {
		snap.Positions = m.sources.Positions()
	}
	if m.sources.Daily != nil {
		snap.Daily = m.sources.Daily()
	}

	path, err := writeSnapshot(m.snapDir, snap)
	if err != nil {
		m.persistFailure("snapshot", err)
		return
	}
	m.collector.PersistenceOK()

	m.mu.Lock()
	var current string
	if m.wal != nil {
		if err := m.wal.rotate(); err != nil {
			m.mu.Unlock()
			m.persistFailure("wal rotate", err)
			return
		}
		current = m.wal.file.Name()
	}
	m.mu.Unlock()

	pruneWALBefore(m.walDir, offset, current)
	pruneSnapshots(m.snapDir, m.cfg.SnapshotKeep)

	m.logger.Info("Snapshot taken",
		zap.String("file", filepath.Base(path)),
		zap.Uint64("wal_offset", offset),
		zap.Int("positions", len(snap.Positions)))
}

// persistFailure counts consecutive failures and announces degraded mode
// once the threshold is crossed. The process keeps trading.
func (m *Manager) persistFailure(op string, err error) {
	n := m.collector.PersistenceFailure()
	m.logger.Error("Persistence failure",
		zap.String("op", op),
		zap.Int64("consecutive", n),
		zap.Error(err))
	if n == degradedAfter && m.bus != nil {
		m.bus.Publish(events.PersistenceDegradedEvent{
			BaseEvent:           events.NewBase(events.PersistenceDegraded),
			ConsecutiveFailures: int(n),
			LastError:           err.Error(),
		})
	}
}

// Close performs the shutdown sequence: final flush, final snapshot, close
// the segment.
func (m *Manager) Close() {
	m.Flush()
	m.TakeSnapshot()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wal != nil {
		if err := m.wal.close(); err != nil {
			m.logger.Warn("WAL close failed", zap.Error(err))
		}
		m.wal = nil
	}
}
