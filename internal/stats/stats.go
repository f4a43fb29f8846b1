// Package stats aggregates read-only counters for the external health
// endpoint. The core owns no HTTP surface; collaborators call Snapshot.
package stats

import (
	"math"
	"sync"
	"sync/atomic"
)

// Collector is shared by the scanner, pipeline, position manager and state
// manager. Counter methods are safe for concurrent use.
type Collector struct {
	candidatesSeen   atomic.Uint64
	candidatesDrop   atomic.Uint64
	validationsEnter atomic.Uint64
	validationsPass  atomic.Uint64
	busyWorkers      atomic.Int64
	queueDepth       atomic.Int64
	openPositions    atomic.Int64
	wins             atomic.Uint64
	losses           atomic.Uint64
	dailyPnLBits     atomic.Uint64
	persistFailures  atomic.Int64
	rpcCalls         atomic.Uint64
	rpcRetries       atomic.Uint64

	mu          sync.Mutex
	passReasons map[string]uint64
	jobErrors   map[string]uint64
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	CandidatesSeen      uint64            `json:"candidates_seen"`
	CandidatesDropped   uint64            `json:"candidates_dropped"`
	ValidationsEntered  uint64            `json:"validations_entered"`
	ValidationsPassed   uint64            `json:"validations_passed"`
	PassReasons         map[string]uint64 `json:"pass_reasons"`
	JobErrors           map[string]uint64 `json:"job_errors"`
	QueueDepth          int64             `json:"queue_depth"`
	BusyWorkers         int64             `json:"busy_workers"`
	OpenPositions       int64             `json:"open_positions"`
	Wins                uint64            `json:"wins"`
	Losses              uint64            `json:"losses"`
	DailyPnL            float64           `json:"daily_pnl"`
	PersistenceFailures int64             `json:"persistence_failures"`
	RPCCalls            uint64            `json:"rpc_calls"`
	RPCRetries          uint64            `json:"rpc_retries"`
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		passReasons: make(map[string]uint64),
		jobErrors:   make(map[string]uint64),
	}
}

func (c *Collector) CandidateSeen() { c.candidatesSeen.Add(1) }

func (c *Collector) CandidateDropped() { c.candidatesDrop.Add(1) }

func (c *Collector) Entered() { c.validationsEnter.Add(1) }

// Passed counts a PASS outcome tagged with its rejection reason.
func (c *Collector) Passed(reason string) {
	c.validationsPass.Add(1)
	c.mu.Lock()
	c.passReasons[reason]++
	c.mu.Unlock()
}

// JobError counts an unexpected per-job failure by message.
func (c *Collector) JobError(msg string) {
	c.mu.Lock()
	c.jobErrors[msg]++
	c.mu.Unlock()
}

func (c *Collector) WorkerBusy(delta int64) { c.busyWorkers.Add(delta) }

func (c *Collector) SetQueueDepth(n int64) { c.queueDepth.Store(n) }

func (c *Collector) SetOpenPositions(n int64) { c.openPositions.Store(n) }

func (c *Collector) Win() { c.wins.Add(1) }

func (c *Collector) Loss() { c.losses.Add(1) }

// SetDailyPnL publishes the running daily PnL gauge.
func (c *Collector) SetDailyPnL(pnl float64) {
	c.dailyPnLBits.Store(math.Float64bits(pnl))
}

// PersistenceFailure bumps the consecutive-failure gauge; a successful
// flush resets it via PersistenceOK.
func (c *Collector) PersistenceFailure() int64 { return c.persistFailures.Add(1) }

func (c *Collector) PersistenceOK() { c.persistFailures.Store(0) }

// RecordRPC publishes the shared client's cumulative call counters.
func (c *Collector) RecordRPC(calls, retries uint64) {
	c.rpcCalls.Store(calls)
	c.rpcRetries.Store(retries)
}

// Snapshot returns a copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	reasons := make(map[string]uint64, len(c.passReasons))
	for k, v := range c.passReasons {
		reasons[k] = v
	}
	errs := make(map[string]uint64, len(c.jobErrors))
	for k, v := range c.jobErrors {
		errs[k] = v
	}
	c.mu.Unlock()

	return Snapshot{
		CandidatesSeen:      c.candidatesSeen.Load(),
		CandidatesDropped:   c.candidatesDrop.Load(),
		ValidationsEntered:  c.validationsEnter.Load(),
		ValidationsPassed:   c.validationsPass.Load(),
		PassReasons:         reasons,
		JobErrors:           errs,
		QueueDepth:          c.queueDepth.Load(),
		BusyWorkers:         c.busyWorkers.Load(),
		OpenPositions:       c.openPositions.Load(),
		Wins:                c.wins.Load(),
		Losses:              c.losses.Load(),
		DailyPnL:            math.Float64frombits(c.dailyPnLBits.Load()),
		PersistenceFailures: c.persistFailures.Load(),
		RPCCalls:            c.rpcCalls.Load(),
		RPCRetries:          c.rpcRetries.Load(),
	}
}
