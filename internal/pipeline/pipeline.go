// Package pipeline runs candidates through the concurrency-bounded
// validation flow: cheap filters first, then curve and mint state, then the
// weighted momentum score and the ENTER/PASS decision.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/advisory"
	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/curve"
	"github.com/curvewatch/solana-sniper/internal/events"
	"github.com/curvewatch/solana-sniper/internal/market"
	"github.com/curvewatch/solana-sniper/internal/stats"
)

// defaultTotalSupply is the canonical launch supply (1B tokens at 6
// decimals), used for progress math while the mint record has not
// propagated yet.
const defaultTotalSupply uint64 = 1_000_000_000_000_000

const mintFetchDelay = 150 * time.Millisecond

// AccountFetcher is the narrow RPC surface the pipeline needs. The shared
// rate-limited client satisfies it; tests substitute fakes.
type AccountFetcher interface {
	FetchAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// Pipeline owns the FIFO queue and the fixed-size worker pool draining it.
// This is the only place in the system where genuinely parallel work runs.
type Pipeline struct {
	cfg       config.PipelineConfig
	weights   Weights
	programID solana.PublicKey
	client    AccountFetcher
	provider  market.Provider
	advisors  []advisory.Advisor
	bus       *events.Bus
	collector *stats.Collector
	logger    *zap.Logger

	queue   chan solana.PublicKey
	signals chan Signal

	mu        sync.Mutex
	closed    bool
	validated map[string]time.Time
	inflight  map[string]struct{}

	wg sync.WaitGroup
}

// New builds the pipeline. Advisors are optional.
func New(
	cfg config.PipelineConfig,
	programID solana.PublicKey,
	client AccountFetcher,
	provider market.Provider,
	advisors []advisory.Advisor,
	bus *events.Bus,
	collector *stats.Collector,
	logger *zap.Logger,
) *Pipeline {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Pipeline{
		cfg:       cfg,
		weights:   weightsFrom(cfg),
		programID: programID,
		client:    client,
		provider:  provider,
		advisors:  advisors,
		bus:       bus,
		collector: collector,
		logger:    logger.Named("pipeline"),
		queue:     make(chan solana.PublicKey, queueSize),
		signals:   make(chan Signal, 32),
		validated: make(map[string]time.Time),
		inflight:  make(map[string]struct{}),
	}
}

// Signals returns the stream of ENTER decisions.
func (p *Pipeline) Signals() <-chan Signal {
	return p.signals
}

// Start launches the worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("Validation pipeline started", zap.Int("workers", workers))
}

// Stop closes the intake and waits for in-flight jobs to finish. Enqueue
// calls after Stop are rejected.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	close(p.signals)
	p.logger.Info("Validation pipeline stopped")
}

// Enqueue pushes a candidate mint onto the FIFO queue. Returns false when
// the queue is full or the pipeline is shutting down.
func (p *Pipeline) Enqueue(mint solana.PublicKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- mint:
		p.collector.SetQueueDepth(int64(len(p.queue)))
		return true
	default:
		p.logger.Warn("Validation queue full, dropping candidate",
			zap.String("mint", mint.String()))
		p.collector.CandidateDropped()
		return false
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		case mint, ok := <-p.queue:
			if !ok {
				return
			}
			p.collector.SetQueueDepth(int64(len(p.queue)))
			p.collector.WorkerBusy(1)
			p.runJob(ctx, mint, logger)
			p.collector.WorkerBusy(-1)
		}
	}
}

// runJob isolates a single candidate: panics and unexpected errors are
// recovered per job, counted and treated as a dropped candidate. The pool
// never dies because one candidate misbehaved.
func (p *Pipeline) runJob(ctx context.Context, mint solana.PublicKey, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			logger.Error("Validation job panicked",
				zap.String("mint", mint.String()),
				zap.String("panic", msg))
			p.collector.JobError(msg)
			p.collector.CandidateDropped()
			p.release(mint.String(), false)
		}
	}()

	key := mint.String()
	if !p.claim(key) {
		// Already validated within the TTL window or being validated by
		// another worker right now.
		return
	}

	result, signal := p.validate(ctx, mint, logger)
	p.release(key, true)

	switch result.Decision {
	case DecisionEnter:
		p.collector.Entered()
		select {
		case p.signals <- *signal:
		default:
			logger.Warn("Signal channel full, dropping signal",
				zap.String("mint", key))
		}
		_ = p.bus.Publish(events.SignalGeneratedEvent{
			BaseEvent:      events.NewBase(events.SignalGenerated),
			Mint:           key,
			Score:          result.Score,
			Tier:           string(result.Tier),
			SizeMultiplier: signal.SizeMultiplier,
		})
		logger.Info("ENTER decision",
			zap.String("mint", key),
			zap.Float64("score", result.Score),
			zap.String("tier", string(result.Tier)))
	case DecisionPass:
		p.collector.Passed(result.Reason)
		_ = p.bus.Publish(events.CandidateRejectedEvent{
			BaseEvent: events.NewBase(events.CandidateRejected),
			Mint:      key,
			Reason:    result.Reason,
		})
		logger.Debug("PASS decision",
			zap.String("mint", key),
			zap.String("reason", result.Reason))
	}
}

// claim marks a candidate in flight. The explicit in-flight marker closes
// the window where two workers could validate the same id concurrently; the
// validated cache alone is only written after completion.
func (p *Pipeline) claim(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if at, ok := p.validated[key]; ok && time.Since(at) < p.cfg.ValidationTTL {
		return false
	}
	if _, ok := p.inflight[key]; ok {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Pipeline) release(key string, completed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, key)
	if completed {
		p.validated[key] = time.Now()
	}

	if len(p.validated) > 4096 {
		for k, at := range p.validated {
			if time.Since(at) >= p.cfg.ValidationTTL {
				delete(p.validated, k)
			}
		}
	}
}

// validate runs the decision flow for one candidate and returns its terminal
// outcome. The returned Signal is non-nil only on ENTER.
func (p *Pipeline) validate(ctx context.Context, mint solana.PublicKey, logger *zap.Logger) (Result, *Signal) {
	key := mint.String()

	state, err := p.fetchCurveState(ctx, mint)
	if err != nil {
		var formatErr *curve.FormatError
		if errors.As(err, &formatErr) {
			p.collector.JobError(formatErr.Error())
			return Result{Mint: key, Decision: DecisionPass, Reason: ReasonValidationError}, nil
		}
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonCurveNotFound}, nil
	}

	mintAccount, fresh := p.fetchMintRecord(ctx, mint, logger)
	if !fresh && !mintAccount.Initialized {
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonMintNotInitialized}, nil
	}

	supply := defaultTotalSupply
	decimals := uint8(6)
	if !fresh {
		supply = mintAccount.Supply
		decimals = mintAccount.Decimals
	}

	progress := curve.Progress(state, supply)
	if progress >= p.cfg.GraduatedAt {
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonCurveGraduated}, nil
	}

	var result Result
	if fresh {
		result = p.validateFresh(key, state, progress)
	} else {
		result = p.validateEstablished(ctx, key, state, progress)
	}
	if result.Decision == DecisionPass {
		return result, nil
	}

	return result, &Signal{
		Mint:           key,
		Score:          result.Score,
		Tier:           result.Tier,
		SizeMultiplier: sizeMultiplierFor(result.Tier),
		Curve:          state,
		Decimals:       decimals,
		GeneratedAt:    time.Now(),
	}
}

// validateFresh is the reduced, cheaper path for assets whose mint record
// has not propagated yet: liquidity floor, progress ceiling, early score.
func (p *Pipeline) validateFresh(key string, state curve.State, progress float64) Result {
	if progress > p.cfg.FreshMaxProgress {
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonCurveTooMature}
	}

	liquidity := curve.LiquiditySOL(state)
	if liquidity < p.cfg.MinLiquiditySOL {
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonLiquidityTooLow}
	}

	score := earlyScore(progress, liquidity)
	if score < p.cfg.MinScore {
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonMomentumBelow}
	}

	return Result{Mint: key, Decision: DecisionEnter, Score: score, Tier: tierFor(score)}
}

// validateEstablished runs the deeper checks and the full momentum score.
func (p *Pipeline) validateEstablished(ctx context.Context, key string, state curve.State, progress float64) Result {
	if progress < p.cfg.MinProgress {
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonCurveActivityLow}
	}

	snapshot, err := p.provider.Estimate(ctx, key, state)
	if err != nil {
		p.collector.JobError(err.Error())
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonValidationError}
	}

	liquidity := curve.LiquiditySOL(state)
	switch {
	case snapshot.Holders < p.cfg.MinHolders:
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonHoldersTooFew}
	case snapshot.VolumeSOL < p.cfg.MinVolumeSOL:
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonVolumeTooLow}
	case liquidity < p.cfg.MinLiquiditySOL:
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonLiquidityTooLow}
	case snapshot.InitialBuySOL < p.cfg.MinInitialBuySOL:
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonInitialBuyTooSmall}
	}

	score := momentumScore(snapshot.VolumeSOL, snapshot.Holders, progress, p.weights)
	score = clampScore(score + p.advisoryAdjustment(ctx, key, state, progress, snapshot))

	if score < p.cfg.MinScore {
		return Result{Mint: key, Decision: DecisionPass, Reason: ReasonMomentumBelow}
	}

	return Result{Mint: key, Decision: DecisionEnter, Score: score, Tier: tierFor(score)}
}

// advisoryAdjustment folds optional advisor signals into a bounded score
// delta. Advisors that fail contribute nothing.
func (p *Pipeline) advisoryAdjustment(ctx context.Context, mint string, state curve.State, progress float64, snapshot market.Snapshot) float64 {
	if len(p.advisors) == 0 {
		return 0
	}

	input := advisory.Input{
		Mint:     mint,
		Curve:    state,
		Progress: progress,
		Market:   snapshot,
	}

	var adjustment float64
	for _, advisor := range p.advisors {
		signal, err := advisor.Analyze(ctx, input)
		if err != nil {
			continue
		}
		adjustment += signal.Score * signal.Confidence * 0.1
	}

	if adjustment > 10 {
		adjustment = 10
	}
	if adjustment < -10 {
		adjustment = -10
	}
	return adjustment
}

// fetchCurveState derives the bonding curve address for the mint and
// fetches and decodes its account.
func (p *Pipeline) fetchCurveState(ctx context.Context, mint solana.PublicKey) (curve.State, error) {
	curveAddr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		p.programID,
	)
	if err != nil {
		return curve.State{}, fmt.Errorf("curve address derivation failed: %w", err)
	}

	data, err := p.client.FetchAccountData(ctx, curveAddr)
	if err != nil {
		return curve.State{}, err
	}

	return curve.DecodeCurveAccount(curveAddr, data)
}

// fetchMintRecord fetches the mint account with bounded retries to tolerate
// accounts that have not propagated to the queried node yet. Returns
// fresh=true when the record is still absent after the retry budget.
func (p *Pipeline) fetchMintRecord(ctx context.Context, mint solana.PublicKey, logger *zap.Logger) (curve.MintAccount, bool) {
	attempts := p.cfg.MintFetchRetries
	if attempts == 0 {
		attempts = 1
	}

	for attempt := uint(0); attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return curve.MintAccount{}, true
			case <-time.After(mintFetchDelay):
			}
		}

		data, err := p.client.FetchAccountData(ctx, mint)
		if err != nil {
			continue
		}

		record, err := curve.DecodeMintAccount(data)
		if err != nil {
			logger.Debug("Mint account malformed, treating as fresh",
				zap.String("mint", mint.String()),
				zap.Error(err))
			return curve.MintAccount{}, true
		}
		return record, false
	}
	return curve.MintAccount{}, true
}
