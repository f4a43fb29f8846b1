// Package app wires every subsystem together and owns the process lifecycle:
// recovery, startup order, the scanner supervision loop and graceful
// shutdown.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/advisory"
	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/events"
	"github.com/curvewatch/solana-sniper/internal/executor"
	"github.com/curvewatch/solana-sniper/internal/export"
	"github.com/curvewatch/solana-sniper/internal/market"
	"github.com/curvewatch/solana-sniper/internal/pipeline"
	"github.com/curvewatch/solana-sniper/internal/position"
	"github.com/curvewatch/solana-sniper/internal/rpc"
	"github.com/curvewatch/solana-sniper/internal/scanner"
	"github.com/curvewatch/solana-sniper/internal/state"
	"github.com/curvewatch/solana-sniper/internal/stats"
	"github.com/curvewatch/solana-sniper/internal/wallet"
)

const resolveTimeout = 15 * time.Second

// Runner holds the fully wired system.
type Runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	bus       *events.Bus
	collector *stats.Collector
	client    *rpc.Client
	stateMgr  *state.Manager
	scanner   *scanner.Scanner
	resolver  *scanner.Resolver
	pipeline  *pipeline.Pipeline
	positions *position.Manager
	exporter  *export.Exporter
}

// NewRunner constructs every component. Nothing starts running yet.
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.Scanner.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}

	bus := events.NewBus(logger, 256)
	collector := stats.NewCollector()

	client := rpc.NewClient(rpc.Config{
		Endpoint:       cfg.RPC.Endpoint,
		MinCallSpacing: cfg.RPC.MinCallSpacing,
		MaxInFlight:    cfg.RPC.MaxInFlight,
		MaxRetries:     cfg.RPC.MaxRetries,
		RetryBaseDelay: cfg.RPC.RetryBaseDelay,
		RetryMaxDelay:  cfg.RPC.RetryMaxDelay,
	}, logger)

	stateMgr := state.NewManager(cfg.State, bus, collector, logger)

	sc, err := scanner.New(cfg.Scanner, cfg.RPC.WebsocketURL, bus, collector, logger)
	if err != nil {
		return nil, err
	}
	resolver := scanner.NewResolver(cfg.Scanner, client, logger)

	pipe := pipeline.New(
		cfg.Pipeline,
		programID,
		client,
		market.NewCurveProvider(),
		[]advisory.Advisor{advisory.CurveMomentumAdvisor{}},
		bus,
		collector,
		logger,
	)

	w, err := wallet.FromEnv(cfg.Trading.PrivateKeyEnv)
	if err != nil {
		return nil, err
	}
	if w != nil {
		logger.Info("Wallet loaded", zap.String("pubkey", w.String()))
	}
	exec := executor.NewPaper(w, logger)

	positions := position.NewManager(
		cfg.Position,
		cfg.Trading.BuyAmountSOL,
		client,
		exec,
		stateMgr,
		position.NewLiquidityDrainDetector(),
		bus,
		collector,
		logger,
	)

	exporter := export.New(filepath.Join(cfg.State.DataDir, "exports"), logger)
	positions.SetArchive(func(day position.DailyStats) {
		if err := exporter.WriteDaily(day); err != nil {
			logger.Error("Daily archive failed", zap.Error(err))
		}
	})

	return &Runner{
		cfg:       cfg,
		logger:    logger.Named("app"),
		bus:       bus,
		collector: collector,
		client:    client,
		stateMgr:  stateMgr,
		scanner:   sc,
		resolver:  resolver,
		pipeline:  pipe,
		positions: positions,
		exporter:  exporter,
	}, nil
}

// Run recovers persisted state, starts every loop and blocks until a
// shutdown signal arrives, then tears the system down in order: stop intake,
// drain validation, final WAL flush and snapshot.
func (r *Runner) Run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A crash anywhere below must not lose journaled state.
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic, taking emergency snapshot", zap.Any("panic", p))
			r.stateMgr.Close()
			panic(p)
		}
	}()

	recovered, err := r.stateMgr.Open()
	if err != nil {
		return fmt.Errorf("state recovery failed: %w", err)
	}
	r.scanner.RestoreSeen(recovered.SeenSignatures)
	r.positions.Restore(recovered.Positions, recovered.Daily)
	r.scanner.OnSeen = r.stateMgr.RecordSeenSignature
	r.stateMgr.SetSources(state.Sources{
		SeenSignatures: r.scanner.SeenSignatures,
		Positions:      r.positions.Active,
		Daily:          r.positions.Daily,
	})

	if r.cfg.Trading.DryRun {
		r.logger.Info("Running in dry-run mode, fills are simulated")
	}

	go r.stateMgr.Run(ctx)
	r.pipeline.Start(ctx)
	go r.positions.Run(ctx)
	go r.superviseScanner(ctx)
	go r.resolveLoop(ctx)
	go r.signalLoop(ctx)
	go r.statsLoop(ctx)

	<-ctx.Done()
	r.logger.Info("Shutting down")

	r.pipeline.Stop()
	r.stateMgr.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.bus.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("Event bus shutdown incomplete", zap.Error(err))
	}

	r.logger.Info("Shutdown complete")
	return nil
}

// superviseScanner restarts the subscription after transport failures with
// capped exponential backoff. A subscription that stayed up for a while
// resets the backoff.
func (r *Runner) superviseScanner(ctx context.Context) {
	const (
		baseDelay = time.Second
		maxDelay  = 30 * time.Second
	)
	delay := baseDelay
	attempt := 0

	for {
		started := time.Now()
		err := r.scanner.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			delay = baseDelay
		}

		attempt++
		r.logger.Warn("Scanner disconnected, will reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		r.bus.Publish(events.ScannerReconnectEvent{
			BaseEvent: events.NewBase(events.ScannerReconnect),
			Attempt:   attempt,
			Reason:    err.Error(),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// resolveLoop turns creation signatures into mint addresses and feeds the
// validation queue.
func (r *Runner) resolveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cand, ok := <-r.scanner.Candidates():
			if !ok {
				return
			}
			resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
			mint, ok := r.resolver.Resolve(resolveCtx, cand.Signature)
			cancel()
			if !ok {
				r.collector.CandidateDropped()
				continue
			}
			if !r.pipeline.Enqueue(mint) {
				r.logger.Warn("Validation queue rejected candidate",
					zap.String("mint", mint.String()))
			}
			r.collector.SetQueueDepth(int64(r.scanner.QueueDepth()))
		}
	}
}

// signalLoop consumes ENTER signals and opens positions. Refused entries
// (cap, breaker, duplicates) are logged and dropped.
func (r *Runner) signalLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-r.pipeline.Signals():
			if !ok {
				return
			}
			if err := r.positions.Open(ctx, sig); err != nil {
				r.logger.Info("Entry refused",
					zap.String("mint", sig.Mint),
					zap.Error(err))
			}
		}
	}
}

// statsLoop periodically reports operational counters.
func (r *Runner) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rpcStats := r.client.Snapshot()
			r.collector.RecordRPC(rpcStats.Calls, rpcStats.Retries)
			r.logger.Info("Stats", zap.Any("snapshot", r.collector.Snapshot()))
		}
	}
}
