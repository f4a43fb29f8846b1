// Package scanner watches the program's log stream for newly created assets
// and turns unique creation signatures into candidates for validation.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/events"
	"github.com/curvewatch/solana-sniper/internal/stats"
)

// Candidate is a transaction signature suspected to represent a new asset
// creation. It is consumed exactly once by the validation side.
type Candidate struct {
	Signature  solana.Signature
	DetectedAt time.Time
}

// creationMarkers is the cheap pre-filter applied to log lines before a
// candidate is emitted. False positives are fine (the pipeline filters
// them); false negatives are not retried.
var creationMarkers = []string{
	"Instruction: Create",
	"Instruction: InitializeMint",
	"InitializeMint2",
}

// Scanner holds one logsSubscribe subscription filtered to the program.
//
// It does not reconnect on its own: Run returns on any transport error and
// the owner decides whether and when to resubscribe. Supervising scanner
// lifetime is the caller's responsibility.
type Scanner struct {
	wsURL      string
	programID  solana.PublicKey
	commitment solanarpc.CommitmentType
	dedupe     *dedupeSet
	out        chan Candidate
	bus        *events.Bus
	collector  *stats.Collector
	logger     *zap.Logger

	// OnSeen is invoked for every newly deduped signature so the state
	// manager can journal it before downstream work begins.
	OnSeen func(signature string)
}

// New builds a scanner from config. The candidate channel is owned by the
// scanner and stays open across reconnects; consumers exit on their own
// context.
func New(cfg config.ScannerConfig, wsURL string, bus *events.Bus, collector *stats.Collector, logger *zap.Logger) (*Scanner, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", cfg.ProgramID, err)
	}

	commitment := solanarpc.CommitmentProcessed
	switch cfg.Commitment {
	case "confirmed":
		commitment = solanarpc.CommitmentConfirmed
	case "finalized":
		commitment = solanarpc.CommitmentFinalized
	}

	return &Scanner{
		wsURL:      wsURL,
		programID:  programID,
		commitment: commitment,
		dedupe:     newDedupeSet(cfg.DedupeTTL),
		out:        make(chan Candidate, cfg.QueueSize),
		bus:        bus,
		collector:  collector,
		logger:     logger.Named("scanner"),
	}, nil
}

// Candidates returns the stream of unique creation candidates.
func (s *Scanner) Candidates() <-chan Candidate {
	return s.out
}

// RestoreSeen seeds the dedupe set from recovered state.
func (s *Scanner) RestoreSeen(signatures []string) {
	s.dedupe.Restore(signatures)
}

// SeenSignatures returns the dedupe set contents for snapshotting.
func (s *Scanner) SeenSignatures() []string {
	return s.dedupe.Keys()
}

// QueueDepth reports how many candidates are waiting to be consumed.
func (s *Scanner) QueueDepth() int {
	return len(s.out)
}

// Run connects, subscribes and pumps notifications until the context is
// cancelled or the transport fails. A transport failure is returned to the
// caller; the subscription is not re-established internally.
func (s *Scanner) Run(ctx context.Context) error {
	client, err := ws.Connect(ctx, s.wsURL)
	if err != nil {
		return fmt.Errorf("websocket connect failed: %w", err)
	}
	defer client.Close()

	sub, err := client.LogsSubscribeMentions(s.programID, s.commitment)
	if err != nil {
		return fmt.Errorf("logs subscription failed: %w", err)
	}
	defer sub.Unsubscribe()

	s.logger.Info("Subscribed to program logs",
		zap.String("program", s.programID.String()),
		zap.String("commitment", string(s.commitment)))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscription receive failed: %w", err)
		}

		s.handleNotification(msg)
	}
}

func (s *Scanner) handleNotification(msg *ws.LogResult) {
	if msg == nil || msg.Value.Err != nil {
		return
	}

	if !looksLikeCreation(msg.Value.Logs) {
		return
	}

	sig := msg.Value.Signature
	if s.dedupe.Seen(sig.String()) {
		return
	}
	s.collector.CandidateSeen()

	if s.OnSeen != nil {
		s.OnSeen(sig.String())
	}

	candidate := Candidate{Signature: sig, DetectedAt: time.Now()}
	select {
	case s.out <- candidate:
		s.logger.Debug("Candidate detected", zap.String("signature", sig.String()))
		_ = s.bus.Publish(events.CandidateDetectedEvent{
			BaseEvent: events.NewBase(events.CandidateDetected),
			Signature: sig.String(),
		})
	default:
		s.logger.Warn("Candidate queue full, dropping candidate",
			zap.String("signature", sig.String()))
	}
}

func looksLikeCreation(logs []string) bool {
	for _, line := range logs {
		for _, marker := range creationMarkers {
			if strings.Contains(line, marker) {
				return true
			}
		}
	}
	return false
}
