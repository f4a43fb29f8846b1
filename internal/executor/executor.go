// Package executor defines the trade execution boundary. The core emits
// abstract buy/sell requests and consumes fills; the settlement protocol
// itself is a collaborator concern, not modeled here.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/wallet"
)

// Fill is what execution returns for a completed swap.
type Fill struct {
	FilledQty      float64 // tokens bought or sold
	ExecutionPrice float64 // SOL per token actually obtained
	ExecutedAt     time.Time
}

// Executor performs swaps against the venue.
type Executor interface {
	// Buy spends quoteSOL and returns the token fill.
	Buy(ctx context.Context, mint string, quoteSOL, quotedPrice float64) (Fill, error)
	// Sell disposes tokenQty and returns the fill.
	Sell(ctx context.Context, mint string, tokenQty, quotedPrice float64) (Fill, error)
}

// Paper fills every order at the quoted curve price without touching the
// venue. It is the default in dry-run mode and the only executor this
// module ships; live settlement plugs in behind the same interface.
type Paper struct {
	wallet *wallet.Wallet // optional, used only to stamp logs with an identity
	logger *zap.Logger
}

// NewPaper creates a paper executor. The wallet may be nil.
func NewPaper(w *wallet.Wallet, logger *zap.Logger) *Paper {
	return &Paper{wallet: w, logger: logger.Named("paper_executor")}
}

func (p *Paper) Buy(_ context.Context, mint string, quoteSOL, quotedPrice float64) (Fill, error) {
	if quotedPrice <= 0 {
		return Fill{}, fmt.Errorf("cannot fill buy for %s: quoted price is zero", mint)
	}
	fill := Fill{
		FilledQty:      quoteSOL / quotedPrice,
		ExecutionPrice: quotedPrice,
		ExecutedAt:     time.Now(),
	}
	p.logger.Info("Paper buy filled",
		zap.String("mint", mint),
		zap.Float64("quote_sol", quoteSOL),
		zap.Float64("price", quotedPrice),
		zap.Float64("tokens", fill.FilledQty),
		zap.String("owner", p.owner()))
	return fill, nil
}

func (p *Paper) Sell(_ context.Context, mint string, tokenQty, quotedPrice float64) (Fill, error) {
	if tokenQty <= 0 {
		return Fill{}, fmt.Errorf("cannot fill sell for %s: zero quantity", mint)
	}
	fill := Fill{
		FilledQty:      tokenQty,
		ExecutionPrice: quotedPrice,
		ExecutedAt:     time.Now(),
	}
	p.logger.Info("Paper sell filled",
		zap.String("mint", mint),
		zap.Float64("tokens", tokenQty),
		zap.Float64("price", quotedPrice),
		zap.String("owner", p.owner()))
	return fill, nil
}

func (p *Paper) owner() string {
	if p.wallet == nil {
		return "paper"
	}
	return p.wallet.PublicKey.String()
}
