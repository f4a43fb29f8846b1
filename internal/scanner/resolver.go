package scanner

import (
	"context"
	"strings"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/curve"
	"github.com/curvewatch/solana-sniper/internal/rpc"
)

// Resolver extracts the canonical mint address from a candidate transaction.
//
// Resolution is best effort: a nil result means the transaction was
// ambiguous and the candidate is dropped without error.
type Resolver struct {
	client      *rpc.Client
	mintSuffix  string
	sampleSlice int
	logger      *zap.Logger
}

// NewResolver builds a resolver over the shared RPC client.
func NewResolver(cfg config.ScannerConfig, client *rpc.Client, logger *zap.Logger) *Resolver {
	sample := cfg.SampleSlice
	if sample <= 0 {
		sample = 4
	}
	return &Resolver{
		client:      client,
		mintSuffix:  cfg.MintSuffix,
		sampleSlice: sample,
		logger:      logger.Named("resolver"),
	}
}

// Resolve fetches the transaction and extracts the asset mint. The balance
// delta strategy is tried first; the structural account scan is the
// fallback. Returns (zero, false) when neither yields a unique candidate.
func (r *Resolver) Resolve(ctx context.Context, signature solana.Signature) (solana.PublicKey, bool) {
	tx, err := r.client.GetTransaction(ctx, signature)
	if err != nil || tx == nil {
		r.logger.Debug("Transaction fetch failed",
			zap.String("signature", signature.String()),
			zap.Error(err))
		return solana.PublicKey{}, false
	}

	if mint, ok := r.fromTokenBalances(tx); ok {
		return mint, true
	}
	return r.fromAccountScan(ctx, tx)
}

// fromTokenBalances looks at the post token balance deltas: a creation
// transaction usually references exactly one non-wrapped mint, or one
// following the venue's vanity suffix convention.
func (r *Resolver) fromTokenBalances(tx *solanarpc.GetTransactionResult) (solana.PublicKey, bool) {
	if tx.Meta == nil {
		return solana.PublicKey{}, false
	}

	distinct := make(map[solana.PublicKey]struct{})
	for _, balance := range tx.Meta.PostTokenBalances {
		if balance.Mint.Equals(solana.WrappedSol) {
			continue
		}
		distinct[balance.Mint] = struct{}{}
	}

	if len(distinct) == 1 {
		for mint := range distinct {
			return mint, true
		}
	}

	if r.mintSuffix != "" {
		var matched solana.PublicKey
		matches := 0
		for mint := range distinct {
			if strings.HasSuffix(mint.String(), r.mintSuffix) {
				matched = mint
				matches++
			}
		}
		if matches == 1 {
			return matched, true
		}
	}

	return solana.PublicKey{}, false
}

// fromAccountScan samples the transaction's referenced accounts (head,
// middle and tail slices, to bound the batched fetch) and returns the first
// one owned by the token program with the exact mint record size.
func (r *Resolver) fromAccountScan(ctx context.Context, tx *solanarpc.GetTransactionResult) (solana.PublicKey, bool) {
	if tx.Transaction == nil {
		return solana.PublicKey{}, false
	}
	decoded, err := tx.Transaction.GetTransaction()
	if err != nil || decoded == nil {
		return solana.PublicKey{}, false
	}

	keys := sampleKeys(decoded.Message.AccountKeys, r.sampleSlice)
	if len(keys) == 0 {
		return solana.PublicKey{}, false
	}

	res, err := r.client.GetMultipleAccounts(ctx, keys...)
	if err != nil || res == nil {
		r.logger.Debug("Batched account fetch failed", zap.Error(err))
		return solana.PublicKey{}, false
	}

	for i, account := range res.Value {
		if account == nil || !account.Owner.Equals(solana.TokenProgramID) {
			continue
		}
		data := account.Data.GetBinary()
		if len(data) == curve.MintAccountSize {
			return keys[i], true
		}
	}
	return solana.PublicKey{}, false
}

// sampleKeys takes up to n keys each from the head, middle and tail of the
// account list, deduplicated, preserving order of first occurrence.
func sampleKeys(keys []solana.PublicKey, n int) []solana.PublicKey {
	if len(keys) <= 3*n {
		return keys
	}

	picked := make([]solana.PublicKey, 0, 3*n)
	seen := make(map[solana.PublicKey]struct{}, 3*n)
	add := func(slice []solana.PublicKey) {
		for _, k := range slice {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			picked = append(picked, k)
		}
	}

	mid := len(keys) / 2
	add(keys[:n])
	add(keys[mid : mid+n])
	add(keys[len(keys)-n:])
	return picked
}
