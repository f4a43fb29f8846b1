package rpc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrAccountNotFound mirrors the upstream not-found sentinel so callers do
// not depend on solana-go directly.
var ErrAccountNotFound = solanarpc.ErrNotFound

// Config tunes pacing and retry behavior for the shared client.
type Config struct {
	Endpoint       string
	MinCallSpacing time.Duration
	MaxInFlight    int64
	MaxRetries     uint
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Metrics holds cumulative call counters for the stats collector.
type Metrics struct {
	Calls    uint64
	Retries  uint64
	Failures uint64
}

// Client is the single serialization point against the upstream node's rate
// limits. Every subsystem issues remote calls through this instance: a rate
// limiter enforces minimum inter-call spacing and a weighted semaphore caps
// concurrent in-flight requests.
type Client struct {
	rpc     *solanarpc.Client
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	cfg     Config
	logger  *zap.Logger

	calls    atomic.Uint64
	retries  atomic.Uint64
	failures atomic.Uint64
}

// NewClient builds the shared rate-limited client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.MinCallSpacing <= 0 {
		cfg.MinCallSpacing = 100 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}

	return &Client{
		rpc:     solanarpc.New(cfg.Endpoint),
		limiter: rate.NewLimiter(rate.Every(cfg.MinCallSpacing), 1),
		sem:     semaphore.NewWeighted(cfg.MaxInFlight),
		cfg:     cfg,
		logger:  logger.Named("rpc"),
	}
}

// call runs fn under pacing, the in-flight cap and the retry budget.
// Retryable failures back off exponentially with jitter; permanent failures
// propagate immediately.
func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryBaseDelay
	policy.MaxInterval = c.cfg.RetryMaxDelay

	notify := func(err error, wait time.Duration) {
		c.retries.Add(1)
		c.logger.Debug("Retrying RPC call",
			zap.String("method", method),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	operation := func() (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		c.calls.Add(1)

		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !classify(err) {
			return struct{}{}, backoff.Permanent(&Error{Method: method, Retryable: false, Err: err})
		}
		return struct{}{}, &Error{Method: method, Retryable: true, Err: err}
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.cfg.MaxRetries),
		backoff.WithNotify(notify))
	if err != nil {
		c.failures.Add(1)
	}
	return err
}

// GetTransaction fetches a confirmed transaction by signature.
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*solanarpc.GetTransactionResult, error) {
	var out *solanarpc.GetTransactionResult
	maxVersion := uint64(0)
	err := c.call(ctx, "getTransaction", func(ctx context.Context) error {
		res, err := c.rpc.GetTransaction(ctx, sig, &solanarpc.GetTransactionOpts{
			Commitment:                     solanarpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// GetAccountInfo fetches a single account. Returns ErrAccountNotFound
// (wrapped, non-retryable) when the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solanarpc.GetAccountInfoResult, error) {
	var out *solanarpc.GetAccountInfoResult
	err := c.call(ctx, "getAccountInfo", func(ctx context.Context) error {
		res, err := c.rpc.GetAccountInfo(ctx, account)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// FetchAccountData returns the raw data bytes of an account, or
// ErrAccountNotFound when the account does not exist. This is the narrow
// surface most decoding call sites need.
func (c *Client) FetchAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	info, err := c.GetAccountInfo(ctx, account)
	if err != nil {
		return nil, err
	}
	if info == nil || info.Value == nil {
		return nil, ErrAccountNotFound
	}
	return info.Value.Data.GetBinary(), nil
}

// GetMultipleAccounts fetches a batch of accounts in one request.
func (c *Client) GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*solanarpc.GetMultipleAccountsResult, error) {
	var out *solanarpc.GetMultipleAccountsResult
	err := c.call(ctx, "getMultipleAccounts", func(ctx context.Context) error {
		res, err := c.rpc.GetMultipleAccounts(ctx, accounts...)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// GetSlot returns the current slot at confirmed commitment.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var out uint64
	err := c.call(ctx, "getSlot", func(ctx context.Context) error {
		slot, err := c.rpc.GetSlot(ctx, solanarpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		out = slot
		return nil
	})
	return out, err
}

// Snapshot returns cumulative call counters.
func (c *Client) Snapshot() Metrics {
	return Metrics{
		Calls:    c.calls.Load(),
		Retries:  c.retries.Load(),
		Failures: c.failures.Load(),
	}
}
