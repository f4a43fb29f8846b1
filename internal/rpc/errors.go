package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Error wraps an upstream RPC failure with its retry classification.
type Error struct {
	Method    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("rpc %s failed (%s): %v", e.Method, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is an RPC error worth retrying.
func IsRetryable(err error) bool {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Retryable
	}
	return false
}

// classify decides whether a raw upstream error is worth retrying.
// Rate limiting (429), temporary unavailability (503) and transient
// transport faults are retryable; everything else propagates immediately.
func classify(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var jsonErr *jsonrpc.RPCError
	if errors.As(err, &jsonErr) {
		// Server-side errors (node behind, tx not propagated yet) are
		// transient; malformed-request errors are not.
		return jsonErr.Code <= -32000 && jsonErr.Code > -32100
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429",
		"too many requests",
		"503",
		"service unavailable",
		"connection reset",
		"connection refused",
		"unexpected eof",
		"i/o timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
