package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"service unavailable", errors.New("HTTP 503 Service Unavailable"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"io timeout", errors.New("dial tcp: i/o timeout"), true},
		{"node behind", &jsonrpc.RPCError{Code: -32005, Message: "node is behind"}, true},
		{"tx not found yet", &jsonrpc.RPCError{Code: -32004, Message: "not available"}, true},
		{"invalid params", &jsonrpc.RPCError{Code: -32602, Message: "invalid params"}, false},
		{"parse error", &jsonrpc.RPCError{Code: -32700, Message: "parse error"}, false},
		{"plain failure", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := &Error{Method: "getSlot", Retryable: true, Err: errors.New("429")}
	permanent := &Error{Method: "getSlot", Retryable: false, Err: errors.New("bad request")}

	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", retryable)))
	assert.False(t, IsRetryable(permanent))
	assert.False(t, IsRetryable(errors.New("not an rpc error")))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &Error{Method: "getAccountInfo", Retryable: true, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "getAccountInfo")
	assert.Contains(t, err.Error(), "retryable")
}
