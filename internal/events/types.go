package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Scanner events
	CandidateDetected EventType = "scanner.candidate_detected"
	ScannerReconnect  EventType = "scanner.reconnect"

	// Pipeline events
	SignalGenerated   EventType = "pipeline.signal_generated"
	CandidateRejected EventType = "pipeline.candidate_rejected"

	// Position events
	PositionOpened        EventType = "position.opened"
	PositionPartialExit   EventType = "position.partial_exit"
	PositionClosed        EventType = "position.closed"
	CircuitBreakerTripped EventType = "position.circuit_breaker"

	// Persistence events
	PersistenceDegraded EventType = "state.persistence_degraded"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// NewBase stamps an event with its type and the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// CandidateDetectedEvent is emitted once per unique creation signature.
type CandidateDetectedEvent struct {
	BaseEvent
	Signature string
}

// ScannerReconnectEvent is emitted when the subscription owner restarts the scanner.
type ScannerReconnectEvent struct {
	BaseEvent
	Attempt int
	Reason  string
}

// SignalGeneratedEvent is emitted on an ENTER decision.
type SignalGeneratedEvent struct {
	BaseEvent
	Mint           string
	Score          float64
	Tier           string
	SizeMultiplier float64
}

// CandidateRejectedEvent is emitted on a PASS decision.
type CandidateRejectedEvent struct {
	BaseEvent
	Mint   string
	Reason string
}

// PositionOpenedEvent is emitted when a trade fills and a position is created.
type PositionOpenedEvent struct {
	BaseEvent
	PositionID    string
	Mint          string
	EntryPrice    float64
	TokenQty      float64
	QuoteInvested float64
	Tier          string
}

// PositionPartialExitEvent is emitted on a tier-1 partial take-profit.
type PositionPartialExitEvent struct {
	BaseEvent
	PositionID string
	Mint       string
	SoldQty    float64
	ExitPrice  float64
	PnLPct     float64
}

// PositionClosedEvent is emitted when a position reaches a terminal state.
type PositionClosedEvent struct {
	BaseEvent
	PositionID  string
	Mint        string
	ExitPrice   float64
	RealizedPnL float64
	PnLPct      float64
	Reason      string
	FinalState  string
}

// CircuitBreakerTrippedEvent is emitted when the daily loss limit blocks entries.
type CircuitBreakerTrippedEvent struct {
	BaseEvent
	DailyPnL float64
	Limit    float64
}

// PersistenceDegradedEvent is emitted after repeated snapshot or WAL failures.
type PersistenceDegradedEvent struct {
	BaseEvent
	ConsecutiveFailures int
	LastError           string
}
