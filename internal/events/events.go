// Package events defines the single-use data carriers the backtest driver
// feeds into the portfolio: signals proposing a new position and ticks
// carrying refreshed market data.
package events

import (
	"time"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/positions"
	"options-backtester/internal/risk"
)

// EventType identifies the kind of an event.
type EventType string

const (
	TypeSignal EventType = "SIGNAL"
	TypeTick   EventType = "TICK"
)

// Event is the common surface of signal and tick events.
type Event interface {
	Type() EventType
	When() time.Time
}

// SignalEvent proposes opening exactly one position with its attached
// risk-management strategy. It may be consumed once.
type SignalEvent struct {
	position positions.Position
	strategy risk.Strategy
	when     time.Time
	consumed bool
}

// NewSignalEvent creates a signal event for the given position and strategy.
func NewSignalEvent(position positions.Position, strategy risk.Strategy, when time.Time) *SignalEvent {
	return &SignalEvent{position: position, strategy: strategy, when: when}
}

// Type returns TypeSignal.
func (e *SignalEvent) Type() EventType {
	return TypeSignal
}

// When returns the simulation timestamp the signal was generated at.
func (e *SignalEvent) When() time.Time {
	return e.when
}

// Consume returns the event payload, marking the event used. A second call
// returns ErrEventConsumed.
func (e *SignalEvent) Consume() (positions.Position, risk.Strategy, error) {
	if e.consumed {
		return nil, nil, errors.ErrEventConsumed
	}
	e.consumed = true
	return e.position, e.strategy, nil
}

// TickEvent carries a batch of refreshed legs (a quote chain) covering zero
// or more active positions. It may be consumed once.
type TickEvent struct {
	quotes   []models.Leg
	consumed bool
}

// NewTickEvent creates a tick event from a quote chain.
func NewTickEvent(quotes []models.Leg) *TickEvent {
	return &TickEvent{quotes: quotes}
}

// Type returns TypeTick.
func (e *TickEvent) Type() EventType {
	return TypeTick
}

// When returns the tick's simulation timestamp: the maximum observation time
// across the refreshed legs.
func (e *TickEvent) When() time.Time {
	var asOf time.Time
	for _, q := range e.quotes {
		if q.DateTime.After(asOf) {
			asOf = q.DateTime
		}
	}
	return asOf
}

// Quotes returns the quote chain without consuming the event.
func (e *TickEvent) Quotes() []models.Leg {
	return e.quotes
}

// Consume returns the quote chain, marking the event used. A second call
// returns ErrEventConsumed.
func (e *TickEvent) Consume() ([]models.Leg, error) {
	if e.consumed {
		return nil, errors.ErrEventConsumed
	}
	e.consumed = true
	return e.quotes, nil
}
