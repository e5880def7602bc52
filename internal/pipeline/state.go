package pipeline

import (
	"context"
	"sync/atomic"
)

// State is the lifecycle state of an Orchestrator.
type State int32

const (
	StateIdle State = iota
	StateCalibrating
	StateProcessing
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalibrating:
		return "calibrating"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// CancellationToken is polled between frames.
type CancellationToken interface {
	IsCancelled() bool
}

// CancelFlag is a CancellationToken set by calling Cancel. The zero value
// is ready to use and safe for concurrent use.
type CancelFlag struct {
	cancelled atomic.Bool
}

// Cancel requests cancellation. Calling it more than once has no further effect.
func (f *CancelFlag) Cancel() {
	f.cancelled.Store(true)
}

func (f *CancelFlag) IsCancelled() bool {
	return f.cancelled.Load()
}

type contextToken struct {
	ctx context.Context
}

// ContextToken adapts ctx: the token is cancelled once ctx is done.
func ContextToken(ctx context.Context) CancellationToken {
	return contextToken{ctx: ctx}
}

func (t contextToken) IsCancelled() bool {
	return t.ctx.Err() != nil
}

type neverCancelled struct{}

func (neverCancelled) IsCancelled() bool { return false }
