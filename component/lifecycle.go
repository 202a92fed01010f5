// Package component defines the shared lifecycle contract and logging
// support for focusstream components.
package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates the component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates the component was initialized but not started
	StateInitialized
	// StateStarted indicates the component is running
	StateStarted
	// StateStopped indicates the component was stopped
	StateStopped
	// StateFailed indicates the component failed during a lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle defines components that support full lifecycle management:
//   - Initialize() error                 // setup/create only, no context
//   - Start(ctx context.Context) error   // start with context passed through
//   - Stop(timeout time.Duration) error  // graceful shutdown with timeout
//
// The component never stores the context; it receives it as a parameter
// and derives its own child contexts for background work.
type Lifecycle interface {
	Name() string
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
