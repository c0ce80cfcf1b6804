// SPDX-License-Identifier: MIT
package tracker

import "errors"

// State is a session lifecycle state.
type State int32

// Session states. A session cycles Idle → Starting → Streaming → Stopping →
// Idle. The controller reports Idle, Running and Stopping.
const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateStopping

	StateRunning = StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning is returned by Start when a session is live.
	ErrAlreadyRunning = errors.New("pitch tracking already running")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("pitch tracking not running")
)
