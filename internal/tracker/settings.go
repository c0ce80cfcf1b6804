// SPDX-License-Identifier: MIT
package tracker

import (
	"fmt"

	"pitchtrack/internal/audio"
	"pitchtrack/internal/note"
	"pitchtrack/internal/pitch"
)

// DefaultMaxConsecutiveErrors is how many stream errors in a row a session
// tolerates before it faults.
const DefaultMaxConsecutiveErrors = 5

// Settings configure every session a Controller starts.
type Settings struct {
	Stream audio.StreamConfig

	WindowSize int
	// HopSize is the distance between window starts; zero means WindowSize.
	HopSize int

	ClarityThreshold float64
	PowerThreshold   float64
	ReferenceHz      float64

	MaxConsecutiveErrors int
}

// DefaultSettings returns the tracker defaults: 1024-sample disjoint windows
// at the device's own sample rate, 0.7 clarity, 0.1 power, A4 = 440 Hz.
func DefaultSettings() Settings {
	return Settings{
		Stream: audio.StreamConfig{
			FramesPerBuffer: 512,
			Channels:        1,
		},
		WindowSize:           pitch.DefaultWindowSize,
		ClarityThreshold:     pitch.DefaultClarityThreshold,
		PowerThreshold:       pitch.DefaultPowerThreshold,
		ReferenceHz:          note.DefaultReferenceHz,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// hop returns the effective hop size.
func (s Settings) hop() int {
	if s.HopSize <= 0 {
		return s.WindowSize
	}
	return s.HopSize
}

// Validate reports the first setting a session could not run with.
func (s Settings) Validate() error {
	if s.WindowSize < 4 {
		return fmt.Errorf("window size must be at least 4, got %d", s.WindowSize)
	}
	if s.hop() > s.WindowSize {
		return fmt.Errorf("hop size %d exceeds window size %d", s.HopSize, s.WindowSize)
	}
	if s.ClarityThreshold < 0 || s.ClarityThreshold > 1 {
		return fmt.Errorf("clarity threshold must be in [0, 1], got %v", s.ClarityThreshold)
	}
	if s.PowerThreshold < 0 {
		return fmt.Errorf("power threshold must not be negative, got %v", s.PowerThreshold)
	}
	if s.ReferenceHz <= 0 {
		return fmt.Errorf("reference pitch must be positive, got %v", s.ReferenceHz)
	}
	if s.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("max consecutive errors must be at least 1, got %d", s.MaxConsecutiveErrors)
	}
	return nil
}
