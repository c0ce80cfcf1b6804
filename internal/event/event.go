// SPDX-License-Identifier: MIT

// Package event defines the per-window result the tracker publishes and the
// sink interface consumers implement.
package event

import (
	"time"

	"pitchtrack/internal/note"
)

// Name is the event name consumers subscribe to.
const Name = "pitch_detected"

// PitchDetected is published once per analysis window, in window order.
// A window without a detectable pitch has FrequencyHz 0 and an empty
// NoteName.
type PitchDetected struct {
	Session     string    `json:"session"`
	Sequence    uint64    `json:"seq"`
	FrequencyHz float64   `json:"frequencyHz"`
	NoteName    string    `json:"noteName"`
	NoteIndex   int       `json:"noteIndex"`
	Octave      int       `json:"octave"`
	Cents       float64   `json:"cents"`
	Clarity     float64   `json:"clarity"`
	Timestamp   time.Time `json:"timestamp"`
}

// NoPitch returns the event for a window without a detectable pitch.
func NoPitch(session string, seq uint64, ts time.Time) PitchDetected {
	return PitchDetected{
		Session:   session,
		Sequence:  seq,
		NoteIndex: -1,
		Timestamp: ts,
	}
}

// Detected returns the event for a pitch mapped onto n.
func Detected(session string, seq uint64, ts time.Time, frequencyHz, clarity float64, n note.Note) PitchDetected {
	return PitchDetected{
		Session:     session,
		Sequence:    seq,
		FrequencyHz: frequencyHz,
		NoteName:    n.Name,
		NoteIndex:   n.Index,
		Octave:      n.Octave,
		Cents:       n.Cents,
		Clarity:     clarity,
		Timestamp:   ts,
	}
}

// HasPitch reports whether the event carries a detected pitch.
func (e PitchDetected) HasPitch() bool {
	return e.FrequencyHz > 0 && e.NoteName != ""
}

// Sink receives events from the audio path. Publish is called on the audio
// driver's thread and must not block; implementations queue or drop.
type Sink interface {
	Publish(PitchDetected) error
	Close() error
}

// SinkFunc adapts a function to a Sink with a no-op Close.
type SinkFunc func(PitchDetected) error

// Publish calls f(e).
func (f SinkFunc) Publish(e PitchDetected) error { return f(e) }

// Close does nothing.
func (f SinkFunc) Close() error { return nil }
