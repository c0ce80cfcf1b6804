// SPDX-License-Identifier: MIT

// Package note maps a fundamental frequency onto the twelve-tone equal
// temperament scale. Octaves follow scientific pitch notation: the octave
// number increments at C, so A4 is the reference pitch and C4 is middle C.
package note

import (
	"errors"
	"fmt"
	"math"
)

// DefaultReferenceHz is the concert pitch of A4.
const DefaultReferenceHz = 440.0

// ErrInvalidFrequency is returned for frequencies that are not finite and
// strictly positive.
var ErrInvalidFrequency = errors.New("invalid frequency")

// Names lists the pitch classes starting at the reference note A.
var Names = [12]string{"A", "A#", "B", "C", "C#", "D", "D#", "E", "F", "F#", "G", "G#"}

// Note is the nearest equal-tempered note to a frequency.
type Note struct {
	Name      string
	Index     int // position in Names
	Octave    int
	Semitones int     // signed distance from the reference pitch
	Cents     float64 // deviation from the nearest note, in [-50, 50]
}

// String formats the note as e.g. "G#4 -3.2c".
func (n Note) String() string {
	return fmt.Sprintf("%s%d %+.1fc", n.Name, n.Octave, n.Cents)
}

// Mapper converts frequencies into notes relative to a reference pitch.
type Mapper struct {
	referenceHz float64
}

// NewMapper returns a Mapper tuned to referenceHz. A non-positive or
// non-finite reference falls back to DefaultReferenceHz.
func NewMapper(referenceHz float64) Mapper {
	if !(referenceHz > 0) || math.IsInf(referenceHz, 0) {
		referenceHz = DefaultReferenceHz
	}
	return Mapper{referenceHz: referenceHz}
}

// ReferenceHz returns the frequency mapped to A4.
func (m Mapper) ReferenceHz() float64 {
	return m.referenceHz
}

// Map returns the nearest note to frequencyHz.
func (m Mapper) Map(frequencyHz float64) (Note, error) {
	if !(frequencyHz > 0) || math.IsInf(frequencyHz, 0) {
		return Note{}, fmt.Errorf("%w: %v Hz", ErrInvalidFrequency, frequencyHz)
	}

	semitones := 12 * math.Log2(frequencyHz/m.referenceHz)
	n := int(math.Round(semitones))

	idx := n % 12
	if idx < 0 {
		idx += 12
	}

	return Note{
		Name:      Names[idx],
		Index:     idx,
		Octave:    4 + floorDiv(n+9, 12),
		Semitones: n,
		Cents:     100 * (semitones - float64(n)),
	}, nil
}

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
