// SPDX-License-Identifier: MIT
package note

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := NewMapper(DefaultReferenceHz)

	tests := []struct {
		name       string
		freq       float64
		wantName   string
		wantOctave int
		wantCents  float64 // checked to within 0.1 cent
	}{
		{"A4", 440.0, "A", 4, 0},
		{"A5", 880.0, "A", 5, 0},
		{"A3", 220.0, "A", 3, 0},
		{"G#4", 415.30, "G#", 4, -0.01},
		{"MiddleC", 261.63, "C", 4, 0.01},
		{"B3", 246.94, "B", 3, 0},
		{"C5", 523.25, "C", 5, 0},
		{"LowE", 82.41, "E", 2, 0},
		{"Sharp", 446.0, "A", 4, 23.4},
		{"Flat", 435.0, "A", 4, -19.8},
		{"RoundsUp", 455.0, "A#", 4, -42.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Map(tt.freq)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantOctave, got.Octave)
			assert.InDelta(t, tt.wantCents, got.Cents, 0.1)
			assert.Equal(t, tt.wantName, Names[got.Index])
			assert.InDelta(t, tt.freq, m.ReferenceHz()*math.Pow(2, float64(got.Semitones)/12+got.Cents/1200), 1e-6)
		})
	}
}

func TestMapCentsBounded(t *testing.T) {
	m := NewMapper(DefaultReferenceHz)
	for f := 30.0; f < 5000; f *= 1.0037 {
		got, err := m.Map(f)
		require.NoError(t, err)
		if got.Cents < -50 || got.Cents > 50 {
			t.Fatalf("Map(%v).Cents = %v, want within [-50, 50]", f, got.Cents)
		}
	}
}

func TestMapInvalidFrequency(t *testing.T) {
	m := NewMapper(DefaultReferenceHz)
	for _, f := range []float64{0, -440, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := m.Map(f)
		if !errors.Is(err, ErrInvalidFrequency) {
			t.Errorf("Map(%v) error = %v, want ErrInvalidFrequency", f, err)
		}
	}
}

func TestReferencePitch(t *testing.T) {
	m := NewMapper(432)
	got, err := m.Map(432)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, 4, got.Octave)
	assert.InDelta(t, 0, got.Cents, 1e-9)

	// 440 Hz is about 31.8 cents sharp of A4 at 432.
	got, err = m.Map(440)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.InDelta(t, 31.77, got.Cents, 0.1)
}

func TestNewMapperFallsBack(t *testing.T) {
	for _, ref := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.Equal(t, DefaultReferenceHz, NewMapper(ref).ReferenceHz())
	}
}

func TestNoteString(t *testing.T) {
	n := Note{Name: "G#", Octave: 4, Cents: -3.21}
	assert.Equal(t, "G#4 -3.2c", n.String())
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{9, 12, 0},
		{12, 12, 1},
		{-1, 12, -1},
		{-12, 12, -1},
		{-13, 12, -2},
		{0, 12, 0},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func BenchmarkMap(b *testing.B) {
	m := NewMapper(DefaultReferenceHz)
	for b.Loop() {
		_, _ = m.Map(415.3)
	}
}
