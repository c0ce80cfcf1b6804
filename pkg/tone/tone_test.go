// SPDX-License-Identifier: MIT
package tone

import (
	"math"
	"testing"
)

func TestSine(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Note", 1024, 44100, 440.0},
		{"Middle C", 1024, 44100, 261.63},
		{"High Sample Rate", 1024, 192000, 440.0},
		{"Low Sample Rate", 1024, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Sine(tt.size, tt.sampleRate, tt.frequency, DefaultAmplitude)

			if len(result) != tt.size {
				t.Fatalf("Sine() buffer size = %d, want %d", len(result), tt.size)
			}

			for i, v := range result {
				if math.Abs(float64(v)) > DefaultAmplitude+1e-6 {
					t.Fatalf("sample %d = %f exceeds amplitude %f", i, v, DefaultAmplitude)
				}
			}

			// Two zero crossings per cycle.
			samplesPerCycle := tt.sampleRate / tt.frequency
			crossCount := 0
			for i := 1; i < tt.size; i++ {
				if (result[i-1] < 0 && result[i] >= 0) || (result[i-1] >= 0 && result[i] < 0) {
					crossCount++
				}
			}
			expectedCrossings := float64(tt.size) / (samplesPerCycle / 2)
			tolerance := 0.2 * expectedCrossings
			if math.Abs(float64(crossCount)-expectedCrossings) > tolerance {
				t.Errorf("zero crossings = %d, expected approximately %.1f±%.1f",
					crossCount, expectedCrossings, tolerance)
			}
		})
	}
}

func TestSinePhaseIsContinuous(t *testing.T) {
	whole := Sine(2048, 44100, 440, DefaultAmplitude)
	first := SinePhase(1024, 44100, 440, DefaultAmplitude, 0)
	second := SinePhase(1024, 44100, 440, DefaultAmplitude, 1024)

	joined := Concat(first, second)
	for i := range whole {
		if whole[i] != joined[i] {
			t.Fatalf("sample %d: got %f, want %f", i, joined[i], whole[i])
		}
	}
}

func TestHarmonic(t *testing.T) {
	result := Harmonic(1024, 44100, 220, 1)
	hasNonZero := false
	for _, v := range result {
		if v != 0 {
			hasNonZero = true
			break
		}
	}
	if !hasNonZero {
		t.Error("Harmonic() produced all zeros")
	}
}

func TestSplit(t *testing.T) {
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = float32(i)
	}

	tests := []struct {
		name   string
		sizes  []int
		chunks int
	}{
		{"No sizes", nil, 1},
		{"Even", []int{10}, 10},
		{"Irregular", []int{7, 13, 1}, 14},
		{"Oversized", []int{1000}, 1},
		{"Zero size treated as one", []int{0}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(samples, tt.sizes...)
			if len(chunks) != tt.chunks {
				t.Fatalf("Split() chunks = %d, want %d", len(chunks), tt.chunks)
			}
			joined := Concat(chunks...)
			if len(joined) != len(samples) {
				t.Fatalf("joined length = %d, want %d", len(joined), len(samples))
			}
			for i := range samples {
				if joined[i] != samples[i] {
					t.Fatalf("sample %d: got %f, want %f", i, joined[i], samples[i])
				}
			}
		})
	}
}
