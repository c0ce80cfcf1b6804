// SPDX-License-Identifier: MIT

// Package tone synthesises deterministic float32 test signals for the
// pitch pipeline: pure sines, harmonic-rich tones and silence.
package tone

import "math"

// DefaultAmplitude keeps generated signals well inside [-1, 1].
const DefaultAmplitude = 0.5

// Sine returns size samples of a sine at frequency Hz.
func Sine(size int, sampleRate, frequency, amplitude float64) []float32 {
	return SinePhase(size, sampleRate, frequency, amplitude, 0)
}

// SinePhase is Sine starting at sample offset start, so consecutive calls
// with start advanced by size produce one continuous waveform.
func SinePhase(size int, sampleRate, frequency, amplitude float64, start int) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(start+i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// Harmonic returns a fundamental plus its 2nd and 3rd harmonics with
// amplitudes 0.5, 0.3 and 0.2 (scaled by amplitude).
func Harmonic(size int, sampleRate, fundamental, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*fundamental*t)*0.5 +
			math.Sin(2*math.Pi*2*fundamental*t)*0.3 +
			math.Sin(2*math.Pi*3*fundamental*t)*0.2
		buffer[i] = float32(signal * amplitude)
	}
	return buffer
}

// Silence returns size zero samples.
func Silence(size int) []float32 {
	return make([]float32, size)
}

// Concat joins buffers in order into a new slice.
func Concat(buffers ...[]float32) []float32 {
	n := 0
	for _, b := range buffers {
		n += len(b)
	}
	out := make([]float32, 0, n)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}

// Split cuts samples into consecutive chunks using sizes cyclically.
// It models a driver delivering irregular callback buffers.
func Split(samples []float32, sizes ...int) [][]float32 {
	if len(sizes) == 0 {
		return [][]float32{samples}
	}
	var chunks [][]float32
	for i, pos := 0, 0; pos < len(samples); i++ {
		n := sizes[i%len(sizes)]
		if n <= 0 {
			n = 1
		}
		end := min(pos+n, len(samples))
		chunks = append(chunks, samples[pos:end])
		pos = end
	}
	return chunks
}
