// SPDX-License-Identifier: MIT

// Package pitch estimates the fundamental frequency of a monophonic window
// using the McLeod pitch method. The normalised square difference function
// (NSDF) is derived from the window's autocorrelation, which is computed in
// O(N log N) with a zero-padded real FFT.
package pitch

import (
	"fmt"
	"math"

	"pitchtrack/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Defaults used by the tracker when nothing is configured.
const (
	DefaultWindowSize       = 1024
	DefaultClarityThreshold = 0.7
	DefaultPowerThreshold   = 0.1
)

// keyMaximumCutoff selects the first key maximum within this fraction of
// the highest one.
const keyMaximumCutoff = 0.9

// Estimate is a detected pitch.
type Estimate struct {
	FrequencyHz float64
	// Clarity is the NSDF value at the chosen peak, in [0, 1].
	Clarity float64
}

// workspace holds pre-allocated buffers for one analysis.
type workspace struct {
	squares  []float64    // ...per-sample energy of the window
	padded   []float64    // ...for the zero-padded FFT input
	spectrum []complex128 // ...for the FFT output and power spectrum
	acf      []float64    // ...for the (unnormalised) autocorrelation
	nsdf     []float64    // ...for the normalised square difference
	maxima   []int        // ...for the lag of every key maximum
}

// Estimator holds the FFT plan and buffers for one window size. An
// Estimator is not safe for concurrent use.
type Estimator struct {
	size      int
	maxLag    int
	fftObj    *fourier.FFT
	workspace workspace
}

// NewEstimator pre-allocates everything Estimate needs for windows of size
// samples. Lags are searched up to three quarters of size, so every lag
// keeps at least a quarter of the window overlapping.
func NewEstimator(size int) (*Estimator, error) {
	if size < 4 {
		return nil, fmt.Errorf("pitch window size must be at least 4, got %d", size)
	}

	maxLag := size - size/4
	padded := bitint.NextPowerOfTwo(size + maxLag)

	return &Estimator{
		size:   size,
		maxLag: maxLag,
		fftObj: fourier.NewFFT(padded),
		workspace: workspace{
			squares:  make([]float64, size),
			padded:   make([]float64, padded),
			spectrum: make([]complex128, padded/2+1),
			acf:      make([]float64, padded),
			nsdf:     make([]float64, maxLag),
			maxima:   make([]int, 0, maxLag),
		},
	}, nil
}

// Size returns the window length the estimator accepts.
func (e *Estimator) Size() int { return e.size }

// Estimate returns the pitch of window, or false when the window is the
// wrong length, holds a non-finite sample, is too quiet (sum of squares
// below powerThreshold) or has no periodic peak with at least
// clarityThreshold clarity.
func (e *Estimator) Estimate(window []float32, sampleRateHz, clarityThreshold, powerThreshold float64) (Estimate, bool) {
	if len(window) != e.size || sampleRateHz <= 0 {
		return Estimate{}, false
	}

	ws := &e.workspace
	power := 0.0
	for i, s := range window {
		v := float64(s)
		ws.squares[i] = v * v
		ws.padded[i] = v
		power += ws.squares[i]
	}
	if math.IsNaN(power) || math.IsInf(power, 0) || power == 0 || power < powerThreshold {
		return Estimate{}, false
	}

	e.computeNSDF(power)

	tau, ok := e.chooseKeyMaximum()
	if !ok {
		return Estimate{}, false
	}

	lag, clarity := e.interpolate(tau)
	if clarity > 1 {
		clarity = 1
	} else if clarity < 0 {
		clarity = 0
	}
	if clarity < clarityThreshold || lag <= 0 {
		return Estimate{}, false
	}

	return Estimate{FrequencyHz: sampleRateHz / lag, Clarity: clarity}, true
}

// computeNSDF fills the workspace NSDF for lags [0, maxLag).
func (e *Estimator) computeNSDF(power float64) {
	ws := &e.workspace

	// Autocorrelation via the power spectrum. Padding past size+maxLag
	// keeps the circular correlation linear over the lags we read.
	for i := e.size; i < len(ws.padded); i++ {
		ws.padded[i] = 0
	}
	e.fftObj.Coefficients(ws.spectrum, ws.padded)
	for i, c := range ws.spectrum {
		re, im := real(c), imag(c)
		ws.spectrum[i] = complex(re*re+im*im, 0)
	}
	e.fftObj.Sequence(ws.acf, ws.spectrum)
	scale := 1 / float64(len(ws.padded))

	m := 2 * power
	for tau := range e.maxLag {
		if tau > 0 {
			m -= ws.squares[tau-1] + ws.squares[e.size-tau]
		}
		if m <= 0 {
			ws.nsdf[tau] = 0
			continue
		}
		ws.nsdf[tau] = 2 * ws.acf[tau] * scale / m
	}
}

// chooseKeyMaximum collects the highest point of every positive lobe after
// the first negative zero crossing and returns the first whose value is
// within keyMaximumCutoff of the highest.
func (e *Estimator) chooseKeyMaximum() (int, bool) {
	ws := &e.workspace
	ws.maxima = ws.maxima[:0]

	tau := 1
	for tau < e.maxLag && ws.nsdf[tau] > 0 {
		tau++
	}

	best := -1
	for tau < e.maxLag {
		// Skip to the next positive lobe.
		for tau < e.maxLag && !(ws.nsdf[tau] > 0) {
			tau++
		}
		if tau >= e.maxLag {
			break
		}
		peak := tau
		for tau < e.maxLag && ws.nsdf[tau] > 0 {
			if ws.nsdf[tau] > ws.nsdf[peak] {
				peak = tau
			}
			tau++
		}
		// A lobe cut off by the lag limit only counts if it already turned.
		if peak >= e.maxLag-1 {
			break
		}
		ws.maxima = append(ws.maxima, peak)
		if best < 0 || ws.nsdf[peak] > ws.nsdf[best] {
			best = peak
		}
	}

	if best < 0 {
		return 0, false
	}
	cutoff := keyMaximumCutoff * ws.nsdf[best]
	for _, peak := range ws.maxima {
		if ws.nsdf[peak] >= cutoff {
			return peak, true
		}
	}
	return best, true
}

// interpolate refines the peak at tau with a parabola through its
// neighbours and returns the fractional lag and the interpolated height.
func (e *Estimator) interpolate(tau int) (float64, float64) {
	ws := &e.workspace
	b := ws.nsdf[tau]
	if tau < 1 || tau+1 >= e.maxLag {
		return float64(tau), b
	}

	a, c := ws.nsdf[tau-1], ws.nsdf[tau+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(tau), b
	}
	shift := 0.5 * (a - c) / den
	return float64(tau) + shift, b - 0.25*(a-c)*shift
}
