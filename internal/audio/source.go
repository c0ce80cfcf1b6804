// SPDX-License-Identifier: MIT

// Package audio opens mono input streams on a capture backend. Every backend
// delivers float32 samples in [-1, 1] through a callback that runs on the
// backend's own thread; multi-channel input is downmixed before delivery.
//
// Thread Safety:
//   - Callbacks.Data is never called concurrently with itself
//   - the slice passed to Callbacks.Data is reused after the call returns
//   - Stream.Stop waits for an in-flight callback to return
package audio

import (
	"errors"
	"time"
)

// FallbackSampleRate is used when neither the configuration nor the device
// reports a usable sample rate.
const FallbackSampleRate = 44100

var (
	// ErrDeviceUnavailable means no usable input device could be opened.
	ErrDeviceUnavailable = errors.New("no default input device")
	// ErrConfigUnsupported means the device rejected the stream parameters.
	ErrConfigUnsupported = errors.New("unsupported stream configuration")
	// ErrInputOverflow means the backend dropped input samples.
	ErrInputOverflow = errors.New("input overflow")
	// ErrDeviceLost means the device stopped without being asked to.
	ErrDeviceLost = errors.New("input device lost")
	// ErrEndOfStream means a finite source has delivered all its samples.
	ErrEndOfStream = errors.New("end of stream")
)

// StreamConfig describes the requested input stream.
type StreamConfig struct {
	// SampleRate in Hz. Zero selects the device's default rate.
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
}

// Callbacks receive data and I/O errors from a running stream.
type Callbacks struct {
	Data  func(samples []float32)
	Error func(err error)
}

func (c Callbacks) deliver(samples []float32) {
	if c.Data != nil {
		c.Data(samples)
	}
}

func (c Callbacks) fail(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

// Stream is an opened input stream.
type Stream interface {
	// SampleRate is the rate the device actually runs at.
	SampleRate() float64
	Start() error
	// Stop releases the device. It waits for a running callback to return
	// and is safe to call more than once.
	Stop() error
}

// Source opens input streams on one backend.
type Source interface {
	Name() string
	Open(cfg StreamConfig, cb Callbacks) (Stream, error)
}

// Downmix averages interleaved frames into dst and returns the mono slice.
// dst is grown if it cannot hold every frame. A trailing partial frame is
// dropped.
func Downmix(dst, interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst[:0], interleaved...)
	}
	frames := len(interleaved) / channels
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]

	scale := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for _, s := range interleaved[i*channels : (i+1)*channels] {
			sum += s
		}
		dst[i] = sum * scale
	}
	return dst
}

// ChunkDuration returns how long frames samples last at sampleRate.
func ChunkDuration(frames int, sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / sampleRate * float64(time.Second))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
