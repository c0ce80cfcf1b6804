// SPDX-License-Identifier: MIT
package tracker

import (
	"slices"
	"sync"
	"sync/atomic"

	"pitchtrack/internal/audio"
	"pitchtrack/internal/event"
)

// fakeSource opens fakeStreams. The test goroutine plays the driver thread
// by calling feed and fail on the stream.
type fakeSource struct {
	rate     float64
	openErr  error
	startErr error

	mu      sync.Mutex
	streams []*fakeStream
	lastCfg audio.StreamConfig
}

func newFakeSource(rate float64) *fakeSource {
	return &fakeSource{rate: rate}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Open(cfg audio.StreamConfig, cb audio.Callbacks) (audio.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCfg = cfg
	if f.openErr != nil {
		return nil, f.openErr
	}
	st := &fakeStream{cb: cb, rate: f.rate, startErr: f.startErr}
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeSource) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeSource) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// fakeStream keeps delivering whatever it is fed, even after Stop, so tests
// can check the session ignores late callbacks.
type fakeStream struct {
	cb       audio.Callbacks
	rate     float64
	startErr error
	stopGate chan struct{} // when set, Stop blocks until it is closed

	started   atomic.Bool
	stopCalls atomic.Int32
}

func (s *fakeStream) SampleRate() float64 { return s.rate }

func (s *fakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started.Store(true)
	return nil
}

func (s *fakeStream) Stop() error {
	s.stopCalls.Add(1)
	if s.stopGate != nil {
		<-s.stopGate
	}
	return nil
}

func (s *fakeStream) feed(chunks ...[]float32) {
	for _, c := range chunks {
		s.cb.Data(c)
	}
}

func (s *fakeStream) fail(errs ...error) {
	for _, err := range errs {
		s.cb.Error(err)
	}
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []event.PitchDetected
}

func (r *recordingSink) Publish(e event.PitchDetected) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) snapshot() []event.PitchDetected {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
