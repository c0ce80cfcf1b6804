// SPDX-License-Identifier: MIT

// Package tracker runs the capture pipeline: input stream → analysis
// windows → pitch estimate → note → event. A Session owns one input stream
// and the per-stream state; a Controller starts and stops sessions on behalf
// of the application and recovers from faults.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pitchtrack/internal/audio"
	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
	"pitchtrack/internal/metrics"
	"pitchtrack/internal/note"
	"pitchtrack/internal/pitch"
	"pitchtrack/internal/window"
)

// warnInterval limits how often the audio path logs repeated warnings.
const warnInterval = time.Second

// Session streams one input device through the pitch pipeline.
//
// Start, Stop and State may be called from any goroutine. The analysis
// itself runs synchronously inside the backend's data callback, so events
// are published on the audio thread in window order.
type Session struct {
	id       string
	settings Settings
	source   audio.Source
	sink     event.Sink
	metrics  *metrics.Pipeline
	clock    func() time.Time
	log      *log.Logger

	state  atomic.Int32
	ctlMu  sync.Mutex // serialises Start and Stop
	stream audio.Stream
	faults chan error

	// Guarded by procMu. Held by the audio path for the whole of a chunk;
	// Stop takes it once to wait out the chunk in flight.
	procMu    sync.Mutex
	done      chan struct{}
	buffer    *window.Buffer
	estimator *pitch.Estimator
	mapper    note.Mapper
	rate      float64
	budget    time.Duration
	seq       uint64
	lastWarn  time.Time

	consecutiveErrors atomic.Int32
	errorSinceChunk   atomic.Bool
}

// NewSession validates settings and pre-allocates the analysis state.
func NewSession(id string, settings Settings, source audio.Source, sink event.Sink, m *metrics.Pipeline) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	buffer, err := window.New(settings.WindowSize, settings.hop())
	if err != nil {
		return nil, err
	}
	estimator, err := pitch.NewEstimator(settings.WindowSize)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:        id,
		settings:  settings,
		source:    source,
		sink:      sink,
		metrics:   m,
		clock:     time.Now,
		log:       log.Named("session"),
		faults:    make(chan error, 1),
		buffer:    buffer,
		estimator: estimator,
		mapper:    note.NewMapper(settings.ReferenceHz),
	}, nil
}

// ID returns the session identifier carried by its events.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// SampleRate returns the rate of the running stream, or zero.
func (s *Session) SampleRate() float64 {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	return s.rate
}

// Faults delivers the first unrecoverable stream error of a run. The
// session keeps its state; whoever owns it decides to call Stop.
func (s *Session) Faults() <-chan error { return s.faults }

// Start opens the input stream and begins analysis. It returns once the
// stream is live.
func (s *Session) Start() error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrAlreadyRunning
	}

	s.procMu.Lock()
	s.done = make(chan struct{})
	s.buffer.Reset()
	s.seq = 0
	s.procMu.Unlock()
	s.consecutiveErrors.Store(0)
	s.errorSinceChunk.Store(false)
	select {
	case <-s.faults:
	default:
	}

	stream, err := s.source.Open(s.settings.Stream, audio.Callbacks{
		Data:  s.onChunk,
		Error: s.onStreamError,
	})
	if err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("open %s input: %w", s.source.Name(), err)
	}

	rate := stream.SampleRate()
	if rate <= 0 {
		rate = audio.FallbackSampleRate
	}
	s.procMu.Lock()
	s.rate = rate
	// A new window is due every hop samples.
	s.budget = audio.ChunkDuration(s.settings.hop(), rate)
	s.procMu.Unlock()

	if err := stream.Start(); err != nil {
		s.procMu.Lock()
		close(s.done)
		s.procMu.Unlock()
		_ = stream.Stop()
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("start %s input: %w", s.source.Name(), err)
	}

	s.stream = stream
	s.state.Store(int32(StateStreaming))
	s.metrics.SessionStarted()
	s.log.Infof("%s streaming at %.0f Hz, window %d, hop %d",
		s.id, rate, s.settings.WindowSize, s.settings.hop())
	return nil
}

// Stop ends the session. No event is published once Stop returns.
func (s *Session) Stop() error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if !s.state.CompareAndSwap(int32(StateStreaming), int32(StateStopping)) {
		return ErrNotRunning
	}

	close(s.done)
	// Wait for the chunk in flight, if any.
	s.procMu.Lock()
	windows, pending := s.seq, s.buffer.Pending()
	s.procMu.Unlock()

	err := s.stream.Stop()
	s.stream = nil
	s.state.Store(int32(StateIdle))

	s.log.Infof("%s stopped after %d windows (%d samples discarded)", s.id, windows, pending)
	if err != nil {
		return fmt.Errorf("stop %s input: %w", s.source.Name(), err)
	}
	return nil
}

// onChunk runs on the audio thread for every chunk the backend delivers.
func (s *Session) onChunk(samples []float32) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	if !s.errorSinceChunk.Swap(false) {
		s.consecutiveErrors.Store(0)
	}
	s.buffer.Push(samples, s.analyse)
}

// analyse estimates, maps and publishes one window. Called with procMu held.
func (s *Session) analyse(w []float32) {
	start := time.Now()

	seq := s.seq
	s.seq++

	ev := event.NoPitch(s.id, seq, s.clock())
	est, ok := s.estimator.Estimate(w, s.rate, s.settings.ClarityThreshold, s.settings.PowerThreshold)
	if ok {
		if n, err := s.mapper.Map(est.FrequencyHz); err == nil {
			ev = event.Detected(s.id, seq, ev.Timestamp, est.FrequencyHz, est.Clarity, n)
		}
	}

	took := time.Since(start)
	s.metrics.WindowAnalysed(took, ev.FrequencyHz)
	if took > s.budget {
		s.metrics.BudgetOverrun()
		s.warnf("window %d took %v, budget %v", seq, took, s.budget)
	}

	if err := s.sink.Publish(ev); err != nil {
		s.warnf("publish window %d: %v", seq, err)
	}
}

// onStreamError runs on whichever thread the backend reports errors from.
func (s *Session) onStreamError(err error) {
	s.metrics.StreamError(errorKind(err))

	switch {
	case errors.Is(err, audio.ErrEndOfStream):
		s.log.Infof("%s input ended", s.id)
		s.raise(err)
		return
	case errors.Is(err, audio.ErrDeviceLost):
		s.log.Errorf("%s: %v", s.id, err)
		s.raise(err)
		return
	}

	s.errorSinceChunk.Store(true)
	n := int(s.consecutiveErrors.Add(1))
	s.log.Warnf("%s stream error (%d/%d): %v", s.id, n, s.settings.MaxConsecutiveErrors, err)
	if n >= s.settings.MaxConsecutiveErrors {
		s.raise(fmt.Errorf("%d consecutive stream errors: %w", n, err))
	}
}

func (s *Session) raise(err error) {
	select {
	case s.faults <- err:
	default:
	}
}

// warnf logs at most once per warnInterval. Called with procMu held.
func (s *Session) warnf(format string, args ...any) {
	now := time.Now()
	if now.Sub(s.lastWarn) < warnInterval {
		return
	}
	s.lastWarn = now
	s.log.Warnf(format, args...)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, audio.ErrInputOverflow):
		return "overflow"
	case errors.Is(err, audio.ErrDeviceLost):
		return "device_lost"
	case errors.Is(err, audio.ErrEndOfStream):
		return "end_of_stream"
	default:
		return "other"
	}
}
