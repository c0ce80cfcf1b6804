// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Seams over the PortAudio library, replaced in tests.
var (
	paLibInitialize         = portaudio.Initialize
	paLibTerminate          = portaudio.Terminate
	paLibDefaultInputDevice = portaudio.DefaultInputDevice
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any PortAudioSource is opened and paired with
// a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// PortAudioSource captures from the default PortAudio input device.
type PortAudioSource struct{}

// NewPortAudioSource returns a source on the default input device.
func NewPortAudioSource() *PortAudioSource {
	return &PortAudioSource{}
}

// Name implements Source.
func (s *PortAudioSource) Name() string { return "portaudio" }

// Open implements Source.
func (s *PortAudioSource) Open(cfg StreamConfig, cb Callbacks) (Stream, error) {
	device, err := paLibDefaultInputDevice()
	if err != nil {
		return nil, classifyPortAudioError(err)
	}
	if device == nil {
		return nil, ErrDeviceUnavailable
	}

	channels := orDefault(cfg.Channels, 1)
	if device.MaxInputChannels < channels {
		return nil, fmt.Errorf("%w: %s has %d input channels, want %d",
			ErrConfigUnsupported, device.Name, device.MaxInputChannels, channels)
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = device.DefaultSampleRate
	}
	if rate <= 0 {
		rate = FallbackSampleRate
	}

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	st := &paStream{
		cb:       cb,
		channels: channels,
		rate:     rate,
		mono:     make([]float32, orDefault(cfg.FramesPerBuffer, 1024)),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: cfg.FramesPerBuffer,
		SampleRate:      rate,
	}

	stream, err := portaudio.OpenStream(params, st.process)
	if err != nil {
		return nil, classifyPortAudioError(err)
	}
	st.stream = stream
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		st.rate = info.SampleRate
	}
	return st, nil
}

type paStream struct {
	stream   *portaudio.Stream
	cb       Callbacks
	channels int
	rate     float64
	mono     []float32

	stopOnce sync.Once
	stopErr  error
}

func (s *paStream) SampleRate() float64 { return s.rate }

func (s *paStream) Start() error {
	if err := s.stream.Start(); err != nil {
		_ = s.Stop()
		return classifyPortAudioError(err)
	}
	return nil
}

// Stop blocks until PortAudio has returned from the last callback.
func (s *paStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.stream == nil {
			return
		}
		stopErr := s.stream.Stop()
		if errors.Is(stopErr, portaudio.StreamIsStopped) {
			stopErr = nil
		}
		s.stopErr = errors.Join(stopErr, s.stream.Close())
	})
	return s.stopErr
}

// process is the PortAudio stream callback.
// Performance Critical:
// - Runs on the PortAudio callback thread
// - Uses pre-allocated buffers only
func (s *paStream) process(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if flags&portaudio.InputOverflow != 0 {
		s.cb.fail(ErrInputOverflow)
	}

	samples := in
	if s.channels > 1 {
		s.mono = Downmix(s.mono, in, s.channels)
		samples = s.mono
	}
	s.cb.deliver(samples)
}

// classifyPortAudioError maps PortAudio errors onto the package sentinels.
func classifyPortAudioError(err error) error {
	var paErr portaudio.Error
	if !errors.As(err, &paErr) {
		return fmt.Errorf("portaudio: %w", err)
	}
	switch paErr {
	case portaudio.NoDefaultInputDevice, portaudio.DeviceUnavailable, portaudio.InvalidDevice:
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	case portaudio.InvalidSampleRate, portaudio.InvalidChannelCount, portaudio.SampleFormatNotSupported:
		return fmt.Errorf("%w: %w", ErrConfigUnsupported, err)
	default:
		return fmt.Errorf("portaudio: %w", err)
	}
}
