// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoSource captures from the default miniaudio input device.
type MalgoSource struct {
	backends []malgo.Backend
}

// NewMalgoSource returns a source using the platform's native backend.
func NewMalgoSource() *MalgoSource {
	return &MalgoSource{backends: platformBackends(runtime.GOOS)}
}

// Name implements Source.
func (s *MalgoSource) Name() string { return "malgo" }

// Open implements Source.
func (s *MalgoSource) Open(cfg StreamConfig, cb Callbacks) (Stream, error) {
	ctx, err := malgo.InitContext(s.backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %w", ErrDeviceUnavailable, err)
	}

	channels := orDefault(cfg.Channels, 1)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(max(cfg.FramesPerBuffer, 0))
	deviceConfig.Alsa.NoMMap = 1
	if cfg.LowLatency {
		deviceConfig.PerformanceProfile = malgo.LowLatency
	} else {
		deviceConfig.PerformanceProfile = malgo.Conservative
	}

	st := &malgoStream{
		ctx:      ctx,
		cb:       cb,
		channels: channels,
		samples:  make([]float32, orDefault(cfg.FramesPerBuffer, 1024)*channels),
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: st.onData,
		Stop: st.onStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, classifyMalgoError(err)
	}
	st.device = device

	st.rate = float64(device.SampleRate())
	if st.rate <= 0 {
		st.rate = FallbackSampleRate
	}
	return st, nil
}

type malgoStream struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	cb       Callbacks
	channels int
	rate     float64
	samples  []float32
	mono     []float32

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func (s *malgoStream) SampleRate() float64 { return s.rate }

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		_ = s.Stop()
		return classifyMalgoError(err)
	}
	return nil
}

// Stop blocks until miniaudio has returned from the last callback.
func (s *malgoStream) Stop() error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		var stopErr error
		if s.device.IsStarted() {
			stopErr = s.device.Stop()
		}
		s.device.Uninit()
		s.stopErr = errors.Join(stopErr, s.ctx.Uninit())
		s.ctx.Free()
	})
	return s.stopErr
}

// onData decodes little-endian F32 frames and delivers them downmixed.
func (s *malgoStream) onData(_, input []byte, frameCount uint32) {
	n := min(int(frameCount)*s.channels, len(input)/4)
	if cap(s.samples) < n {
		s.samples = make([]float32, n)
	}
	s.samples = s.samples[:n]
	for i := range s.samples {
		s.samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}

	samples := s.samples
	if s.channels > 1 {
		s.mono = Downmix(s.mono, s.samples, s.channels)
		samples = s.mono
	}
	s.cb.deliver(samples)
}

// onStop fires whenever the device stops, including on Stop.
func (s *malgoStream) onStop() {
	if !s.stopping.Load() {
		s.cb.fail(ErrDeviceLost)
	}
}

func classifyMalgoError(err error) error {
	switch {
	case errors.Is(err, malgo.ErrNoDevice), errors.Is(err, malgo.ErrDeviceNotInitialized):
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	case errors.Is(err, malgo.ErrFormatNotSupported), errors.Is(err, malgo.ErrInvalidDeviceConfig):
		return fmt.Errorf("%w: %w", ErrConfigUnsupported, err)
	default:
		return fmt.Errorf("malgo: %w", err)
	}
}

// platformBackends returns the preferred capture backend for goos, or nil
// to let miniaudio probe every backend it was built with.
func platformBackends(goos string) []malgo.Backend {
	switch goos {
	case "linux":
		return []malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}
