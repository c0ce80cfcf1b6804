// SPDX-License-Identifier: MIT

// Package config loads the tracker configuration from YAML, built-in
// defaults and ENV_* overrides.
package config

import (
	"errors"
	"fmt"
	"net"

	"pitchtrack/internal/audio"
	"pitchtrack/internal/log"
	"pitchtrack/internal/note"
	"pitchtrack/internal/pitch"
	"pitchtrack/internal/tracker"
)

// Input backends.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendFile      = "file"
)

// Core configuration constants that define the boundaries and defaults
// for the tracker.
const (
	DefaultBackend         = BackendPortAudio
	DefaultChannels        = 1   // Mono capture
	DefaultFramesPerBuffer = 512 // Balanced latency/performance
	DefaultSampleRate      = 0   // Use the device's own rate
	DefaultLogLevel        = "info"
	DefaultMQTTTopic       = "pitchtrack/pitch"
	DefaultMQTTClientID    = "pitchtrack"

	// Hardware and processing limits
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MaxChannels     = 32
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`
	Pitch     PitchConfig     `yaml:"pitch"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	Backend              string  `yaml:"backend"`                // "portaudio", "malgo" or "file".
	InputFile            string  `yaml:"input_file"`             // WAV file read by the file backend.
	Realtime             bool    `yaml:"realtime"`               // Pace the file backend at its sample rate.
	SampleRate           float64 `yaml:"sample_rate"`            // Requested rate in Hz, 0 for the device default.
	FramesPerBuffer      int     `yaml:"frames_per_buffer"`      // Frames per driver callback.
	LowLatency           bool    `yaml:"low_latency"`            // Request low latency from the device.
	InputChannels        int     `yaml:"input_channels"`         // Channels captured before downmixing.
	MaxConsecutiveErrors int     `yaml:"max_consecutive_errors"` // Stream errors in a row before a session faults.
}

// PitchConfig holds the analysis settings.
type PitchConfig struct {
	WindowSize       int     `yaml:"window_size"`       // Samples per analysis window.
	HopSize          int     `yaml:"hop_size"`          // Distance between windows, 0 for disjoint.
	ClarityThreshold float64 `yaml:"clarity_threshold"` // Minimum NSDF peak height.
	PowerThreshold   float64 `yaml:"power_threshold"`   // Minimum window energy.
	ReferenceHz      float64 `yaml:"reference_hz"`      // Pitch of A4.
}

// TransportConfig selects where events are sent. Empty addresses disable a transport.
type TransportConfig struct {
	EventBuffer      int        `yaml:"event_buffer"`       // Queue length per transport.
	WebSocketAddr    string     `yaml:"websocket_addr"`     // Listen address for /ws, e.g. ":8080".
	UDPTargetAddress string     `yaml:"udp_target_address"` // Target for event datagrams, e.g. "127.0.0.1:9090".
	MQTT             MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. "tcp://localhost:1883".
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Listen address for /metrics, empty to disable.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			Backend:              DefaultBackend,
			SampleRate:           DefaultSampleRate,
			FramesPerBuffer:      DefaultFramesPerBuffer,
			InputChannels:        DefaultChannels,
			MaxConsecutiveErrors: tracker.DefaultMaxConsecutiveErrors,
		},
		Pitch: PitchConfig{
			WindowSize:       pitch.DefaultWindowSize,
			ClarityThreshold: pitch.DefaultClarityThreshold,
			PowerThreshold:   pitch.DefaultPowerThreshold,
			ReferenceHz:      note.DefaultReferenceHz,
		},
		Transport: TransportConfig{
			EventBuffer: 256,
			MQTT: MQTTConfig{
				Topic:    DefaultMQTTTopic,
				ClientID: DefaultMQTTClientID,
			},
		},
	}
}

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	switch c.Audio.Backend {
	case BackendPortAudio, BackendMalgo:
	case BackendFile:
		if c.Audio.InputFile == "" {
			errs = append(errs, errors.New("audio.input_file must be set for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.backend %q is not one of portaudio, malgo, file", c.Audio.Backend))
	}
	if sr := c.Audio.SampleRate; sr != 0 && (sr < MinSampleRate || sr > MaxSampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %v outside [%d, %d]", sr, MinSampleRate, MaxSampleRate))
	}
	if n := c.Audio.FramesPerBuffer; n < 0 || n > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d outside [0, %d]", n, MaxBufferFrames))
	}
	if n := c.Audio.InputChannels; n < 1 || n > MaxChannels {
		errs = append(errs, fmt.Errorf("audio.input_channels %d outside [1, %d]", n, MaxChannels))
	}

	if c.Transport.EventBuffer < 1 {
		errs = append(errs, fmt.Errorf("transport.event_buffer must be positive, got %d", c.Transport.EventBuffer))
	}
	for name, addr := range map[string]string{
		"transport.websocket_addr":     c.Transport.WebSocketAddr,
		"transport.udp_target_address": c.Transport.UDPTargetAddress,
		"metrics.addr":                 c.Metrics.Addr,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", name, addr, err))
		}
	}
	if c.Transport.MQTT.Broker != "" && c.Transport.MQTT.Topic == "" {
		errs = append(errs, errors.New("transport.mqtt.topic must be set when a broker is configured"))
	}

	if err := c.Settings().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Settings converts the audio and pitch sections to tracker settings.
func (c *Config) Settings() tracker.Settings {
	return tracker.Settings{
		Stream: audio.StreamConfig{
			SampleRate:      c.Audio.SampleRate,
			FramesPerBuffer: c.Audio.FramesPerBuffer,
			Channels:        c.Audio.InputChannels,
			LowLatency:      c.Audio.LowLatency,
		},
		WindowSize:           c.Pitch.WindowSize,
		HopSize:              c.Pitch.HopSize,
		ClarityThreshold:     c.Pitch.ClarityThreshold,
		PowerThreshold:       c.Pitch.PowerThreshold,
		ReferenceHz:          c.Pitch.ReferenceHz,
		MaxConsecutiveErrors: c.Audio.MaxConsecutiveErrors,
	}
}
