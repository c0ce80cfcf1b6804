// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"pitchtrack/internal/log"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "config.yaml"

var configLog = log.Named("config")

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it looks for DefaultPath and falls back to the built-in defaults when it is absent.
// Environment overrides are applied last, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		configLog.Debugf("loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides replaces file values with ENV_* variables when set.
// Values that do not parse are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	envString("ENV_LOG_LEVEL", &cfg.LogLevel)

	// ENV_AUDIO_{...}
	envString("ENV_AUDIO_BACKEND", &cfg.Audio.Backend)
	envString("ENV_AUDIO_INPUT_FILE", &cfg.Audio.InputFile)
	if val, ok := os.LookupEnv("ENV_AUDIO_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Audio.SampleRate = f
			configLog.Infof("overriding audio.sample_rate from env: %v", f)
		} else {
			configLog.Warnf("ignoring ENV_AUDIO_SAMPLE_RATE=%q: %v", val, err)
		}
	}

	// ENV_PITCH_{...}
	if val, ok := os.LookupEnv("ENV_PITCH_WINDOW_SIZE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Pitch.WindowSize = n
			configLog.Infof("overriding pitch.window_size from env: %d", n)
		} else {
			configLog.Warnf("ignoring ENV_PITCH_WINDOW_SIZE=%q: %v", val, err)
		}
	}

	// ENV_{TRANSPORT}_{...}
	envString("ENV_WEBSOCKET_ADDR", &cfg.Transport.WebSocketAddr)
	envString("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDPTargetAddress)
	envString("ENV_MQTT_BROKER", &cfg.Transport.MQTT.Broker)
	envString("ENV_MQTT_TOPIC", &cfg.Transport.MQTT.Topic)
	envString("ENV_MQTT_USERNAME", &cfg.Transport.MQTT.Username)
	envSecret("ENV_MQTT_PASSWORD", &cfg.Transport.MQTT.Password)

	envString("ENV_METRICS_ADDR", &cfg.Metrics.Addr)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		configLog.Infof("overriding from %s: %s", key, val)
	}
}

func envSecret(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		configLog.Infof("overriding from %s", key)
	}
}
