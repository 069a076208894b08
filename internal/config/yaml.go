// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/analyzer"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/note"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/resample"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads configuration from the YAML file at path. An empty path
// searches the default locations and falls back to built-in defaults when
// none exist. Environment overrides are applied after the file, then the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = findConfig("config.yaml", "voice-analyzer.yaml")
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func findConfig(candidates ...string) string {
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Validate checks ranges and names. The first failure is returned wrapped
// in ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return invalid("log_level %q", c.LogLevel)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID {
		return invalid("audio.input_device %d below %d", a.InputDevice, MinDeviceID)
	}
	if a.SampleRate != 0 && (a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate) {
		return invalid("audio.sample_rate %.0f outside %d..%d", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer < 1 || a.FramesPerBuffer > MaxBufferFrames {
		return invalid("audio.frames_per_buffer %d outside 1..%d", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 || a.InputChannels > MaxChannels {
		return invalid("audio.input_channels %d outside 1..%d", a.InputChannels, MaxChannels)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		return invalid("audio.gate_threshold %.3f outside 0..1", a.GateThreshold)
	}

	if _, _, err := c.Analysis.Algorithms(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Analysis.BackendFactory(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if t := c.Analysis.ConfidenceThreshold; t < 0 || t >= 1 {
		return invalid("analysis.confidence_threshold %.3f outside [0, 1)", t)
	}
	lower, upper, err := c.Analysis.Limits()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if lower.Hz() >= upper.Hz() {
		return invalid("analysis.lower_limit_note %s not below upper_limit_note %s", lower, upper)
	}

	if c.Recording.Enabled {
		if !strings.EqualFold(c.Recording.Format, DefaultRecordingFormat) {
			return invalid("recording.format %q, only wav is supported", c.Recording.Format)
		}
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return invalid("recording.bit_depth %d", c.Recording.BitDepth)
		}
	}

	t := c.Transport
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return invalid("transport.udp_target_address %q missing port", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return invalid("transport.udp_send_interval must be positive")
		}
	}
	if t.WebSocketEnabled {
		if !strings.Contains(t.WebSocketAddress, ":") {
			return invalid("transport.websocket_address %q missing port", t.WebSocketAddress)
		}
		if !strings.HasPrefix(t.WebSocketPath, "/") {
			return invalid("transport.websocket_path %q must start with /", t.WebSocketPath)
		}
		switch t.WebSocketCodec {
		case CodecJSON, CodecMsgpack:
		default:
			return invalid("transport.websocket_codec %q", t.WebSocketCodec)
		}
	}

	if c.UI.HistorySeconds < 1 {
		return invalid("ui.history_seconds %d must be positive", c.UI.HistorySeconds)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Algorithms parses the configured pitch and formant algorithms.
func (a AnalysisConfig) Algorithms() (analyzer.PitchAlgorithm, analyzer.FormantAlgorithm, error) {
	pitch, err := analyzer.ParsePitchAlgorithm(a.PitchAlgorithm)
	if err != nil {
		return 0, 0, err
	}
	formant, err := analyzer.ParseFormantAlgorithm(a.Formants)
	if err != nil {
		return 0, 0, err
	}
	return pitch, formant, nil
}

// BackendFactory returns the resampler backend named by Resampler.
func (a AnalysisConfig) BackendFactory() (resample.BackendFactory, error) {
	switch strings.ToLower(a.Resampler) {
	case ResamplerPolyphase, "":
		return resample.NewPolyphase, nil
	case ResamplerSoxr:
		return resample.NewSoxr, nil
	}
	return nil, fmt.Errorf("analysis.resampler %q", a.Resampler)
}

// Limits parses the guide line notes.
func (a AnalysisConfig) Limits() (lower, upper note.Note, err error) {
	if lower, err = note.ParseNote(a.LowerLimitNote); err != nil {
		return note.Note{}, note.Note{}, fmt.Errorf("analysis.lower_limit_note: %w", err)
	}
	if upper, err = note.ParseNote(a.UpperLimitNote); err != nil {
		return note.Note{}, note.Note{}, fmt.Errorf("analysis.upper_limit_note: %w", err)
	}
	return lower, upper, nil
}

// applyEnvOverrides applies ENV_* variables on top of file values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			log.Infof("configuration: overriding debug from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("configuration: overriding log_level from env: %s", val)
	}

	if val, ok := os.LookupEnv("ENV_INPUT_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = n
			log.Infof("configuration: overriding audio.input_device from env: %d", n)
		}
	}

	// ENV_ANALYSIS_*
	if val, ok := os.LookupEnv("ENV_PITCH_ALGORITHM"); ok {
		c.Analysis.PitchAlgorithm = val
		log.Infof("configuration: overriding analysis.pitch_algorithm from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_FORMANTS"); ok {
		c.Analysis.Formants = val
		log.Infof("configuration: overriding analysis.formants from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_RESAMPLER"); ok {
		c.Analysis.Resampler = val
		log.Infof("configuration: overriding analysis.resampler from env: %s", val)
	}

	// ENV_UDP_*
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			log.Infof("configuration: overriding transport.udp_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Infof("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
			log.Infof("configuration: overriding transport.udp_send_interval from env: %s", d)
		}
	}

	// ENV_WS_*
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = b
			log.Infof("configuration: overriding transport.websocket_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		log.Infof("configuration: overriding transport.websocket_address from env: %s", val)
	}
}
