// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and hardware limits for the voice analyzer host.
const (
	DefaultDeviceID        = MinDeviceID // System default input
	DefaultSampleRate      = 44100       // Most capture devices run here
	DefaultFramesPerBuffer = 1024        // ~23 ms at 44.1 kHz
	DefaultChannels        = 1           // Voice is mono
	DefaultGateThreshold   = 0.0         // Gate open

	DefaultPitchAlgorithm      = "yin"
	DefaultFormantAlgorithm    = "none"
	DefaultResampler           = ResamplerPolyphase
	DefaultConfidenceThreshold = 0.20
	DefaultLowerLimitNote      = "C3"
	DefaultUpperLimitNote      = "C4"

	DefaultRecordingDir    = "./recordings"
	DefaultRecordingFormat = "wav"
	DefaultBitDepth        = 16

	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond
	DefaultWebSocketAddress = "127.0.0.1:8080"
	DefaultWebSocketPath    = "/pitch"
	DefaultWebSocketCodec   = CodecJSON

	DefaultHistorySeconds = 10

	MinDeviceID     = -1     // -1 selects the system default device
	MinSampleRate   = 8000   // Below this the analyzer has no headroom for 880 Hz
	MaxSampleRate   = 192000 // Highest rate PortAudio hosts commonly expose
	MaxBufferFrames = 8192
	MaxChannels     = 32
)

// Resampler backends.
const (
	ResamplerPolyphase = "polyphase"
	ResamplerSoxr      = "soxr"
)

// WebSocket frame codecs.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Enable debug logging.
	LogLevel  string          `yaml:"log_level"`         // debug, info, warn or error.
	Command   string          `yaml:"command,omitempty"` // One-off command instead of the live monitor.
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
	UI        UIConfig        `yaml:"ui"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index, -1 for default.
	SampleRate      float64 `yaml:"sample_rate"`       // 0 uses the device default rate.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured; downmixed to mono.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Peak level below which buffers are dropped, 0..1.
}

// AnalysisConfig selects the analyzer algorithms and the displayed range.
type AnalysisConfig struct {
	PitchAlgorithm      string  `yaml:"pitch_algorithm"`      // yin or tracker.
	Formants            string  `yaml:"formants"`             // none or lpc.
	Resampler           string  `yaml:"resampler"`            // polyphase or soxr.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // Pitches at or below this are dropped.
	LowerLimitNote      string  `yaml:"lower_limit_note"`     // Lower guide line, e.g. C3.
	UpperLimitNote      string  `yaml:"upper_limit_note"`     // Upper guide line, e.g. C4.
}

// RecordingConfig holds settings for recording the captured stream.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`    // Only wav.
	BitDepth  int    `yaml:"bit_depth"` // 16, 24 or 32.
}

// TransportConfig holds settings for publishing pitch frames.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`

	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address"`
	WebSocketPath    string `yaml:"websocket_path"`
	WebSocketCodec   string `yaml:"websocket_codec"` // json or msgpack.
}

// UIConfig holds settings for the terminal monitor.
type UIConfig struct {
	Enabled        bool `yaml:"enabled"`
	HistorySeconds int  `yaml:"history_seconds"` // Seconds of pitch history kept on screen.
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			GateThreshold:   DefaultGateThreshold,
		},
		Analysis: AnalysisConfig{
			PitchAlgorithm:      DefaultPitchAlgorithm,
			Formants:            DefaultFormantAlgorithm,
			Resampler:           DefaultResampler,
			ConfidenceThreshold: DefaultConfidenceThreshold,
			LowerLimitNote:      DefaultLowerLimitNote,
			UpperLimitNote:      DefaultUpperLimitNote,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			Format:    DefaultRecordingFormat,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketAddress: DefaultWebSocketAddress,
			WebSocketPath:    DefaultWebSocketPath,
			WebSocketCodec:   DefaultWebSocketCodec,
		},
		UI: UIConfig{
			Enabled:        true,
			HistorySeconds: DefaultHistorySeconds,
		},
	}
}
