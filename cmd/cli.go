// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/config"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/build"
)

// Commands selected by ParseArgs.
const (
	CommandNone    = "none" // Help or usage was printed.
	CommandRun     = "run"
	CommandList    = "list"
	CommandDevices = "devices"
	CommandAnalyze = "analyze"
	CommandNotes   = "notes"
	CommandVersion = "version"
)

// Invocation is the parsed command line.
type Invocation struct {
	Command string
	Args    []string
	Config  *config.Config
}

// flagValues receives the raw flags. Only flags set on the command line
// are copied over the loaded configuration.
type flagValues struct {
	configPath string
	verbose    bool

	device          int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	channels        int
	gate            float64

	pitch      string
	formants   string
	resampler  string
	confidence float64
	lower      string
	upper      string

	record    bool
	outputDir string
	bitDepth  int

	udp     bool
	udpAddr string
	ws      bool
	wsAddr  string
	wsCodec string
	noUI    bool
}

// override copies every changed flag into cfg.
func (v *flagValues) override(flags *pflag.FlagSet, cfg *config.Config) {
	set := map[string]func(){
		"verbose":           func() { cfg.Debug = v.verbose },
		"device":            func() { cfg.Audio.InputDevice = v.device },
		"sample-rate":       func() { cfg.Audio.SampleRate = v.sampleRate },
		"frames-per-buffer": func() { cfg.Audio.FramesPerBuffer = v.framesPerBuffer },
		"low-latency":       func() { cfg.Audio.LowLatency = v.lowLatency },
		"channels":          func() { cfg.Audio.InputChannels = v.channels },
		"gate":              func() { cfg.Audio.GateThreshold = v.gate },
		"pitch":             func() { cfg.Analysis.PitchAlgorithm = v.pitch },
		"formants":          func() { cfg.Analysis.Formants = v.formants },
		"resampler":         func() { cfg.Analysis.Resampler = v.resampler },
		"confidence":        func() { cfg.Analysis.ConfidenceThreshold = v.confidence },
		"lower":             func() { cfg.Analysis.LowerLimitNote = v.lower },
		"upper":             func() { cfg.Analysis.UpperLimitNote = v.upper },
		"record":            func() { cfg.Recording.Enabled = v.record },
		"output-dir":        func() { cfg.Recording.OutputDir = v.outputDir },
		"bit-depth":         func() { cfg.Recording.BitDepth = v.bitDepth },
		"udp":               func() { cfg.Transport.UDPEnabled = v.udp },
		"udp-addr":          func() { cfg.Transport.UDPTargetAddress = v.udpAddr },
		"ws":                func() { cfg.Transport.WebSocketEnabled = v.ws },
		"ws-addr":           func() { cfg.Transport.WebSocketAddress = v.wsAddr },
		"ws-codec":          func() { cfg.Transport.WebSocketCodec = v.wsCodec },
		"no-ui":             func() { cfg.UI.Enabled = !v.noUI },
	}
	flags.Visit(func(f *pflag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}

func (v *flagValues) register(flags *pflag.FlagSet) {
	flags.StringVarP(&v.configPath, "config", "f", "",
		"Path to a YAML configuration file. Defaults to ./config.yaml if present.")
	flags.BoolVarP(&v.verbose, "verbose", "v", false,
		"Show debug output")

	// Capture
	flags.IntVarP(&v.device, "device", "d", config.DefaultDeviceID,
		"Input device ID, -1 for the system default. Use 'list' to see available devices.")
	flags.Float64VarP(&v.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Capture rate in Hz, 0 for the device default")
	flags.IntVarP(&v.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"Frames per capture buffer (affects latency)")
	flags.BoolVarP(&v.lowLatency, "low-latency", "l", false,
		"Request the device's low input latency")
	flags.IntVarP(&v.channels, "channels", "c", config.DefaultChannels,
		"Channels to capture; they are mixed down to mono")
	flags.Float64Var(&v.gate, "gate", config.DefaultGateThreshold,
		"Peak level (0..1) below which buffers are silenced")

	// Analysis
	flags.StringVarP(&v.pitch, "pitch", "p", config.DefaultPitchAlgorithm,
		"Pitch algorithm: yin or tracker")
	flags.StringVar(&v.formants, "formants", config.DefaultFormantAlgorithm,
		"Formant algorithm: none or lpc")
	flags.StringVar(&v.resampler, "resampler", config.DefaultResampler,
		"Resampler backend: polyphase or soxr")
	flags.Float64Var(&v.confidence, "confidence", config.DefaultConfidenceThreshold,
		"Drop pitches at or below this confidence")
	flags.StringVar(&v.lower, "lower", config.DefaultLowerLimitNote,
		"Lower guide note")
	flags.StringVar(&v.upper, "upper", config.DefaultUpperLimitNote,
		"Upper guide note")

	// Recording
	flags.BoolVarP(&v.record, "record", "r", false,
		"Record the captured stream to a WAV file")
	flags.StringVarP(&v.outputDir, "output-dir", "o", config.DefaultRecordingDir,
		"Directory for recordings")
	flags.IntVar(&v.bitDepth, "bit-depth", config.DefaultBitDepth,
		"Recording bit depth: 16, 24 or 32")

	// Publishing
	flags.BoolVar(&v.udp, "udp", false,
		"Publish frames over UDP")
	flags.StringVar(&v.udpAddr, "udp-addr", config.DefaultUDPTargetAddress,
		"UDP target address")
	flags.BoolVar(&v.ws, "ws", false,
		"Serve frames over WebSocket")
	flags.StringVar(&v.wsAddr, "ws-addr", config.DefaultWebSocketAddress,
		"WebSocket listen address")
	flags.StringVar(&v.wsCodec, "ws-codec", config.DefaultWebSocketCodec,
		"WebSocket frame codec: json or msgpack")
	flags.BoolVar(&v.noUI, "no-ui", false,
		"Log frames instead of showing the terminal monitor")
}

// ParseArgs parses args (without the program name), loads the configuration
// and applies the flags on top of it.
func ParseArgs(args []string) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	inv := &Invocation{Command: CommandNone}
	values := &flagValues{}

	selects := func(command string) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			inv.Command = command
			inv.Args = args
			return nil
		}
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(values.configPath)
			if err != nil {
				return err
			}
			values.override(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			inv.Config = cfg
			return nil
		},
		RunE: selects(CommandRun),
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	values.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available audio devices",
			Args:  cobra.NoArgs,
			RunE:  selects(CommandList),
		},
		&cobra.Command{
			Use:   "devices",
			Short: "Pick an input device interactively, then start the monitor",
			Args:  cobra.NoArgs,
			RunE:  selects(CommandDevices),
		},
		&cobra.Command{
			Use:   "analyze FILE",
			Short: "Analyze a WAV, MP3 or Ogg Vorbis file and print its pitch frames",
			Args:  cobra.ExactArgs(1),
			RunE:  selects(CommandAnalyze),
		},
		&cobra.Command{
			Use:   "notes",
			Short: "Print the notes between the lower and upper guide notes",
			Args:  cobra.NoArgs,
			RunE:  selects(CommandNotes),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			RunE:  selects(CommandVersion),
		},
	)

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, fmt.Errorf("%s: %w", buildInfo.Name, err)
	}
	return inv, nil
}
