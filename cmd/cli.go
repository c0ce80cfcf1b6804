// SPDX-License-Identifier: MIT

// Package cmd parses the command line into a resolved configuration.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pitchtrack/internal/config"
	"pitchtrack/pkg/build"
)

// Commands main dispatches on.
const (
	CommandNone    = ""        // Help was printed; nothing to run.
	CommandRun     = "run"     // Track the live input until interrupted.
	CommandAnalyze = "analyze" // Track a WAV file until it ends.
	CommandVersion = "version" // Print build metadata.
)

// Options is the outcome of parsing the command line.
type Options struct {
	Command string
	Config  *config.Config
	TUI     bool
	Verbose bool
}

// flagValues receives the persistent flags. A value only replaces the
// config file's when its flag was set on the command line.
type flagValues struct {
	configPath      string
	backend         string
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	windowSize      int
	hopSize         int
	clarity         float64
	power           float64
	reference       float64
	wsAddr          string
	udpTarget       string
	mqttBroker      string
	metricsAddr     string
	realtime        bool
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var fv flagValues

	// resolve loads the config file and layers the set flags on top.
	resolve := func(cmd *cobra.Command) error {
		cfg, err := config.LoadConfig(fv.configPath)
		if err != nil {
			return err
		}
		fv.apply(cfg, cmd.Flags())
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		options.Config = cfg
		return nil
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
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return resolve(cmd)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Track the pitch of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandAnalyze
			if err := resolve(cmd); err != nil {
				return err
			}
			options.Config.Audio.Backend = config.BackendFile
			options.Config.Audio.InputFile = args[0]
			return nil
		},
	}
	rootCmd.AddCommand(analyzeCmd)

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandVersion
		},
	}
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()

	// Configuration
	flags.StringVarP(&fv.configPath, "config", "f", "",
		"Path to a YAML config file (default ./"+config.DefaultPath+" if present)")

	// Audio input
	flags.StringVarP(&fv.backend, "backend", "B", config.DefaultBackend,
		"Audio backend: portaudio, malgo or file")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz); 0 uses the device default")
	flags.IntVarP(&fv.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	flags.BoolVar(&fv.realtime, "realtime", false,
		"Pace WAV input at its sample rate instead of as fast as possible")

	// Pitch analysis
	defaults := config.Default()
	flags.IntVarP(&fv.windowSize, "window-size", "w", defaults.Pitch.WindowSize,
		"Samples per analysis window")
	flags.IntVar(&fv.hopSize, "hop-size", 0,
		"Samples between window starts; 0 means no overlap")
	flags.Float64Var(&fv.clarity, "clarity", defaults.Pitch.ClarityThreshold,
		"Minimum clarity (0-1) for a pitch to be reported")
	flags.Float64Var(&fv.power, "power", defaults.Pitch.PowerThreshold,
		"Minimum window power for a pitch to be reported")
	flags.Float64Var(&fv.reference, "reference", defaults.Pitch.ReferenceHz,
		"Reference pitch of A4 in Hz")

	// Outputs
	flags.StringVar(&fv.wsAddr, "ws", "",
		"Serve events over WebSocket on this address, e.g. :8080")
	flags.StringVar(&fv.udpTarget, "udp", "",
		"Send event datagrams to this address, e.g. 127.0.0.1:9090")
	flags.StringVar(&fv.mqttBroker, "mqtt", "",
		"Publish events to this MQTT broker, e.g. tcp://localhost:1883")
	flags.StringVar(&fv.metricsAddr, "metrics", "",
		"Serve Prometheus metrics on this address, e.g. :9100")
	flags.BoolVarP(&options.TUI, "tui", "t", false,
		"Show the tuner display")

	// Debug Configuration
	flags.BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// apply copies every flag that was set onto cfg.
func (fv *flagValues) apply(cfg *config.Config, fs *pflag.FlagSet) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}

	set("backend", func() { cfg.Audio.Backend = fv.backend })
	set("sample-rate", func() { cfg.Audio.SampleRate = fv.sampleRate })
	set("frames-per-buffer", func() { cfg.Audio.FramesPerBuffer = fv.framesPerBuffer })
	set("low-latency", func() { cfg.Audio.LowLatency = fv.lowLatency })
	set("realtime", func() { cfg.Audio.Realtime = fv.realtime })

	set("window-size", func() { cfg.Pitch.WindowSize = fv.windowSize })
	set("hop-size", func() { cfg.Pitch.HopSize = fv.hopSize })
	set("clarity", func() { cfg.Pitch.ClarityThreshold = fv.clarity })
	set("power", func() { cfg.Pitch.PowerThreshold = fv.power })
	set("reference", func() { cfg.Pitch.ReferenceHz = fv.reference })

	set("ws", func() { cfg.Transport.WebSocketAddr = fv.wsAddr })
	set("udp", func() { cfg.Transport.UDPTargetAddress = fv.udpTarget })
	set("mqtt", func() { cfg.Transport.MQTT.Broker = fv.mqttBroker })
	set("metrics", func() { cfg.Metrics.Addr = fv.metricsAddr })
}
