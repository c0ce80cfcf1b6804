// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"pitchtrack/cmd"
	"pitchtrack/internal/audio"
	"pitchtrack/internal/config"
	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
	"pitchtrack/internal/metrics"
	"pitchtrack/internal/tracker"
	"pitchtrack/internal/transport"
	"pitchtrack/internal/transport/udp"
	"pitchtrack/internal/tui"
	"pitchtrack/pkg/build"
)

const shutdownTimeout = 5 * time.Second

// main is the entry point for the pitch tracker.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Open the audio backend and event transports
//
// 2. Concurrent Phase (Hot Path):
//   - Start a tracking session; the driver callback analyses each window
//   - Wait for a signal, a session fault or the tuner display to exit
//
// 3. Shutdown Phase (Cold Path):
//   - Stop the session and release the device
//   - Close transports and the metrics endpoint
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds have no ldflags; keep going with the defaults.
	if err := build.Initialize(); err != nil {
		log.Debugf("build: %v", err)
	}

	// Limit OS threads: one for the audio callback, one for I/O and UI.
	runtime.GOMAXPROCS(2)

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	switch opts.Command {
	case cmd.CommandNone:
		return
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildFlags())
		return
	}

	if err := run(opts); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(opts *cmd.Options) error {
	cfg := opts.Config

	level, _ := log.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = log.LevelDebug
	}
	log.SetLevel(level)
	if opts.TUI {
		// The tuner owns the terminal.
		log.SetOutput(io.Discard)
	}

	source, cleanup, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline := metrics.New()
	var metricsServer *metrics.Server
	if cfg.Metrics.Addr != "" {
		if metricsServer, err = metrics.NewServer(cfg.Metrics.Addr, pipeline); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		metricsServer.Start()
	}

	sinks, display, err := openSinks(cfg, opts, pipeline)
	if err != nil {
		return err
	}

	ctrl, err := tracker.NewController(cfg.Settings(), source, sinks, tracker.WithMetrics(pipeline))
	if err != nil {
		sinks.Close()
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(); err != nil {
		sinks.Close()
		return fmt.Errorf("start tracking: %w", err)
	}
	log.Infof("tracking with %s (session %s)", source.Name(), ctrl.SessionID())

	var cause error
	if display != nil {
		// Closing the display's channel ends the tuner when tracking stops
		// on its own.
		causes := make(chan error, 1)
		go func() {
			var err error
			select {
			case <-ctx.Done():
			case err = <-ctrl.Faults():
			}
			display.Close()
			causes <- err
		}()
		if err := tui.Run(build.GetBuildFlags().Name, display.Events()); err != nil {
			log.Errorf("tui: %v", err)
		}
		stop()
		cause = <-causes
	} else {
		select {
		case <-ctx.Done():
			log.Infof("received signal, shutting down")
		case cause = <-ctrl.Faults():
		}
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := ctrl.Stop(); err != nil && !errors.Is(err, tracker.ErrNotRunning) {
		log.Errorf("stopping session: %v", err)
	}
	if err := sinks.Close(); err != nil {
		log.Errorf("closing transports: %v", err)
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("metrics server: %v", err)
		}
	}

	if cause != nil && !errors.Is(cause, audio.ErrEndOfStream) {
		return fmt.Errorf("tracking stopped: %w", cause)
	}
	return nil
}

// openSource returns the configured audio backend and its teardown.
func openSource(cfg *config.Config) (audio.Source, func(), error) {
	switch cfg.Audio.Backend {
	case config.BackendPortAudio:
		if err := audio.Initialize(); err != nil {
			return nil, nil, err
		}
		return audio.NewPortAudioSource(), func() {
			if err := audio.Terminate(); err != nil {
				log.Errorf("%v", err)
			}
		}, nil
	case config.BackendMalgo:
		return audio.NewMalgoSource(), func() {}, nil
	case config.BackendFile:
		return audio.NewFileSource(cfg.Audio.InputFile, cfg.Audio.Realtime), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}
}

// openSinks builds the transport fanout. display is non-nil when the tuner
// is enabled.
func openSinks(cfg *config.Config, opts *cmd.Options, m *metrics.Pipeline) (*transport.Fanout, *transport.ChannelSink, error) {
	fanout := transport.NewFanout(transport.NewLoggingTransport())
	fail := func(err error) (*transport.Fanout, *transport.ChannelSink, error) {
		fanout.Close()
		return nil, nil, err
	}

	var display *transport.ChannelSink
	switch {
	case opts.TUI:
		display = transport.NewChannelSink(cfg.Transport.EventBuffer, m)
		fanout.Add(display)
	case opts.Command == cmd.CommandAnalyze:
		fanout.Add(printer(os.Stdout))
	}

	if addr := cfg.Transport.WebSocketAddr; addr != "" {
		ws, err := transport.NewWebSocketTransport(addr, cfg.Transport.EventBuffer, m)
		if err != nil {
			return fail(fmt.Errorf("websocket: %w", err))
		}
		fanout.Add(ws)
	}

	if target := cfg.Transport.UDPTargetAddress; target != "" {
		sender, err := udp.NewSender(target)
		if err != nil {
			return fail(err)
		}
		publisher, err := udp.NewPublisher(sender, cfg.Transport.EventBuffer, m)
		if err != nil {
			sender.Close()
			return fail(err)
		}
		fanout.Add(publisher)
	}

	if broker := cfg.Transport.MQTT.Broker; broker != "" {
		mq, err := transport.NewMQTTTransport(transport.MQTTConfig{
			Broker:    broker,
			Topic:     cfg.Transport.MQTT.Topic,
			ClientID:  cfg.Transport.MQTT.ClientID,
			Username:  cfg.Transport.MQTT.Username,
			Password:  cfg.Transport.MQTT.Password,
			QueueSize: cfg.Transport.EventBuffer,
		}, m)
		if err != nil {
			return fail(fmt.Errorf("mqtt: %w", err))
		}
		fanout.Add(mq)
	}

	return fanout, display, nil
}

// printer writes one line per detected pitch. The file backend is not
// real-time, so writing inline is fine there.
func printer(w io.Writer) event.Sink {
	return event.SinkFunc(func(e event.PitchDetected) error {
		if !e.HasPitch() {
			return nil
		}
		_, err := fmt.Fprintf(w, "%s  #%-5d %-2s%d %+6.1fc %8.2f Hz  clarity %.2f\n",
			e.Timestamp.Format("15:04:05.000"), e.Sequence, e.NoteName, e.Octave, e.Cents, e.FrequencyHz, e.Clarity)
		return err
	})
}
