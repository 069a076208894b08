// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/analysis"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/audio"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/config"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/transport"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/transport/udp"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/tui"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/build"
)

// runLive captures from the configured device until interrupted or until
// the user quits the monitor.
func runLive(cfg *config.Config) error {
	settings, err := settingsFrom(cfg)
	if err != nil {
		return err
	}

	engine, err := audio.NewEngine(cfg)
	if err != nil {
		return err
	}

	outputs, closeTransports, err := openTransports(cfg)
	if err != nil {
		return err
	}
	defer closeTransports()

	var (
		proc    *analysis.PitchProcessor
		monitor *tui.Monitor
	)
	if cfg.UI.Enabled {
		logFile, err := redirectLog()
		if err != nil {
			return err
		}
		defer func() {
			log.SetOutput(os.Stderr)
			logFile.Close()
		}()

		lower, upper, err := cfg.Analysis.Limits()
		if err != nil {
			return err
		}
		status := func() string { return statusLine(engine, proc) }
		model := tui.NewMonitorModel(build.GetBuildFlags().Name, lower, upper,
			time.Duration(cfg.UI.HistorySeconds)*time.Second, status)
		monitor = tui.NewMonitor(model)
		outputs = append(outputs, monitor)
	} else {
		outputs = append(outputs, transport.NewLoggingTransport())
	}

	proc = analysis.NewPitchProcessor(settings, outputs)
	defer proc.Close()

	if err := engine.StartInputStream(); err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Errorf("close audio engine: %v", err)
		}
	}()

	if cfg.Recording.Enabled {
		name, err := recordingPath(cfg.Recording.OutputDir, time.Now())
		if err != nil {
			return err
		}
		if err := engine.StartRecording(name); err != nil {
			return err
		}
		defer func() {
			if err := engine.StopRecording(); err != nil {
				log.Errorf("stop recording: %v", err)
				return
			}
			fmt.Printf("Recording saved to: %s\n", name)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() {
		err := engine.Run(ctx, proc)
		stop()
		runErr <- err
	}()

	if monitor != nil {
		go func() {
			<-ctx.Done()
			monitor.Close()
		}()
		if err := monitor.Run(); err != nil {
			log.Errorf("monitor: %v", err)
		}
		stop()
	} else {
		<-ctx.Done()
	}

	err = <-runErr
	es, ps := engine.Stats(), proc.Stats()
	log.Infof("captured %d packets (%d dropped, %d overflows), published %d frames",
		es.Packets, es.Dropped, es.Overflows, ps.Frames)
	return err
}

// openTransports opens the enabled network transports. The returned func
// closes them in reverse order.
func openTransports(cfg *config.Config) (transport.Multi, func(), error) {
	var (
		outputs transport.Multi
		closers []func() error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && !errors.Is(err, net.ErrClosed) {
				log.Errorf("close transport: %v", err)
			}
		}
	}

	t := cfg.Transport
	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			return nil, nil, err
		}
		pub, err := udp.NewUDPPublisher(t.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			return nil, nil, err
		}
		pub.Start()
		outputs = append(outputs, pub)
		closers = append(closers, pub.Close)
	}
	if t.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(t.WebSocketAddress, t.WebSocketPath, t.WebSocketCodec)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		log.Infof("serving frames on ws://%s%s (session %s)", ws.Addr(), t.WebSocketPath, ws.Session())
		outputs = append(outputs, ws)
		closers = append(closers, ws.Close)
	}
	return outputs, closeAll, nil
}

// recordingPath returns a timestamped WAV path in dir, creating dir.
func recordingPath(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recording directory: %w", err)
	}
	name := "recording-" + now.UTC().Format("02-01-2006-150405") + "." + config.DefaultRecordingFormat
	return filepath.Join(dir, name), nil
}

// redirectLog sends log output to a file while the monitor owns the
// terminal.
func redirectLog() (*os.File, error) {
	path := filepath.Join(os.TempDir(), build.GetBuildFlags().Name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return f, nil
}

func statusLine(e *audio.Engine, p *analysis.PitchProcessor) string {
	es := e.Stats()
	s := fmt.Sprintf("%s @ %.0f Hz  packets %d  dropped %d  overflows %d",
		e.DeviceName(), e.SampleRate(), es.Packets, es.Dropped, es.Overflows)
	if p != nil {
		ps := p.Stats()
		s += fmt.Sprintf("  gaps %d  frames %d", ps.Gaps, ps.Frames)
	}
	return s
}
