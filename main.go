// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"

	"github.com/voice-analyzer/voice-analyzer-ios/cmd"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/analysis"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/audio"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/config"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/tui"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/build"
)

// main runs in three phases:
//
//  1. Startup (cold path): build info, command line and configuration.
//     One-off commands run here and exit.
//  2. Live analysis (hot path): the PortAudio callback feeds the engine,
//     the engine feeds the pitch processor and frames fan out to the
//     monitor and the network transports.
//  3. Shutdown (cold path): on a signal or when the monitor quits, capture
//     stops, the recording is finalized and transports are closed.
func main() {
	if err := build.Initialize(); err != nil {
		log.Debugf("development build: %v", err)
	}

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if inv.Command == cmd.CommandNone {
		return
	}
	setLogLevel(inv.Config)

	if err := execute(inv); err != nil {
		log.Fatal(err)
	}
}

func setLogLevel(cfg *config.Config) {
	if cfg.Debug {
		log.SetLevel(log.LevelDebug)
		return
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
}

func execute(inv *cmd.Invocation) error {
	cfg := inv.Config
	switch inv.Command {
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildFlags())
		return nil
	case cmd.CommandNotes:
		return printNotes(os.Stdout, cfg)
	case cmd.CommandAnalyze:
		return analyzeFile(os.Stdout, cfg, inv.Args[0])
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	switch inv.Command {
	case cmd.CommandList:
		return audio.ListDevices(os.Stdout)
	case cmd.CommandDevices:
		sel, ok, err := tui.SelectDevice()
		if err != nil || !ok {
			return err
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
	}
	return runLive(cfg)
}

// settingsFrom maps the analysis configuration onto processor settings.
func settingsFrom(cfg *config.Config) (analysis.Settings, error) {
	pitch, formants, err := cfg.Analysis.Algorithms()
	if err != nil {
		return analysis.Settings{}, err
	}
	backend, err := cfg.Analysis.BackendFactory()
	if err != nil {
		return analysis.Settings{}, err
	}
	return analysis.Settings{
		PitchAlgorithm:      pitch,
		FormantAlgorithm:    formants,
		Backend:             backend,
		ConfidenceThreshold: float32(cfg.Analysis.ConfidenceThreshold),
	}, nil
}
