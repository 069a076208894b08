// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/analysis"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/config"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/decode"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/transport"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/note"
)

// framePrinter writes one table row per frame.
type framePrinter struct {
	tw *tabwriter.Writer
}

var _ transport.Transport = (*framePrinter)(nil)

func newFramePrinter(w io.Writer) *framePrinter {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "time\tpitch\tnote\tcents\tconf\tlevel\tF1\tF2\t")
	return &framePrinter{tw: tw}
}

func (p *framePrinter) Send(data any) error {
	f, ok := data.(transport.Frame)
	if !ok {
		return nil
	}
	_, err := fmt.Fprintf(p.tw, "%.3f\t%.1f\t%s\t%+.0f\t%.2f\t%.1f\t%.0f\t%.0f\t\n",
		f.Time, f.Pitch, f.Note, f.Cents, f.Confidence, f.LevelDB,
		f.Formants[0].Frequency, f.Formants[1].Frequency)
	return err
}

func (p *framePrinter) Close() error {
	return p.tw.Flush()
}

// analyzeFile decodes path and runs it through the pitch processor in
// capture-sized packets, printing every frame to w.
func analyzeFile(w io.Writer, cfg *config.Config, path string) error {
	settings, err := settingsFrom(cfg)
	if err != nil {
		return err
	}
	a, err := decode.File(path)
	if err != nil {
		return err
	}
	log.Infof("%s: %d ch @ %.0f Hz, %.2f s", path, a.Channels, a.SampleRate, a.Duration())

	printer := newFramePrinter(w)
	proc := analysis.NewPitchProcessor(settings, printer)

	size := cfg.Audio.FramesPerBuffer
	var seq uint64
	for start := 0; start < len(a.Samples); start += size {
		end := min(start+size, len(a.Samples))
		if err := proc.Process(analysis.Packet{Seq: seq, SampleRate: a.SampleRate, Samples: a.Samples[start:end]}); err != nil {
			printer.Close()
			return err
		}
		seq++
	}

	stats := proc.Stats()
	if err := proc.Close(); err != nil {
		return err
	}
	if err := printer.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d frames from %d packets, %d below confidence %.2f\n",
		stats.Frames, stats.Packets, stats.Unconfident, cfg.Analysis.ConfidenceThreshold)
	return err
}

// printNotes lists every note from the lower to the upper guide note.
func printNotes(w io.Writer, cfg *config.Config) error {
	lower, upper, err := cfg.Analysis.Limits()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "note\tHz\tperiod (ms)")
	semitones := int(math.Round(12 * float64(upper.Pitch()-lower.Pitch())))
	for i := 0; i <= semitones; i++ {
		n := (lower.Pitch() + note.Pitch(float64(i)/12)).ClosestNote()
		fmt.Fprintf(tw, "%s\t%.2f\t%.3f\n", n, n.Hz(), 1000/n.Hz())
	}
	return tw.Flush()
}
