// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"sync"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/transport"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/analyzer"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/note"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/resample"
)

// DefaultConfidenceThreshold drops pitches at or below this confidence.
const DefaultConfidenceThreshold = 0.20

// Settings configures a PitchProcessor.
type Settings struct {
	PitchAlgorithm      analyzer.PitchAlgorithm
	FormantAlgorithm    analyzer.FormantAlgorithm
	Backend             resample.BackendFactory // nil uses the analyzer default.
	ConfidenceThreshold float32
}

// Stats counts what a PitchProcessor has seen.
type Stats struct {
	Packets     uint64 // Packets processed.
	Gaps        uint64 // Sequence jumps that reset the analyzer.
	Lost        uint64 // Packets missing across all gaps.
	Rebuilds    uint64 // Analyzers built, including the first.
	Frames      uint64 // Frames published.
	Unconfident uint64 // Pitches dropped by the confidence threshold.
}

// PitchProcessor runs capture packets through an analyzer and publishes
// one transport.Frame per confident pitch.
//
// The analyzer is built on the first packet and rebuilt whenever the packet
// sample rate changes. A gap in packet sequence numbers resets it, so no
// estimate spans lost audio.
type PitchProcessor struct {
	settings  Settings
	transport transport.Transport
	log       *log.Logger

	mu       sync.Mutex
	analyzer *analyzer.Analyzer
	rate     float64
	started  bool
	lastSeq  uint64
	elapsed  float64 // Seconds of audio seen, including lost packets.
	meter    LevelMeter
	closed   bool
	stats    Stats
}

var _ ClosableProcessor = (*PitchProcessor)(nil)

// NewPitchProcessor returns a processor publishing to t. A nil t only
// updates Stats.
func NewPitchProcessor(s Settings, t transport.Transport) *PitchProcessor {
	l := log.Named("analysis")
	l.Infof("pitch processor (pitch %s, formants %s, confidence > %.2f)",
		s.PitchAlgorithm, s.FormantAlgorithm, s.ConfidenceThreshold)
	return &PitchProcessor{settings: s, transport: t, log: l}
}

// Process analyzes one packet. It returns analyzer.ErrClosed after Close.
func (pp *PitchProcessor) Process(p Packet) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.closed {
		return analyzer.ErrClosed
	}
	if pp.analyzer == nil || p.SampleRate != pp.rate {
		if err := pp.rebuild(p.SampleRate); err != nil {
			return err
		}
	} else if pp.started && p.Seq != pp.lastSeq+1 {
		var lost uint64
		if p.Seq > pp.lastSeq {
			lost = p.Seq - pp.lastSeq - 1
		}
		pp.log.Warnf("packet gap before #%d (%d lost), resetting analyzer", p.Seq, lost)
		pp.analyzer.Reset()
		pp.stats.Gaps++
		pp.stats.Lost += lost
		pp.elapsed += float64(lost) * float64(len(p.Samples)) / pp.rate
	}
	pp.started = true
	pp.lastSeq = p.Seq
	pp.stats.Packets++

	level := pp.meter.Process(p.Samples)
	pp.elapsed += float64(len(p.Samples)) / pp.rate

	out, ok := pp.analyzer.Process(p.Samples)
	if !ok {
		return nil
	}
	last := len(out.Pitches) - 1
	for i, pitch := range out.Pitches {
		if pitch.Confidence <= pp.settings.ConfidenceThreshold {
			pp.stats.Unconfident++
			continue
		}
		f := pp.frame(p.Seq, pitch, level)
		if i == last {
			for j, fm := range out.Formants {
				f.Formants[j] = transport.Formant{Frequency: fm.Frequency, Bandwidth: fm.Bandwidth}
			}
		}
		pp.stats.Frames++
		if pp.transport != nil {
			if err := pp.transport.Send(f); err != nil {
				pp.log.Warnf("send frame #%d: %v", p.Seq, err)
			}
		}
	}
	return out.Release()
}

func (pp *PitchProcessor) frame(seq uint64, p analyzer.Pitch, level Level) transport.Frame {
	n := note.FromHz(float64(p.Value))
	return transport.Frame{
		Seq:        seq,
		Time:       pp.elapsed + p.Time,
		Pitch:      p.Value,
		Confidence: p.Confidence,
		Note:       n.ClosestNote().String(),
		Cents:      float32(n.Cents()),
		LevelDB:    float32(level.DBFS),
	}
}

func (pp *PitchProcessor) rebuild(rate float64) error {
	var opts []analyzer.Option
	if pp.settings.Backend != nil {
		opts = append(opts, analyzer.WithResampler(pp.settings.Backend))
	}
	a, err := analyzer.New(rate, pp.settings.PitchAlgorithm, pp.settings.FormantAlgorithm, opts...)
	if err != nil {
		return fmt.Errorf("analysis: build analyzer at %.0f Hz: %w", rate, err)
	}
	if pp.analyzer != nil {
		pp.log.Infof("sample rate changed %.0f -> %.0f Hz, rebuilding analyzer", pp.rate, rate)
		pp.analyzer.Close()
	}
	pp.analyzer = a
	pp.rate = rate
	pp.started = false
	pp.stats.Rebuilds++
	return nil
}

// Stats returns a snapshot of the counters.
func (pp *PitchProcessor) Stats() Stats {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.stats
}

// Close releases the analyzer. The transport is left to the caller.
// Later calls are no-ops.
func (pp *PitchProcessor) Close() error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return nil
	}
	pp.closed = true
	if pp.analyzer != nil {
		return pp.analyzer.Close()
	}
	return nil
}
