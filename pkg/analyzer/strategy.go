// SPDX-License-Identifier: MIT
package analyzer

import (
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/buffer"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/tracker"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/yin"
)

// pitchStrategy appends the pitches found in the window to dst.
type pitchStrategy interface {
	estimate(dst []Pitch, w *buffer.Window, rate float64) []Pitch
	reset()
}

// yinStrategy keeps the window bounded and estimates over all of it.
type yinStrategy struct {
	bound int
	yin   *yin.Estimator
}

func newYinStrategy(bound int) *yinStrategy {
	return &yinStrategy{
		bound: bound,
		yin:   yin.New(YinThreshold, bound),
	}
}

func (s *yinStrategy) estimate(dst []Pitch, w *buffer.Window, rate float64) []Pitch {
	w.TrimTo(s.bound)
	est, ok := s.yin.Estimate(w.Samples(), rate)
	if !ok {
		return dst
	}
	return append(dst, Pitch{
		Value:      est.Frequency,
		Confidence: est.Confidence,
		Time:       -float64(w.Len()) / 2 / rate,
	})
}

func (s *yinStrategy) reset() {}

// trackerStrategy drains every estimate the tracker completes. The tracker
// consumes the window itself, so it is never trimmed here.
type trackerStrategy struct {
	tracker   *tracker.Tracker
	estimates []tracker.Estimate
}

func newTrackerStrategy(rate float64) (*trackerStrategy, error) {
	p := tracker.DefaultParams(rate)
	p.MinPitch, p.MaxPitch = MinPitch, MaxPitch
	t, err := tracker.New(p)
	if err != nil {
		return nil, err
	}
	return &trackerStrategy{tracker: t, estimates: make([]tracker.Estimate, 0, 8)}, nil
}

func (s *trackerStrategy) estimate(dst []Pitch, w *buffer.Window, rate float64) []Pitch {
	end := w.Len()
	s.estimates = s.tracker.Process(s.estimates[:0], w)
	for _, e := range s.estimates {
		dst = append(dst, Pitch{
			Value:      e.Frequency,
			Confidence: e.Confidence,
			Time:       float64(e.Offset-end) / rate,
		})
	}
	return dst
}

func (s *trackerStrategy) reset() {
	s.tracker.Reset()
}
