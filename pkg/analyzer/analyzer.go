// SPDX-License-Identifier: MIT
/*
Package analyzer turns a stream of audio chunks into pitch and formant
estimates.

Each call to Process feeds the chunk through the streaming resampler to the
analysis rate, appends the result to a rolling window and runs the pitch
strategy chosen at construction:

  - PitchYin trims the window to the most recent YinLength samples and
    reports at most one pitch per call.
  - PitchTracker hands the window to a latent NSDF tracker that consumes it
    frame by frame and may report zero or more pitches per call, oldest
    first.

When a pitch was found and formant analysis is enabled, LPC formants of the
window are filtered against the most recent pitch and packed into the
fixed-size Formants array of the Output.

Outputs borrow their pitch slice from the analyzer. Every Output returned by
Process must be released exactly once with Release; Outstanding reports how
many have not been.

An Analyzer is not safe for concurrent use.
*/
package analyzer

import (
	"errors"
	"fmt"
	"math"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/buffer"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/formants"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/resample"
)

const (
	TargetRate = 12000.0

	MinPitch = 50.0
	MaxPitch = 880.0

	YinThreshold = 0.20
	YinLength    = 3600

	FormantLength = 3600
	FormantMargin = 50.0
	FormantCount  = 2

	ResamplerFrameSize = 60
)

var (
	// ErrOutputReleased is returned when an Output is released twice.
	ErrOutputReleased = errors.New("analyzer: output already released")
	// ErrClosed is returned by operations on a closed analyzer.
	ErrClosed = errors.New("analyzer: closed")
	// ErrInvalidAlgorithm is returned for unknown algorithm values or names.
	ErrInvalidAlgorithm = errors.New("analyzer: invalid algorithm")
)

// Logger receives recoverable processing errors.
type Logger interface {
	Errorf(format string, v ...any)
}

// Pitch is a fundamental frequency estimate.
type Pitch struct {
	Value      float32 // Hz
	Confidence float32 // [0, 1]
	// Time is the centre of the analyzed frame in seconds, relative to the
	// end of the window at the time of the call. It is never positive.
	Time float64
}

// Formant is a filtered formant candidate. Unused slots are zero.
type Formant = formants.Formant

// Option configures an Analyzer.
type Option func(*options)

type options struct {
	logger    Logger
	resampler resample.BackendFactory
}

// WithLogger sets the destination for resampling errors.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResampler selects the resampling backend.
func WithResampler(factory resample.BackendFactory) Option {
	return func(o *options) {
		o.resampler = factory
	}
}

// Analyzer is a single-stream voice analyzer.
type Analyzer struct {
	sampleRate      float64
	downsampledRate float64
	pitchAlgorithm  PitchAlgorithm
	formantAlgo     FormantAlgorithm

	resampler   *resample.Resampler
	downsampled []float32
	window      *buffer.Window
	pitch       pitchStrategy

	formants   *formants.Analyzer
	candidates []Formant

	logger      Logger
	free        []*outputHandle
	outstanding int
	closed      bool
}

// New creates an analyzer for a stream at sampleRate.
func New(sampleRate float64, pitch PitchAlgorithm, formant FormantAlgorithm, opts ...Option) (*Analyzer, error) {
	o := options{logger: log.Named("analyzer")}
	for _, opt := range opts {
		opt(&o)
	}

	rs, err := resample.New(sampleRate, TargetRate, ResamplerFrameSize, resample.WithBackend(o.resampler))
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}
	rate := rs.OutputRate()

	a := &Analyzer{
		sampleRate:      sampleRate,
		downsampledRate: rate,
		pitchAlgorithm:  pitch,
		formantAlgo:     formant,
		resampler:       rs,
		downsampled:     make([]float32, 0, 1024),
		window:          buffer.NewWindow(2 * max(YinLength, FormantLength)),
		logger:          o.logger,
	}

	switch pitch {
	case PitchYin:
		a.pitch = newYinStrategy(max(YinLength, FormantLength))
	case PitchTracker:
		if a.pitch, err = newTrackerStrategy(rate); err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: pitch algorithm %d", ErrInvalidAlgorithm, pitch)
	}

	switch formant {
	case FormantNone:
	case FormantLPC:
		if a.formants, err = formants.New(FormantLength, formants.LPCOrder(rate)); err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
		a.candidates = make([]Formant, 0, a.formants.Order()/2)
	default:
		return nil, fmt.Errorf("%w: formant algorithm %d", ErrInvalidAlgorithm, formant)
	}

	return a, nil
}

// SampleRate returns the input sample rate.
func (a *Analyzer) SampleRate() float64 { return a.sampleRate }

// DownsampledRate returns the analysis sample rate.
func (a *Analyzer) DownsampledRate() float64 { return a.downsampledRate }

// PitchAlgorithm returns the pitch strategy in use.
func (a *Analyzer) PitchAlgorithm() PitchAlgorithm { return a.pitchAlgorithm }

// FormantAlgorithm returns the formant strategy in use.
func (a *Analyzer) FormantAlgorithm() FormantAlgorithm { return a.formantAlgo }

// Outstanding returns the number of outputs not yet released.
func (a *Analyzer) Outstanding() int { return a.outstanding }

// Process analyzes a chunk of samples. It reports false when the chunk
// produced no pitch, when resampling failed, or after Close. A nil or empty
// chunk is a valid input.
func (a *Analyzer) Process(samples []float32) (Output, bool) {
	if a.closed {
		return Output{}, false
	}

	var err error
	a.downsampled, err = a.resampler.Process(a.downsampled[:0], samples)
	if err != nil {
		a.logger.Errorf("error resampling audio: %v", err)
		return Output{}, false
	}
	a.window.Append(a.downsampled...)

	h := a.acquire()
	h.pitches = a.pitch.estimate(h.pitches[:0], a.window, a.downsampledRate)
	if len(h.pitches) == 0 {
		a.recycle(h)
		return Output{}, false
	}

	out := Output{Pitches: h.pitches, handle: h, gen: h.gen}
	if a.formants != nil {
		a.candidates = a.formants.Analyze(a.candidates[:0], a.window.Samples(), a.downsampledRate, FormantMargin)
		out.Formants = FilterFormants(h.pitches[len(h.pitches)-1].Value, a.candidates)
	}
	a.outstanding++
	return out, true
}

// Reset clears the latency state of the pitch strategy. Resampler and
// window contents are kept.
func (a *Analyzer) Reset() {
	if a.closed {
		return
	}
	a.pitch.reset()
}

// Close releases the analyzer's buffers. Later calls to Process report no
// output. Close is idempotent.
func (a *Analyzer) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.window.Reset()
	a.resampler.Reset()
	a.free = nil
	return nil
}

// FilterFormants keeps, in order, the first FormantCount candidates with a
// finite frequency above 1.5 times the pitch.
func FilterFormants(pitch float32, candidates []Formant) [FormantCount]Formant {
	var out [FormantCount]Formant
	cutoff := 1.5 * float64(pitch)
	n := 0
	for _, c := range candidates {
		if n == FormantCount {
			break
		}
		f := float64(c.Frequency)
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f <= cutoff {
			continue
		}
		out[n] = c
		n++
	}
	return out
}
