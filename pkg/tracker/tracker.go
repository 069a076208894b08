// SPDX-License-Identifier: MIT
/*
Package tracker implements a latent pitch tracker built on the normalized
square difference function (NSDF).

The tracker reads fixed-length frames from the front of a sample window and
advances by Hop samples per frame, consuming what it has read. Each frame
yields a candidate period: the autocorrelation r(t) is computed with an FFT,
normalized by m(t), the sum of squares of the two overlapping segments, and
the first peak reaching 90% of the highest peak in the pitch range is
chosen.

	n(t) = 2 r(t) / m(t)

Candidates go through a median queue of Smoothing frames, so an estimate for
a frame is only emitted once Smoothing/2 later frames have been analyzed.
Estimates carry the frame centre as an offset from the start of the window
at the time of the call. Frames analyzed during earlier calls have negative
offsets.
*/
package tracker

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"

	"github.com/voice-analyzer/voice-analyzer-ios/pkg/bitint"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/buffer"
)

const peakRatio = 0.9

// ErrInvalidParams is returned by New for inconsistent parameters.
var ErrInvalidParams = errors.New("tracker: invalid parameters")

// Params configures a Tracker.
type Params struct {
	SampleRate float64
	MinPitch   float64 // Hz
	MaxPitch   float64 // Hz

	FrameLength int // samples per analysis frame
	Hop         int // samples between frames
	Smoothing   int // median queue length, odd

	// VoicingThreshold is the minimum NSDF peak for a voiced frame.
	VoicingThreshold float64
	// SilenceThreshold is the minimum frame RMS analyzed at all.
	SilenceThreshold float64
}

// DefaultParams returns parameters for the 50..880 Hz voice range.
func DefaultParams(sampleRate float64) Params {
	return Params{
		SampleRate:       sampleRate,
		MinPitch:         50,
		MaxPitch:         880,
		FrameLength:      int(math.Ceil(0.045 * sampleRate)),
		Hop:              int(math.Ceil(0.010 * sampleRate)),
		Smoothing:        5,
		VoicingThreshold: 0.6,
		SilenceThreshold: 1e-4,
	}
}

// Validate reports whether the parameters describe a usable tracker.
func (p Params) Validate() error {
	switch {
	case !(p.SampleRate > 0) || math.IsInf(p.SampleRate, 0):
		return fmt.Errorf("%w: sample rate %v", ErrInvalidParams, p.SampleRate)
	case !(p.MinPitch > 0) || !(p.MaxPitch > p.MinPitch) || p.MaxPitch >= p.SampleRate/2:
		return fmt.Errorf("%w: pitch range %v..%v Hz at %v Hz", ErrInvalidParams, p.MinPitch, p.MaxPitch, p.SampleRate)
	case p.FrameLength <= p.maxLag()+1:
		return fmt.Errorf("%w: frame of %d samples is shorter than the longest period", ErrInvalidParams, p.FrameLength)
	case p.Hop < 1:
		return fmt.Errorf("%w: hop %d", ErrInvalidParams, p.Hop)
	case p.Smoothing < 1 || p.Smoothing%2 == 0:
		return fmt.Errorf("%w: smoothing %d must be odd and positive", ErrInvalidParams, p.Smoothing)
	case p.VoicingThreshold < 0 || p.VoicingThreshold > 1:
		return fmt.Errorf("%w: voicing threshold %v", ErrInvalidParams, p.VoicingThreshold)
	case p.SilenceThreshold < 0:
		return fmt.Errorf("%w: silence threshold %v", ErrInvalidParams, p.SilenceThreshold)
	}
	return nil
}

func (p Params) minLag() int {
	return max(2, int(math.Floor(p.SampleRate/p.MaxPitch)))
}

func (p Params) maxLag() int {
	return int(math.Ceil(p.SampleRate / p.MinPitch))
}

// Estimate is a smoothed pitch reading for one frame.
type Estimate struct {
	Frequency  float32 // Hz
	Confidence float32 // NSDF peak value in [0, 1]
	Offset     int     // frame centre relative to the window start at call time
}

type candidate struct {
	frequency  float64
	confidence float64
	centre     int64
	voiced     bool
}

// Tracker is a stateful NSDF pitch tracker. It is not safe for concurrent
// use.
type Tracker struct {
	params Params
	minLag int
	maxLag int

	// position is the stream index of the first sample in the window.
	position int64
	queue    []candidate

	frame  []float64
	nsdf   []float64
	median []float64
}

// New returns a tracker or ErrInvalidParams.
func New(p Params) (*Tracker, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	size := bitint.NextPowerOfTwo(2 * p.FrameLength)
	return &Tracker{
		params: p,
		minLag: p.minLag(),
		maxLag: p.maxLag(),
		queue:  make([]candidate, 0, p.Smoothing),
		frame:  make([]float64, size),
		nsdf:   make([]float64, p.maxLag()+2),
		median: make([]float64, 0, p.Smoothing),
	}, nil
}

// Params returns the tracker parameters.
func (t *Tracker) Params() Params { return t.params }

// Latency returns the delay, in samples, between the end of a frame and
// the call that emits its estimate.
func (t *Tracker) Latency() int {
	return (t.params.Smoothing / 2) * t.params.Hop
}

// Process analyzes every complete frame at the front of w, discarding Hop
// samples per frame, and appends the estimates that became available to
// dst, oldest first.
func (t *Tracker) Process(dst []Estimate, w *buffer.Window) []Estimate {
	base := t.position
	half := t.params.Smoothing / 2

	for w.Len() >= t.params.FrameLength {
		c := t.analyze(w.Samples()[:t.params.FrameLength])
		c.centre = t.position + int64(t.params.FrameLength/2)

		t.queue = append(t.queue, c)
		if len(t.queue) == t.params.Smoothing {
			if est, ok := t.smoothed(half); ok {
				est.Offset = int(t.queue[half].centre - base)
				dst = append(dst, est)
			}
			t.queue = append(t.queue[:0], t.queue[1:]...)
		}

		t.position += int64(w.Discard(t.params.Hop))
	}
	return dst
}

// Reset drops queued frames and restarts stream positions at zero.
func (t *Tracker) Reset() {
	t.queue = t.queue[:0]
	t.position = 0
}

// smoothed returns the queue entry at index i with its frequency replaced
// by the median of the voiced frequencies in the queue.
func (t *Tracker) smoothed(i int) (Estimate, bool) {
	c := t.queue[i]
	if !c.voiced {
		return Estimate{}, false
	}
	t.median = t.median[:0]
	for _, q := range t.queue {
		if q.voiced {
			t.median = append(t.median, q.frequency)
		}
	}
	slices.Sort(t.median)
	return Estimate{
		Frequency:  float32(t.median[len(t.median)/2]),
		Confidence: float32(c.confidence),
	}, true
}

func (t *Tracker) analyze(samples []float32) candidate {
	n := len(samples)
	x := t.frame
	clear(x)
	for i, v := range samples {
		x[i] = float64(v)
	}

	energy := floats.Dot(x[:n], x[:n])
	if !(math.Sqrt(energy/float64(n)) >= t.params.SilenceThreshold) || math.IsInf(energy, 0) {
		return candidate{}
	}

	spectrum := fft.FFTReal(x)
	for i, v := range spectrum {
		spectrum[i] = complex(real(v)*real(v)+imag(v)*imag(v), 0)
	}
	acf := fft.IFFT(spectrum)

	// m(t) shrinks by the two samples leaving the overlap at each lag.
	m := 2 * energy
	d := t.nsdf
	for lag := 0; lag < len(d); lag++ {
		if lag > 0 {
			m -= x[lag-1]*x[lag-1] + x[n-lag]*x[n-lag]
		}
		if m > 0 {
			d[lag] = 2 * real(acf[lag]) / m
		} else {
			d[lag] = 0
		}
	}

	lag, ok := t.pickPeak(d)
	if !ok {
		return candidate{}
	}
	period := refine(d, lag)
	if !(period > 0) {
		return candidate{}
	}
	return candidate{
		frequency:  t.params.SampleRate / period,
		confidence: math.Min(1, math.Max(0, d[lag])),
		voiced:     true,
	}
}

// pickPeak returns the first local maximum in the lag range whose value is
// within peakRatio of the highest one.
func (t *Tracker) pickPeak(d []float64) (int, bool) {
	highest := math.Inf(-1)
	for lag := t.minLag; lag <= t.maxLag; lag++ {
		if isPeak(d, lag) && d[lag] > highest {
			highest = d[lag]
		}
	}
	if !(highest >= t.params.VoicingThreshold) {
		return 0, false
	}
	for lag := t.minLag; lag <= t.maxLag; lag++ {
		if isPeak(d, lag) && d[lag] >= peakRatio*highest {
			return lag, true
		}
	}
	return 0, false
}

func isPeak(d []float64, lag int) bool {
	return d[lag] > 0 && d[lag] > d[lag-1] && d[lag] >= d[lag+1]
}

func refine(d []float64, lag int) float64 {
	prev, cur, next := d[lag-1], d[lag], d[lag+1]
	denom := prev - 2*cur + next
	if denom == 0 {
		return float64(lag)
	}
	return float64(lag) + 0.5*(prev-next)/denom
}
