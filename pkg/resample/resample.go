// SPDX-License-Identifier: MIT
/*
Package resample converts a continuous stream of samples to a lower,
integer-divided analysis rate.

A Resampler feeds its Backend whole conversion frames only. Samples that do
not fill a frame are carried to the next call, so chunk boundaries never
show up in the output: feeding a stream as many small chunks or as one
large chunk yields the same samples, apart from the trailing partial frame
which stays buffered. A backend may leave part of a frame unconsumed (the
polyphase decimator keeps back less than one ratio group); those samples
join the carry as well.

Process is failure-atomic. The backend sees a single contiguous run made of
the carried samples and the head of the new chunk; carry and output are
only committed once the backend succeeds, so a failed chunk is skipped and
the stream continues from the previous state.
*/
package resample

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRate is returned for non-positive or non-finite rates.
	ErrInvalidRate = errors.New("resample: invalid sample rate")
	// ErrInvalidFrameSize is returned for frame sizes that are not positive.
	ErrInvalidFrameSize = errors.New("resample: invalid frame size")
)

// Backend performs the numerical conversion.
type Backend interface {
	// Convert resamples src and appends the result to dst. It reports how
	// many leading samples of src were consumed; unconsumed samples are
	// offered again on the next call. On error the backend must not have
	// consumed anything.
	Convert(dst, src []float32) (out []float32, consumed int, err error)
	// Reset clears any filter history.
	Reset()
}

// BackendFactory builds a backend for a decimation ratio.
type BackendFactory func(inputRate, outputRate float64, ratio int) (Backend, error)

// Option configures a Resampler.
type Option func(*options)

type options struct {
	factory BackendFactory
}

// WithBackend selects the conversion backend. The default is the polyphase
// FIR decimator.
func WithBackend(factory BackendFactory) Option {
	return func(o *options) {
		if factory != nil {
			o.factory = factory
		}
	}
}

// Resampler is a streaming integer-ratio decimator.
// It is not safe for concurrent use.
type Resampler struct {
	backend    Backend
	ratio      int
	inputRate  float64
	outputRate float64
	frameSize  int

	carry []float32
	work  []float32
}

// Ratio returns round(inputRate/targetRate), clamped to at least 1.
func Ratio(inputRate, targetRate float64) (int, error) {
	if !validRate(inputRate) || !validRate(targetRate) {
		return 0, ErrInvalidRate
	}
	ratio := int(math.Round(inputRate / targetRate))
	if ratio < 1 {
		ratio = 1
	}
	return ratio, nil
}

// New creates a resampler from inputRate toward targetRate. The effective
// output rate is inputRate divided by the rounded integer ratio.
func New(inputRate, targetRate float64, frameSize int, opts ...Option) (*Resampler, error) {
	ratio, err := Ratio(inputRate, targetRate)
	if err != nil {
		return nil, err
	}
	if frameSize <= 0 {
		return nil, ErrInvalidFrameSize
	}

	o := options{factory: NewPolyphase}
	for _, opt := range opts {
		opt(&o)
	}

	outputRate := inputRate / float64(ratio)
	backend, err := o.factory(inputRate, outputRate, ratio)
	if err != nil {
		return nil, fmt.Errorf("resample: creating backend: %w", err)
	}

	return &Resampler{
		backend:    backend,
		ratio:      ratio,
		inputRate:  inputRate,
		outputRate: outputRate,
		frameSize:  frameSize,
		carry:      make([]float32, 0, frameSize),
		work:       make([]float32, 0, 4*frameSize),
	}, nil
}

// Ratio returns the integer decimation ratio.
func (r *Resampler) Ratio() int { return r.ratio }

// InputRate returns the input sample rate in Hz.
func (r *Resampler) InputRate() float64 { return r.inputRate }

// OutputRate returns the downsampled rate in Hz.
func (r *Resampler) OutputRate() float64 { return r.outputRate }

// FrameSize returns the conversion frame size in input samples.
func (r *Resampler) FrameSize() int { return r.frameSize }

// Buffered returns the number of input samples carried to the next call.
func (r *Resampler) Buffered() int { return len(r.carry) }

// Process converts chunk and appends the downsampled samples to dst. A nil
// or empty chunk is a valid no-op. On error dst is returned unchanged and
// the resampler state is exactly as before the call.
func (r *Resampler) Process(dst, chunk []float32) ([]float32, error) {
	avail := len(r.carry) + len(chunk)
	whole := avail - avail%r.frameSize
	if whole == 0 {
		r.carry = append(r.carry, chunk...)
		return dst, nil
	}

	r.work = append(r.work[:0], r.carry...)
	r.work = append(r.work, chunk...)

	out, consumed, err := r.backend.Convert(dst, r.work[:whole])
	if err != nil {
		return dst, fmt.Errorf("resample: %w", err)
	}

	r.carry = append(r.carry[:0], r.work[consumed:]...)
	return out, nil
}

// Reset drops carried samples and backend history.
func (r *Resampler) Reset() {
	r.carry = r.carry[:0]
	r.backend.Reset()
}

func validRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0)
}
