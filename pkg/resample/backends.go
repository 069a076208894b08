// SPDX-License-Identifier: MIT
package resample

import (
	"fmt"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Polyphase decimates with a Kaiser-windowed polyphase FIR. Output is
// chunk-invariant: one sample per ratio inputs, phase-aligned across calls.
// It consumes whole ratio groups only and leaves the remainder for the next
// call.
type Polyphase struct {
	fir   *dspresample.Resampler
	ratio int
	in    []float64
}

// NewPolyphase is the default BackendFactory.
func NewPolyphase(_, _ float64, ratio int) (Backend, error) {
	if ratio == 1 {
		return Passthrough{}, nil
	}
	fir, err := dspresample.NewRational(1, ratio, dspresample.WithQuality(dspresample.QualityBalanced))
	if err != nil {
		return nil, err
	}
	return &Polyphase{fir: fir, ratio: ratio}, nil
}

// Convert implements Backend.
func (p *Polyphase) Convert(dst, src []float32) ([]float32, int, error) {
	n := len(src) - len(src)%p.ratio
	if n == 0 {
		return dst, 0, nil
	}
	p.in = widen(p.in, src[:n])
	for _, v := range p.fir.Process(p.in) {
		dst = append(dst, float32(v))
	}
	return dst, n, nil
}

// Reset implements Backend.
func (p *Polyphase) Reset() {
	p.fir.Reset()
}

// Soxr resamples with the libsoxr-derived multi-stage converter. It accepts
// any frame length and consumes everything it is given; its filter delay
// means the first call produces fewer samples than the ratio implies.
type Soxr struct {
	conv       resampling.Resampler
	resetErr   error
	inputRate  float64
	outputRate float64
	in         []float64
}

// NewSoxr is a BackendFactory for the high quality converter.
func NewSoxr(inputRate, outputRate float64, _ int) (Backend, error) {
	conv, err := newSoxrConverter(inputRate, outputRate)
	if err != nil {
		return nil, err
	}
	return &Soxr{conv: conv, inputRate: inputRate, outputRate: outputRate}, nil
}

var newSoxrConverter = func(inputRate, outputRate float64) (resampling.Resampler, error) {
	return resampling.New(&resampling.Config{
		InputRate:  inputRate,
		OutputRate: outputRate,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
}

// Convert implements Backend.
func (s *Soxr) Convert(dst, src []float32) ([]float32, int, error) {
	if s.conv == nil {
		conv, err := newSoxrConverter(s.inputRate, s.outputRate)
		if err != nil {
			return dst, 0, fmt.Errorf("soxr: rebuild after reset: %w (reset: %w)", err, s.resetErr)
		}
		s.conv, s.resetErr = conv, nil
	}
	s.in = widen(s.in, src)
	out, err := s.conv.Process(s.in)
	if err != nil {
		return dst, 0, err
	}
	for _, v := range out {
		dst = append(dst, float32(v))
	}
	return dst, len(src), nil
}

// Reset implements Backend by rebuilding the converter. If the rebuild
// fails the stale converter is dropped and Convert retries, reporting the
// failure through its error until a rebuild succeeds.
func (s *Soxr) Reset() {
	conv, err := newSoxrConverter(s.inputRate, s.outputRate)
	s.conv, s.resetErr = conv, err
	if err != nil {
		s.conv = nil
	}
}

// Passthrough copies samples unchanged. Used when the input rate already
// rounds to the target rate.
type Passthrough struct{}

// Convert implements Backend.
func (Passthrough) Convert(dst, src []float32) ([]float32, int, error) {
	return append(dst, src...), len(src), nil
}

// Reset implements Backend.
func (Passthrough) Reset() {}

func widen(buf []float64, src []float32) []float64 {
	if cap(buf) < len(src) {
		buf = make([]float64, len(src))
	}
	buf = buf[:len(src)]
	for i, v := range src {
		buf[i] = float64(v)
	}
	return buf
}
