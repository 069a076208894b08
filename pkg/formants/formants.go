// SPDX-License-Identifier: MIT
/*
Package formants estimates vocal tract resonances from a window of samples
using linear prediction.

Analyze fits an all-pole model to the window with Burg's method, finds the
roots of the prediction polynomial as eigenvalues of its companion matrix,
and converts each root in the upper half plane into a frequency and a
bandwidth:

	frequency = |arg z| * fs / 2pi
	bandwidth = -ln|z| * fs / pi

Roots with a radius outside [0.7, 1) and frequencies within the safety
margin of 0 Hz or Nyquist are rejected. Results are sorted by frequency.

A good LPC order for speech is LPCOrder(sampleRate).
*/
package formants

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	minRadius = 0.7
	maxRadius = 1.0

	// Gaussian width equivalent to exp(-48 x^2) over a unit-length window.
	gaussianSigma = 0.2041
)

// ErrInvalidOrder is returned when the LPC order does not fit the window.
var ErrInvalidOrder = errors.New("formants: invalid LPC order")

// Formant is a single resonance estimate.
type Formant struct {
	Frequency float32 // Hz
	Bandwidth float32 // Hz
}

// LPCOrder returns the usual prediction order for speech at sampleRate.
func LPCOrder(sampleRate float64) int {
	return int(2.5 + sampleRate/1000)
}

// Analyzer holds the LPC and root finding scratch state. It is not safe
// for concurrent use.
type Analyzer struct {
	length int
	order  int

	taper window.Values
	x     []float64
	b1    []float64
	b2    []float64
	a     []float64
	aa    []float64

	companion *mat.Dense
	eigen     mat.Eigen
	roots     []complex128
}

// New returns an analyzer for windows of up to windowLength samples and a
// prediction polynomial of the given order.
func New(windowLength, order int) (*Analyzer, error) {
	if order < 1 || windowLength < 2*order {
		return nil, fmt.Errorf("%w: order %d for window of %d samples", ErrInvalidOrder, order, windowLength)
	}
	return &Analyzer{
		length:    windowLength,
		order:     order,
		x:         make([]float64, windowLength),
		b1:        make([]float64, windowLength),
		b2:        make([]float64, windowLength),
		a:         make([]float64, order+1),
		aa:        make([]float64, order+1),
		companion: mat.NewDense(order, order, nil),
		roots:     make([]complex128, order),
	}, nil
}

// WindowLength returns the maximum number of samples analyzed per call.
func (a *Analyzer) WindowLength() int { return a.length }

// Order returns the LPC order.
func (a *Analyzer) Order() int { return a.order }

// Analyze appends the formants of the most recent samples to dst. Windows
// shorter than twice the order, silent windows and non-finite input add
// nothing.
func (a *Analyzer) Analyze(dst []Formant, samples []float32, sampleRate, margin float64) []Formant {
	if len(samples) > a.length {
		samples = samples[len(samples)-a.length:]
	}
	n := len(samples)
	if n < 2*a.order || sampleRate <= 0 {
		return dst
	}

	x := a.x[:n]
	for i, v := range samples {
		x[i] = float64(v)
	}
	if len(a.taper) != n {
		a.taper = window.NewValues(window.Gaussian{Sigma: gaussianSigma}.Transform, n)
	}
	a.taper.Transform(x)

	if energy := floats.Dot(x, x); !(energy > 0) || math.IsInf(energy, 0) {
		return dst
	}

	coeffs := a.burg(x)
	if coeffs == nil {
		return dst
	}

	roots, ok := a.solveRoots(coeffs)
	if !ok {
		return dst
	}

	start := len(dst)
	dst = appendFormants(dst, roots, sampleRate, margin, a.order/2)
	slices.SortFunc(dst[start:], func(p, q Formant) int {
		switch {
		case p.Frequency < q.Frequency:
			return -1
		case p.Frequency > q.Frequency:
			return 1
		}
		return 0
	})
	return dst
}

// burg returns the prediction coefficients a[1..order] such that
// x[n] is approximated by sum a[k] x[n-k], or nil when the recursion
// degenerates before the first coefficient.
func (a *Analyzer) burg(x []float64) []float64 {
	n, m := len(x), a.order
	coef, prev := a.a, a.aa
	clear(coef)
	clear(prev)

	// b1 holds forward errors x[0..n-2], b2 backward errors x[1..n-1].
	b1, b2 := a.b1[:n-1], a.b2[:n-1]
	copy(b1, x[:n-1])
	copy(b2, x[1:])

	for i := 1; i <= m; i++ {
		span := n - i
		num := floats.Dot(b1[:span], b2[:span])
		den := floats.Dot(b1[:span], b1[:span]) + floats.Dot(b2[:span], b2[:span])
		if !(den > 0) {
			if i == 1 {
				return nil
			}
			break
		}

		coef[i] = 2 * num / den
		for j := 1; j < i; j++ {
			coef[j] = prev[j] - coef[i]*prev[i-j]
		}
		if i == m {
			break
		}

		copy(prev[1:i+1], coef[1:i+1])
		for j := 0; j < span-1; j++ {
			b1[j] -= prev[i] * b2[j]
			b2[j] = b2[j+1] - prev[i]*b1[j+1]
		}
	}
	return coef[1 : m+1]
}

// solveRoots returns the roots of z^m - a1 z^(m-1) - ... - am.
func (a *Analyzer) solveRoots(coeffs []float64) ([]complex128, bool) {
	m := len(coeffs)
	c := a.companion
	c.Zero()
	for j, v := range coeffs {
		c.Set(0, j, v)
	}
	for i := 1; i < m; i++ {
		c.Set(i, i-1, 1)
	}
	if !a.eigen.Factorize(c, mat.EigenNone) {
		return nil, false
	}
	return a.eigen.Values(a.roots), true
}

func appendFormants(dst []Formant, roots []complex128, sampleRate, margin float64, limit int) []Formant {
	found := 0
	for _, z := range roots {
		if found >= limit {
			break
		}
		if imag(z) < 0 {
			continue
		}
		r := cmplx.Abs(z)
		if r < minRadius || r >= maxRadius {
			continue
		}
		freq := math.Abs(cmplx.Phase(z)) * sampleRate / (2 * math.Pi)
		if freq <= margin || freq >= sampleRate/2-margin {
			continue
		}
		dst = append(dst, Formant{
			Frequency: float32(freq),
			Bandwidth: float32(-math.Log(r) * sampleRate / math.Pi),
		})
		found++
	}
	return dst
}
