// SPDX-License-Identifier: MIT
/*
Package yin implements the YIN fundamental frequency estimator.

Estimate runs the four YIN stages over a single window of samples:

 1. difference function d(t) over lags [0, N/2)
 2. cumulative mean normalized difference d'(t)
 3. absolute threshold search from lag 2, following the dip to its local minimum
 4. parabolic interpolation around the selected lag

The Estimator keeps its lag buffer between calls, so repeated estimates on
windows no longer than the configured maximum do not allocate.
*/
package yin

import "math"

// MinLength is the smallest window that can produce an estimate. Shorter
// windows leave no lag at or above 2 to search.
const MinLength = 5

// Estimate is a single pitch reading.
type Estimate struct {
	Frequency  float32 // Hz, always > 0
	Confidence float32 // 1 - d'(t*) at the selected integer lag
}

// Estimator holds the threshold and lag scratch buffer.
type Estimator struct {
	threshold float64
	lags      []float64
}

// New returns an estimator for the given CMND threshold with a lag buffer
// sized for windows of up to maxLen samples.
func New(threshold float32, maxLen int) *Estimator {
	if maxLen < 0 {
		maxLen = 0
	}
	return &Estimator{
		threshold: float64(threshold),
		lags:      make([]float64, 0, maxLen/2),
	}
}

// Threshold returns the CMND threshold.
func (e *Estimator) Threshold() float32 {
	return float32(e.threshold)
}

// Pitch is a convenience wrapper that allocates a fresh estimator.
func Pitch(samples []float32, sampleRate float64, threshold float32) (Estimate, bool) {
	return New(threshold, len(samples)).Estimate(samples, sampleRate)
}

// Estimate returns the pitch of samples, or false when no lag crosses the
// threshold. Non-finite input propagates into the normalized difference and
// is treated as never crossing.
func (e *Estimator) Estimate(samples []float32, sampleRate float64) (Estimate, bool) {
	if len(samples) < MinLength || sampleRate <= 0 {
		return Estimate{}, false
	}

	d := e.difference(samples)
	cumulativeMeanNormalize(d)

	tau, ok := absoluteThreshold(d, e.threshold)
	if !ok {
		return Estimate{}, false
	}

	period := parabolicInterpolation(d, tau)
	if !(period > 0) {
		return Estimate{}, false
	}

	return Estimate{
		Frequency:  float32(sampleRate / period),
		Confidence: float32(1 - d[tau]),
	}, true
}

// difference fills the lag buffer with d(t) = sum (x[i] - x[i+t])^2 over
// every overlapping pair, with d(0) fixed at 0.
func (e *Estimator) difference(x []float32) []float64 {
	half := len(x) / 2
	if cap(e.lags) < half {
		e.lags = make([]float64, half)
	}
	d := e.lags[:half]

	d[0] = 0
	for tau := 1; tau < half; tau++ {
		var sum float64
		for i, a := range x[:len(x)-tau] {
			delta := float64(a) - float64(x[i+tau])
			sum += delta * delta
		}
		d[tau] = sum
	}
	return d
}

func cumulativeMeanNormalize(d []float64) {
	d[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		d[tau] *= float64(tau) / running
	}
}

// absoluteThreshold returns the first local minimum of d at or below
// threshold, starting the scan at lag 2.
func absoluteThreshold(d []float64, threshold float64) (int, bool) {
	tau := 2
	for tau < len(d) && !(d[tau] <= threshold) {
		tau++
	}
	if tau >= len(d) {
		return 0, false
	}
	for tau+1 < len(d) && d[tau+1] < d[tau] {
		tau++
	}
	return tau, true
}

// parabolicInterpolation refines tau using its neighbours. With a single
// neighbour the lag snaps to it only when the neighbour is strictly larger.
func parabolicInterpolation(d []float64, tau int) float64 {
	hasPrev := tau >= 1
	hasNext := tau+1 < len(d)

	switch {
	case hasPrev && hasNext:
		prev, cur, next := d[tau-1], d[tau], d[tau+1]
		denom := 2 * (2*cur - next - prev)
		if denom == 0 || math.IsNaN(denom) {
			return float64(tau)
		}
		return float64(tau) + (next-prev)/denom
	case hasPrev && d[tau-1] > d[tau]:
		return float64(tau - 1)
	case hasNext && d[tau+1] > d[tau]:
		return float64(tau + 1)
	default:
		return float64(tau)
	}
}
