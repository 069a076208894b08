// SPDX-License-Identifier: MIT
package yin

import (
	"math"
	"testing"
)

const (
	testThreshold = 0.20
	testLength    = 3600
)

func sine(n int, sampleRate, frequency float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * frequency * float64(i) / sampleRate))
	}
	return out
}

func TestEstimateSine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sampleRate float64
		frequency  float64
		tolerance  float64
	}{
		{"1kHz at 44.1kHz", 44100, 1000, 0.01},
		{"220Hz at 11025Hz", 11025, 220, 0.01},
		{"110Hz at 12kHz", 12000, 110, 0.01},
		{"440Hz at 48kHz", 48000, 440, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Pitch(sine(testLength, tt.sampleRate, tt.frequency), tt.sampleRate, testThreshold)
			if !ok {
				t.Fatal("expected a pitch, got none")
			}
			if diff := math.Abs(float64(got.Frequency)-tt.frequency) / tt.frequency; diff > tt.tolerance {
				t.Errorf("Frequency = %.2f Hz, want %.2f Hz within %.0f%%", got.Frequency, tt.frequency, tt.tolerance*100)
			}
			if got.Confidence <= 0.5 {
				t.Errorf("Confidence = %.3f, want > 0.5", got.Confidence)
			}
		})
	}
}

func TestEstimateNoPitch(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name    string
		samples []float32
	}{
		{"nil", nil},
		{"empty", []float32{}},
		{"length 4", []float32{1, -1, 1, -1}},
		{"zeros length 8", make([]float32, 8)},
		{"zeros full window", make([]float32, testLength)},
		{"NaN", []float32{nan, nan, nan, nan, nan, nan, nan, nan}},
		{"+Inf", []float32{inf, 0, inf, 0, inf, 0, inf, 0, inf, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got, ok := Pitch(tt.samples, 44100, testThreshold); ok {
				t.Errorf("expected no pitch, got %+v", got)
			}
		})
	}
}

func TestEstimateInvalidRate(t *testing.T) {
	t.Parallel()

	if _, ok := Pitch(sine(testLength, 44100, 440), 0, testThreshold); ok {
		t.Error("expected no pitch for zero sample rate")
	}
}

func TestAbsoluteThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cmnd   []float64
		expect int
		ok     bool
	}{
		{"skips first two lags", []float64{1, 0.01, 0.5, 0.1, 0.3}, 3, true},
		{"follows dip to minimum", []float64{1, 0.9, 0.8, 0.19, 0.1, 0.05, 0.07}, 5, true},
		{"threshold is inclusive", []float64{1, 0.9, 0.2, 0.3}, 2, true},
		{"equal next value stops", []float64{1, 0.9, 0.8, 0.1, 0.1}, 3, true},
		{"never crosses", []float64{1, 0.9, 0.8, 0.7, 0.6}, 0, false},
		{"NaN never crosses", []float64{1, math.NaN(), math.NaN(), math.NaN()}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := absoluteThreshold(tt.cmnd, testThreshold)
			if ok != tt.ok || got != tt.expect {
				t.Errorf("absoluteThreshold() = (%d, %v), want (%d, %v)", got, ok, tt.expect, tt.ok)
			}
		})
	}
}

func TestParabolicInterpolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cmnd   []float64
		tau    int
		expect float64
	}{
		{"symmetric neighbours", []float64{1, 0.5, 0.1, 0.5}, 2, 2},
		{"leans toward smaller neighbour", []float64{1, 0.6, 0.1, 0.2}, 2, 2 + (0.2-0.6)/(2*(0.2-0.2-0.6))},
		{"last lag snaps to larger previous", []float64{1, 0.5, 0.1}, 2, 1},
		{"last lag keeps when previous not larger", []float64{1, 0.1, 0.1}, 2, 2},
		{"flat neighbours keep lag", []float64{1, 0.1, 0.1, 0.1}, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parabolicInterpolation(tt.cmnd, tt.tau); math.Abs(got-tt.expect) > 1e-9 {
				t.Errorf("parabolicInterpolation() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestEstimatorNoAllocs(t *testing.T) {
	samples := sine(testLength, 11025, 220)
	est := New(testThreshold, testLength)

	allocs := testing.AllocsPerRun(10, func() {
		if _, ok := est.Estimate(samples, 11025); !ok {
			t.Fatal("expected a pitch")
		}
	})
	if allocs > 0 {
		t.Errorf("Estimate allocated: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkEstimate(b *testing.B) {
	samples := sine(testLength, 11025, 220)
	est := New(testThreshold, testLength)

	b.ReportAllocs()
	for b.Loop() {
		est.Estimate(samples, 11025)
	}
}
