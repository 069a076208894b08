// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SilenceDB is reported for buffers with no energy.
const SilenceDB = -120.0

// Level describes the loudness of one buffer. Full scale is 1.0.
type Level struct {
	RMS  float64
	Peak float64
	DBFS float64 // RMS in dB relative to full scale, floored at SilenceDB.
}

// LevelMeter measures buffers. The zero value is ready to use and reuses
// its scratch space across calls.
type LevelMeter struct {
	scratch []float64
}

// Process returns the level of samples. Non-finite samples count as zero.
func (m *LevelMeter) Process(samples []float32) Level {
	if len(samples) == 0 {
		return Level{DBFS: SilenceDB}
	}
	if cap(m.scratch) < len(samples) {
		m.scratch = make([]float64, len(samples))
	}
	x := m.scratch[:len(samples)]
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		x[i] = v
	}

	rms := floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
	return Level{
		RMS:  rms,
		Peak: floats.Norm(x, math.Inf(1)),
		DBFS: DBFS(rms),
	}
}

// DBFS converts a linear amplitude to dB relative to full scale.
func DBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceDB
	}
	return math.Max(20*math.Log10(amplitude), SilenceDB)
}
