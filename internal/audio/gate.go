// SPDX-License-Identifier: MIT
package audio

import "math"

func (e *Engine) EnableGate() {
	e.gateEnabled.Store(true)
}

func (e *Engine) DisableGate() {
	e.gateEnabled.Store(false)
}

func (e *Engine) GateEnabled() bool {
	return e.gateEnabled.Load()
}

// SetGateThreshold adjusts the noise gate threshold, a linear peak level
// clamped to 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	threshold = math.Max(0, math.Min(1, threshold))
	e.gateThreshold.Store(math.Float32bits(float32(threshold)))
}

// GetGateThreshold returns the current noise gate threshold.
func (e *Engine) GetGateThreshold() float64 {
	return float64(math.Float32frombits(e.gateThreshold.Load()))
}

// gateOpen reports whether buf peaks above the threshold. A disabled gate
// is always open.
func (e *Engine) gateOpen(buf []float32) bool {
	if !e.gateEnabled.Load() {
		return true
	}
	threshold := math.Float32frombits(e.gateThreshold.Load())
	var peak float32
	for _, s := range buf {
		peak = max(peak, s, -s)
	}
	return peak > threshold
}
