// SPDX-License-Identifier: MIT
/*
Package buffer provides the append/trim-from-front sample window shared by
the resampler output, the pitch strategies and the formant extractor.

A Window stores samples in one backing slice with a moving start offset.
Discarding from the front only advances the offset; the live region is
moved back to the start of the slice when the dead prefix grows larger than
the live region, so steady-state use does not allocate once the backing
slice has reached its working size.
*/
package buffer

// Window is an ordered FIFO of samples with contiguous read access.
// It is not safe for concurrent use.
type Window struct {
	data  []float32
	start int
}

// NewWindow returns an empty window with room for capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 0 {
		capacity = 0
	}
	return &Window{data: make([]float32, 0, capacity)}
}

// Len returns the number of live samples.
func (w *Window) Len() int {
	return len(w.data) - w.start
}

// Samples returns the live samples, oldest first. The slice aliases the
// window and is only valid until the next mutating call.
func (w *Window) Samples() []float32 {
	return w.data[w.start:]
}

// Append adds samples to the back of the window.
func (w *Window) Append(samples ...float32) {
	if len(samples) == 0 {
		return
	}
	if w.start > 0 && len(w.data)+len(samples) > cap(w.data) {
		w.compact()
	}
	w.data = append(w.data, samples...)
}

// Discard drops up to n samples from the front and returns how many were
// dropped.
func (w *Window) Discard(n int) int {
	if n <= 0 {
		return 0
	}
	if live := w.Len(); n >= live {
		n = live
		w.data = w.data[:0]
		w.start = 0
		return n
	}
	w.start += n
	if w.start > w.Len() {
		w.compact()
	}
	return n
}

// TrimTo drops the oldest samples until at most max remain.
func (w *Window) TrimTo(max int) {
	if max < 0 {
		max = 0
	}
	if excess := w.Len() - max; excess > 0 {
		w.Discard(excess)
	}
}

// Reset empties the window, keeping its storage.
func (w *Window) Reset() {
	w.data = w.data[:0]
	w.start = 0
}

func (w *Window) compact() {
	n := copy(w.data, w.data[w.start:])
	w.data = w.data[:n]
	w.start = 0
}
