// SPDX-License-Identifier: MIT
package analyzer

// Output is the result of one Process call.
//
// Pitches is owned by the analyzer and lent to the caller until Release.
// It must not be read or retained after Release. Formants is a plain
// array and stays valid.
type Output struct {
	Pitches  []Pitch
	Formants [FormantCount]Formant

	handle *outputHandle
	gen    uint64
}

// outputHandle is a recyclable pitch buffer. gen advances on every release
// so stale Outputs can be detected.
type outputHandle struct {
	owner   *Analyzer
	pitches []Pitch
	gen     uint64
}

// Release returns the pitch buffer to the analyzer. It must be called once
// per Output; later calls, including calls on copies of the Output, return
// ErrOutputReleased. Releasing the zero Output is a no-op.
func (o Output) Release() error {
	h := o.handle
	if h == nil {
		return nil
	}
	if h.gen != o.gen {
		return ErrOutputReleased
	}
	h.owner.outstanding--
	h.owner.recycle(h)
	return nil
}

// Latest returns the most recent pitch of the output.
func (o Output) Latest() (Pitch, bool) {
	if len(o.Pitches) == 0 {
		return Pitch{}, false
	}
	return o.Pitches[len(o.Pitches)-1], true
}

func (a *Analyzer) acquire() *outputHandle {
	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		return h
	}
	return &outputHandle{owner: a, pitches: make([]Pitch, 0, 4)}
}

func (a *Analyzer) recycle(h *outputHandle) {
	h.gen++
	h.pitches = h.pitches[:0]
	if !a.closed {
		a.free = append(a.free, h)
	}
}
