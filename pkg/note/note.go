// SPDX-License-Identifier: MIT

// Package note converts between frequencies and equal-tempered musical notes
// in scientific pitch notation (A4 = 440 Hz, C4 = middle C).
package note

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A0 is the reference frequency for Pitch values.
const A0 = 27.5

// ErrInvalidNote is returned by ParseNote for malformed note names.
var ErrInvalidNote = errors.New("note: invalid note name")

var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Pitch is a logarithmic frequency measured in octaves above A0, so A0 is 0
// and A1 is 1.
type Pitch float64

// FromHz returns the pitch of a frequency. Non-positive frequencies give
// -Inf or NaN.
func FromHz(hz float64) Pitch {
	return Pitch(math.Log2(hz / A0))
}

// Hz returns the frequency of p.
func (p Pitch) Hz() float64 {
	return A0 * math.Exp2(float64(p))
}

// ClosestNote rounds p to the nearest semitone.
func (p Pitch) ClosestNote() Note {
	fromC0 := int(math.Round(12*float64(p))) + 9
	octave := floorDiv(fromC0, 12)
	return Note{Index: uint8(fromC0 - 12*octave), Octave: octave}
}

// Cents returns how far p is from its closest note, in [-50, 50].
func (p Pitch) Cents() float64 {
	return 1200 * float64(p-p.ClosestNote().Pitch())
}

// Note is a semitone within an octave.
type Note struct {
	Index  uint8 // 0 is C, 11 is B
	Octave int
}

// Name returns the note name without octave, such as "F#".
func (n Note) Name() string {
	return names[n.Index%12]
}

func (n Note) String() string {
	return n.Name() + strconv.Itoa(n.Octave)
}

// Pitch returns the exact pitch of n.
func (n Note) Pitch() Pitch {
	fromA0 := int(n.Index) + 12*n.Octave - 9
	return Pitch(float64(fromA0) / 12)
}

// Hz returns the frequency of n.
func (n Note) Hz() float64 {
	return n.Pitch().Hz()
}

// ParseNote parses names such as "C3", "a#4" or "Db-1".
func ParseNote(s string) (Note, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Note{}, fmt.Errorf("%w: empty", ErrInvalidNote)
	}

	index := -1
	for i, name := range names {
		if strings.EqualFold(s[:1], name) {
			index = i
			break
		}
	}
	if index < 0 {
		return Note{}, fmt.Errorf("%w: %q", ErrInvalidNote, s)
	}

	rest := s[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		index++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b"):
		index--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return Note{}, fmt.Errorf("%w: %q", ErrInvalidNote, s)
	}

	fromC0 := index + 12*octave
	octave = floorDiv(fromC0, 12)
	return Note{Index: uint8(fromC0 - 12*octave), Octave: octave}, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
