// SPDX-License-Identifier: MIT
package analyzer

import (
	"fmt"
	"strings"
)

// PitchAlgorithm selects the pitch strategy.
type PitchAlgorithm int

const (
	// PitchYin estimates once per call over the rolling window.
	PitchYin PitchAlgorithm = iota
	// PitchTracker runs the latent frame tracker.
	PitchTracker
)

func (p PitchAlgorithm) String() string {
	switch p {
	case PitchYin:
		return "yin"
	case PitchTracker:
		return "tracker"
	default:
		return fmt.Sprintf("PitchAlgorithm(%d)", int(p))
	}
}

// ParsePitchAlgorithm parses "yin" or "tracker", case-insensitively.
func ParsePitchAlgorithm(s string) (PitchAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yin":
		return PitchYin, nil
	case "tracker":
		return PitchTracker, nil
	}
	return 0, fmt.Errorf("%w: pitch algorithm %q", ErrInvalidAlgorithm, s)
}

// FormantAlgorithm selects the formant strategy.
type FormantAlgorithm int

const (
	FormantNone FormantAlgorithm = iota
	FormantLPC
)

func (f FormantAlgorithm) String() string {
	switch f {
	case FormantNone:
		return "none"
	case FormantLPC:
		return "lpc"
	default:
		return fmt.Sprintf("FormantAlgorithm(%d)", int(f))
	}
}

// ParseFormantAlgorithm parses "none" or "lpc", case-insensitively.
func ParseFormantAlgorithm(s string) (FormantAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return FormantNone, nil
	case "lpc":
		return FormantLPC, nil
	}
	return 0, fmt.Errorf("%w: formant algorithm %q", ErrInvalidAlgorithm, s)
}
