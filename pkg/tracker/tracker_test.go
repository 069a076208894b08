// SPDX-License-Identifier: MIT
package tracker

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/voice-analyzer/voice-analyzer-ios/pkg/buffer"
)

const testRate = 11025

func sine(n int, sampleRate, frequency float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate))
	}
	return out
}

func newTracker(t *testing.T, p Params) *Tracker {
	t.Helper()
	tr, err := New(p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return tr
}

// run feeds input in chunks and returns the estimates with absolute frame
// centres in place of call-relative offsets.
func run(tr *Tracker, input []float32, chunk int) []Estimate {
	w := buffer.NewWindow(tr.Params().FrameLength + chunk)
	var out []Estimate
	appended := 0
	for start := 0; start < len(input); start += chunk {
		end := min(start+chunk, len(input))
		w.Append(input[start:end]...)
		appended += end - start
		windowStart := appended - w.Len()

		n := len(out)
		out = tr.Process(out, w)
		for i := n; i < len(out); i++ {
			out[i].Offset += windowStart
		}
	}
	return out
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	valid := DefaultParams(testRate)
	tests := []struct {
		name   string
		modify func(*Params)
		ok     bool
	}{
		{"defaults", func(*Params) {}, true},
		{"zero rate", func(p *Params) { p.SampleRate = 0 }, false},
		{"NaN rate", func(p *Params) { p.SampleRate = math.NaN() }, false},
		{"inverted range", func(p *Params) { p.MinPitch, p.MaxPitch = 880, 50 }, false},
		{"zero min pitch", func(p *Params) { p.MinPitch = 0 }, false},
		{"max above nyquist", func(p *Params) { p.MaxPitch = testRate }, false},
		{"frame too short", func(p *Params) { p.FrameLength = 100 }, false},
		{"zero hop", func(p *Params) { p.Hop = 0 }, false},
		{"even smoothing", func(p *Params) { p.Smoothing = 4 }, false},
		{"no smoothing", func(p *Params) { p.Smoothing = 1 }, true},
		{"voicing above one", func(p *Params) { p.VoicingThreshold = 1.5 }, false},
		{"negative silence", func(p *Params) { p.SilenceThreshold = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := valid
			tt.modify(&p)
			_, err := New(p)
			if tt.ok && err != nil {
				t.Errorf("New() error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("New() error = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestProcessSine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		frequency float64
		chunk     int
	}{
		{"110Hz", 110, 256},
		{"200Hz", 200, 64},
		{"440Hz", 440, 1000},
		{"700Hz", 700, 111},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultParams(testRate)
			tr := newTracker(t, p)

			input := sine(testRate, testRate, tt.frequency)
			got := run(tr, input, tt.chunk)

			frames := (len(input)-p.FrameLength)/p.Hop + 1
			if want := frames - (p.Smoothing - 1); len(got) != want {
				t.Fatalf("got %d estimates, want %d", len(got), want)
			}
			for i, est := range got {
				if diff := math.Abs(float64(est.Frequency)-tt.frequency) / tt.frequency; diff > 0.01 {
					t.Fatalf("estimate %d: %.2f Hz, want %.2f Hz", i, est.Frequency, tt.frequency)
				}
				if est.Confidence < float32(p.VoicingThreshold) || est.Confidence > 1 {
					t.Errorf("estimate %d: confidence %v out of range", i, est.Confidence)
				}
				wantCentre := (i+p.Smoothing/2)*p.Hop + p.FrameLength/2
				if est.Offset != wantCentre {
					t.Errorf("estimate %d: centre %d, want %d", i, est.Offset, wantCentre)
				}
			}
		})
	}
}

func TestProcessChunkInvariant(t *testing.T) {
	t.Parallel()

	input := sine(8000, testRate, 247)
	expect := run(newTracker(t, DefaultParams(testRate)), input, len(input))
	for _, chunk := range []int{1, 50, 333} {
		got := run(newTracker(t, DefaultParams(testRate)), input, chunk)
		if !slices.Equal(got, expect) {
			t.Errorf("chunk %d: estimates differ from single-chunk run", chunk)
		}
	}
}

func TestProcessSilence(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	noisy := make([]float32, 4000)
	for i := range noisy {
		noisy[i] = nan
	}

	for name, input := range map[string][]float32{
		"zeros": make([]float32, 4000),
		"NaN":   noisy,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := DefaultParams(testRate)
			tr := newTracker(t, p)
			w := buffer.NewWindow(len(input))
			w.Append(input...)
			if got := tr.Process(nil, w); len(got) != 0 {
				t.Errorf("expected no estimates, got %d", len(got))
			}
			if w.Len() >= p.FrameLength {
				t.Errorf("window holds %d samples, want fewer than a frame", w.Len())
			}
		})
	}
}

func TestOffsetsNegativeForEarlierFrames(t *testing.T) {
	t.Parallel()

	p := DefaultParams(testRate)
	p.Smoothing = 7
	tr := newTracker(t, p)

	input := sine(6000, testRate, 180)
	w := buffer.NewWindow(2 * p.FrameLength)
	w.Append(input[:p.FrameLength]...)
	var sawNegative bool
	for start := p.FrameLength; start+p.Hop <= len(input); start += p.Hop {
		for _, est := range tr.Process(nil, w) {
			if est.Offset < 0 {
				sawNegative = true
			}
			if est.Offset >= w.Len()+p.Hop {
				t.Errorf("offset %d lies beyond the window", est.Offset)
			}
		}
		w.Append(input[start : start+p.Hop]...)
	}
	if !sawNegative {
		t.Error("expected estimates for frames consumed by earlier calls")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	input := sine(5000, testRate, 320)

	fresh := newTracker(t, DefaultParams(testRate))
	expect := run(fresh, input, 500)

	reused := newTracker(t, DefaultParams(testRate))
	run(reused, sine(3000, testRate, 150), 500)
	reused.Reset()
	got := run(reused, input, 500)

	if !slices.Equal(got, expect) {
		t.Errorf("estimates after Reset differ from a fresh tracker")
	}
}

func TestLatency(t *testing.T) {
	t.Parallel()

	p := DefaultParams(testRate)
	tr := newTracker(t, p)
	if got, want := tr.Latency(), 2*p.Hop; got != want {
		t.Errorf("Latency() = %d, want %d", got, want)
	}
}

func BenchmarkProcess(b *testing.B) {
	p := DefaultParams(testRate)
	tr, err := New(p)
	if err != nil {
		b.Fatalf("New() error: %v", err)
	}
	input := sine(p.FrameLength+p.Hop, testRate, 220)
	w := buffer.NewWindow(len(input))
	var out []Estimate

	b.ReportAllocs()
	for b.Loop() {
		w.Reset()
		w.Append(input...)
		out = tr.Process(out[:0], w)
	}
}
