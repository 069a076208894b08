// SPDX-License-Identifier: MIT
package resample

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"
)

const (
	testInputRate  = 44100
	testTargetRate = 12000
	testFrameSize  = 60
)

var errBackend = errors.New("backend failure")

// pickBackend keeps every ratio-th sample, which makes expected output exact.
type pickBackend struct {
	ratio  int
	phase  int
	fail   bool
	calls  int
	resets int
}

func (b *pickBackend) Convert(dst, src []float32) ([]float32, int, error) {
	b.calls++
	if b.fail {
		return dst, 0, errBackend
	}
	for _, v := range src {
		if b.phase == 0 {
			dst = append(dst, v)
		}
		b.phase = (b.phase + 1) % b.ratio
	}
	return dst, len(src), nil
}

func (b *pickBackend) Reset() {
	b.resets++
	b.phase = 0
}

// captureRates covers every decimation ratio a capture device commonly
// produces, including ratios that do not divide the frame size.
var captureRates = []float64{22050, 32000, 44100, 48000, 88200, 96000, 192000}

func newPickResampler(t *testing.T, rate float64) (*Resampler, *pickBackend) {
	t.Helper()
	var backend *pickBackend
	r, err := New(rate, testTargetRate, testFrameSize, WithBackend(func(_, _ float64, ratio int) (Backend, error) {
		backend = &pickBackend{ratio: ratio}
		return backend, nil
	}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return r, backend
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func feed(t *testing.T, r *Resampler, input []float32, chunk int) []float32 {
	t.Helper()
	var out []float32
	for start := 0; start < len(input); start += chunk {
		end := min(start+chunk, len(input))
		var err error
		out, err = r.Process(out, input[start:end])
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}
	}
	return out
}

func TestRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  float64
		target float64
		ratio  int
		err    error
	}{
		{"44.1kHz", 44100, 12000, 4, nil},
		{"48kHz", 48000, 12000, 4, nil},
		{"16kHz", 16000, 12000, 1, nil},
		{"96kHz", 96000, 12000, 8, nil},
		{"below target clamps to 1", 4000, 12000, 1, nil},
		{"zero input", 0, 12000, 0, ErrInvalidRate},
		{"negative target", 44100, -1, 0, ErrInvalidRate},
		{"NaN input", math.NaN(), 12000, 0, ErrInvalidRate},
		{"Inf input", math.Inf(1), 12000, 0, ErrInvalidRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Ratio(tt.input, tt.target)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Ratio() error = %v, want %v", err, tt.err)
			}
			if got != tt.ratio {
				t.Errorf("Ratio() = %d, want %d", got, tt.ratio)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	if _, err := New(testInputRate, testTargetRate, 0); !errors.Is(err, ErrInvalidFrameSize) {
		t.Errorf("New(frameSize=0) error = %v, want ErrInvalidFrameSize", err)
	}
	if _, err := New(0, testTargetRate, testFrameSize); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("New(rate=0) error = %v, want ErrInvalidRate", err)
	}

	factoryErr := errors.New("no backend")
	_, err := New(testInputRate, testTargetRate, testFrameSize, WithBackend(func(float64, float64, int) (Backend, error) {
		return nil, factoryErr
	}))
	if !errors.Is(err, factoryErr) {
		t.Errorf("New() error = %v, want wrapped factory error", err)
	}
}

func TestOutputRate(t *testing.T) {
	t.Parallel()

	r, _ := newPickResampler(t, testInputRate)
	if r.Ratio() != 4 {
		t.Errorf("Ratio() = %d, want 4", r.Ratio())
	}
	if r.OutputRate() != 11025 {
		t.Errorf("OutputRate() = %v, want 11025", r.OutputRate())
	}
}

func TestProcessChunkingAdditivity(t *testing.T) {
	t.Parallel()

	input := ramp(4000)
	for _, rate := range captureRates {
		t.Run(fmt.Sprintf("%gHz", rate), func(t *testing.T) {
			t.Parallel()

			whole, _ := newPickResampler(t, rate)
			expect := feed(t, whole, input, len(input))

			for _, chunk := range []int{1, 7, 59, 60, 61, 128, 1000} {
				r, _ := newPickResampler(t, rate)
				got := feed(t, r, input, chunk)
				if !slices.Equal(got, expect) {
					t.Errorf("chunk %d: output differs from single-chunk output (len %d vs %d)", chunk, len(got), len(expect))
				}
			}
		})
	}
}

func TestProcessExactCount(t *testing.T) {
	t.Parallel()

	input := ramp(1024)
	framed := len(input) / testFrameSize * testFrameSize
	for _, rate := range captureRates {
		t.Run(fmt.Sprintf("%gHz", rate), func(t *testing.T) {
			t.Parallel()

			ratio, err := Ratio(rate, testTargetRate)
			if err != nil {
				t.Fatalf("Ratio() error: %v", err)
			}
			want := (framed + ratio - 1) / ratio
			for _, chunk := range []int{1, 3, 60, 100, 512, 1024} {
				r, _ := newPickResampler(t, rate)
				got := feed(t, r, input, chunk)
				if len(got) != want {
					t.Errorf("chunk %d: got %d samples, want %d", chunk, len(got), want)
				}
				if r.Buffered() != len(input)-framed {
					t.Errorf("chunk %d: carried %d samples, want %d", chunk, r.Buffered(), len(input)-framed)
				}
			}
		})
	}
}

func TestPolyphaseCaptureRates(t *testing.T) {
	t.Parallel()

	const chunks, chunkSize = 100, 512
	for _, rate := range captureRates {
		t.Run(fmt.Sprintf("%gHz", rate), func(t *testing.T) {
			t.Parallel()

			input := make([]float32, chunks*chunkSize)
			for i := range input {
				input[i] = float32(math.Sin(2 * math.Pi * 220 * float64(i) / rate))
			}

			r, err := New(rate, testTargetRate, testFrameSize)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			got := feed(t, r, input, chunkSize)

			ratio := r.Ratio()
			if limit := testFrameSize + ratio; r.Buffered() >= limit {
				t.Errorf("carried %d samples, want < %d", r.Buffered(), limit)
			}
			if want := (len(input) - r.Buffered()) / ratio; len(got) != want {
				t.Errorf("got %d samples, want %d", len(got), want)
			}

			// Different chunkings stop at different ratio groups, but the
			// samples they share must agree.
			odd, err := New(rate, testTargetRate, testFrameSize)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			other := feed(t, odd, input, 37)
			if diff := len(got) - len(other); diff > testFrameSize/ratio+1 || -diff > testFrameSize/ratio+1 {
				t.Fatalf("chunk 37 produced %d samples, chunk %d produced %d", len(other), chunkSize, len(got))
			}
			for i := range min(len(got), len(other)) {
				if math.Abs(float64(got[i]-other[i])) > 1e-5 {
					t.Fatalf("sample %d: chunk 37 %v, chunk %d %v", i, other[i], chunkSize, got[i])
				}
			}
		})
	}
}

func TestProcessBuffersPartialFrames(t *testing.T) {
	t.Parallel()

	r, backend := newPickResampler(t, testInputRate)
	out, err := r.Process(nil, ramp(59))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(out) != 0 || backend.calls != 0 {
		t.Fatalf("partial frame produced %d samples with %d backend calls, want none", len(out), backend.calls)
	}
	if r.Buffered() != 59 {
		t.Errorf("Buffered() = %d, want 59", r.Buffered())
	}

	out, err = r.Process(out, []float32{59})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(out) != 15 {
		t.Errorf("completed frame produced %d samples, want 15", len(out))
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", r.Buffered())
	}
}

func TestProcessEmptyChunk(t *testing.T) {
	t.Parallel()

	r, backend := newPickResampler(t, testInputRate)
	for _, chunk := range [][]float32{nil, {}} {
		out, err := r.Process(nil, chunk)
		if err != nil || len(out) != 0 {
			t.Errorf("Process(%v) = (%v, %v), want empty and nil", chunk, out, err)
		}
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times for empty input", backend.calls)
	}
}

func TestProcessFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	input := ramp(600)

	reference, _ := newPickResampler(t, testInputRate)
	expect := feed(t, reference, input, 50)

	garbage := make([]float32, testFrameSize)
	for i := range garbage {
		garbage[i] = -1
	}

	r, backend := newPickResampler(t, testInputRate)
	var out []float32
	var err error
	for start := 0; start < len(input); start += 50 {
		chunk := input[start : start+50]
		out, err = r.Process(out, chunk)
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}

		if start == 200 {
			// A failing chunk of garbage must not disturb the stream.
			backend.fail = true
			before := r.Buffered()
			lenBefore := len(out)
			out, err = r.Process(out, garbage)
			if !errors.Is(err, errBackend) {
				t.Fatalf("Process() error = %v, want backend failure", err)
			}
			if len(out) != lenBefore || r.Buffered() != before {
				t.Fatalf("failed call mutated state: out %d -> %d, carry %d -> %d", lenBefore, len(out), before, r.Buffered())
			}
			backend.fail = false
		}
	}

	if !slices.Equal(out, expect) {
		t.Errorf("output after a failed chunk differs from the uninterrupted stream")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	r, backend := newPickResampler(t, testInputRate)
	if _, err := r.Process(nil, ramp(30)); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	r.Reset()
	if r.Buffered() != 0 {
		t.Errorf("Buffered() after Reset = %d, want 0", r.Buffered())
	}
	if backend.resets != 1 {
		t.Errorf("backend resets = %d, want 1", backend.resets)
	}
}

func TestPolyphaseBackend(t *testing.T) {
	t.Parallel()

	input := make([]float32, 4096)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 220 * float64(i) / testInputRate))
	}

	whole, err := New(testInputRate, testTargetRate, testFrameSize)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	expect := feed(t, whole, input, len(input))
	if want := (len(input) / testFrameSize) * testFrameSize / 4; len(expect) != want {
		t.Fatalf("polyphase produced %d samples, want %d", len(expect), want)
	}

	chunked, err := New(testInputRate, testTargetRate, testFrameSize)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	got := feed(t, chunked, input, 37)
	if len(got) != len(expect) {
		t.Fatalf("chunked polyphase produced %d samples, want %d", len(got), len(expect))
	}
	for i := range got {
		if math.Abs(float64(got[i]-expect[i])) > 1e-5 {
			t.Fatalf("sample %d: chunked %v, whole %v", i, got[i], expect[i])
		}
	}
}

func TestPolyphaseCarriesPartialRatio(t *testing.T) {
	t.Parallel()

	b, err := NewPolyphase(96000, 12000, 8)
	if err != nil {
		t.Fatalf("NewPolyphase() error: %v", err)
	}

	tests := []struct {
		name     string
		n        int
		consumed int
	}{
		{"less than one group", 6, 0},
		{"one frame", testFrameSize, 56},
		{"exact groups", 64, 64},
	}

	for _, tt := range tests {
		out, consumed, err := b.Convert(nil, ramp(tt.n))
		if err != nil {
			t.Fatalf("%s: Convert(%d samples) error: %v", tt.name, tt.n, err)
		}
		if consumed != tt.consumed {
			t.Errorf("%s: consumed %d, want %d", tt.name, consumed, tt.consumed)
		}
		if len(out) != tt.consumed/8 {
			t.Errorf("%s: produced %d samples, want %d", tt.name, len(out), tt.consumed/8)
		}
	}
}

func TestProcessCarriesBackendRemainder(t *testing.T) {
	t.Parallel()

	r, err := New(96000, testTargetRate, testFrameSize)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	out, err := r.Process(nil, ramp(testFrameSize))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(out) != 7 || r.Buffered() != 4 {
		t.Fatalf("one frame at ratio 8: %d samples out, %d carried, want 7 and 4", len(out), r.Buffered())
	}

	out, err = r.Process(out, ramp(testFrameSize-4))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(out) != 14 || r.Buffered() != 4 {
		t.Errorf("second frame: %d samples out, %d carried, want 14 and 4", len(out), r.Buffered())
	}
}

func TestPassthroughForUnitRatio(t *testing.T) {
	t.Parallel()

	r, err := New(12000, testTargetRate, testFrameSize)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	got := feed(t, r, ramp(120), 120)
	if !slices.Equal(got, ramp(120)) {
		t.Errorf("unit ratio should pass samples through")
	}
}

func BenchmarkProcess(b *testing.B) {
	r, err := New(testInputRate, testTargetRate, testFrameSize)
	if err != nil {
		b.Fatalf("New() error: %v", err)
	}
	chunk := ramp(512)
	out := make([]float32, 0, 256)

	b.ReportAllocs()
	for b.Loop() {
		out, _ = r.Process(out[:0], chunk)
	}
}
