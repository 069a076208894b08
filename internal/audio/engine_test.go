// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/analysis"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/config"
)

const (
	testSampleRate = 44100
	testFrameSize  = 256
)

func newTestEngine(channels int) *Engine {
	cfg := config.NewConfig()
	cfg.Audio.SampleRate = testSampleRate
	cfg.Audio.FramesPerBuffer = testFrameSize
	cfg.Audio.InputChannels = channels
	return newEngine(cfg)
}

func interleaved(frames, channels int, value func(frame, ch int) float32) []float32 {
	in := make([]float32, frames*channels)
	for i := range frames {
		for c := range channels {
			in[i*channels+c] = value(i, c)
		}
	}
	return in
}

func TestDownmix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       []float32
		channels int
		dstLen   int
		want     []float32
	}{
		{"mono copy", []float32{0.1, -0.2, 0.3}, 1, 4, []float32{0.1, -0.2, 0.3}},
		{"stereo average", []float32{1, 0, 0.5, 0.5, -1, 1}, 2, 4, []float32{0.5, 0.5, 0}},
		{"dst shorter", []float32{1, 1, 1, 1, 1, 1}, 2, 2, []float32{1, 1}},
		{"partial frame ignored", []float32{1, 1, 1}, 2, 4, []float32{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]float32, tt.dstLen)
			n := downmix(dst, tt.in, tt.channels)
			if n != len(tt.want) {
				t.Fatalf("n = %d, want %d", n, len(tt.want))
			}
			for i, w := range tt.want {
				if dst[i] != w {
					t.Errorf("dst[%d] = %v, want %v", i, dst[i], w)
				}
			}
		})
	}
}

func TestCaptureSequencesPackets(t *testing.T) {
	t.Parallel()
	e := newTestEngine(2)
	in := interleaved(testFrameSize, 2, func(i, c int) float32 { return float32(c) * 0.5 })

	for range 3 {
		e.processInputStream(in, portaudio.StreamCallbackTimeInfo{}, 0)
	}
	for want := uint64(0); want < 3; want++ {
		p := <-e.packets
		if p.Seq != want {
			t.Errorf("seq = %d, want %d", p.Seq, want)
		}
		if p.SampleRate != testSampleRate || len(p.Samples) != testFrameSize {
			t.Errorf("packet rate %v len %d", p.SampleRate, len(p.Samples))
		}
		if p.Samples[0] != 0.25 {
			t.Errorf("downmixed sample = %v, want 0.25", p.Samples[0])
		}
	}
}

func TestCaptureOverflowSkipsSequence(t *testing.T) {
	t.Parallel()
	e := newTestEngine(1)
	in := make([]float32, testFrameSize)

	e.processInputStream(in, portaudio.StreamCallbackTimeInfo{}, 0)
	e.processInputStream(in, portaudio.StreamCallbackTimeInfo{}, portaudio.InputOverflow)

	if p := <-e.packets; p.Seq != 0 {
		t.Errorf("first seq = %d", p.Seq)
	}
	if p := <-e.packets; p.Seq != 2 {
		t.Errorf("seq after overflow = %d, want 2", p.Seq)
	}
	if st := e.Stats(); st.Overflows != 1 || st.Packets != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCaptureDropsWhenConsumerStalls(t *testing.T) {
	t.Parallel()
	e := newTestEngine(1)
	in := make([]float32, testFrameSize)

	total := cap(e.packets) + 3
	for range total {
		e.capture(in)
	}
	st := e.Stats()
	if st.Packets != uint64(cap(e.packets)) || st.Dropped != 3 {
		t.Fatalf("stats = %+v, want %d sent and 3 dropped", st, cap(e.packets))
	}

	// The next accepted packet follows the dropped ones, so the consumer sees a gap.
	for range cap(e.packets) {
		<-e.packets
	}
	e.capture(in)
	if p := <-e.packets; p.Seq != uint64(total) {
		t.Errorf("seq after drops = %d, want %d", p.Seq, total)
	}
}

// TestCaptureRingReuse checks that a packet still queued is never
// overwritten by the callback.
func TestCaptureRingReuse(t *testing.T) {
	t.Parallel()
	e := newTestEngine(1)
	var held analysis.Packet
	for i := range 4 * packetRing {
		v := float32(i)
		e.capture([]float32{v})
		p := <-e.packets
		if i > 0 && held.Samples[0] != float32(i-1) {
			t.Fatalf("held packet overwritten at %d", i)
		}
		held = p
	}
}

type recordingProcessor struct {
	packets []analysis.Packet
	failAt  int
}

func (r *recordingProcessor) Process(p analysis.Packet) error {
	r.packets = append(r.packets, p)
	if r.failAt > 0 && len(r.packets) == r.failAt {
		return errors.New("boom")
	}
	return nil
}

func TestRunStopsOnContext(t *testing.T) {
	t.Parallel()
	e := newTestEngine(1)
	proc := &recordingProcessor{}
	for range 3 {
		e.capture(make([]float32, testFrameSize))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, proc) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(e.packets) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(proc.packets) != 3 {
		t.Errorf("processed %d packets, want 3", len(proc.packets))
	}
}

func TestRunReturnsProcessorError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(1)
	for range 3 {
		e.capture(make([]float32, testFrameSize))
	}
	err := e.Run(context.Background(), &recordingProcessor{failAt: 2})
	if err == nil {
		t.Fatal("Run() = nil, want processor error")
	}
}

func TestCaptureNoAllocs(t *testing.T) {
	e := newTestEngine(2)
	in := interleaved(testFrameSize, 2, func(i, c int) float32 { return 0.1 })
	e.EnableGate()
	e.SetGateThreshold(0.01)

	allocs := testing.AllocsPerRun(100, func() {
		e.capture(in)
		<-e.packets
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in capture, got %.1f", allocs)
	}
}

func BenchmarkCapture(b *testing.B) {
	e := newTestEngine(2)
	in := interleaved(testFrameSize, 2, func(i, c int) float32 { return 0.1 })

	b.ReportAllocs()
	for b.Loop() {
		e.capture(in)
		<-e.packets
	}
}
