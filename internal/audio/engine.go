// SPDX-License-Identifier: MIT
/*
Package audio captures live input for the voice analyzer.

The PortAudio callback downmixes each buffer to mono into a ring of
pre-allocated packets and hands them to Run over a bounded channel. Run
executes on an ordinary goroutine, records the stream if requested and feeds
an analysis.AudioProcessor.

Every callback consumes a sequence number. A full channel drops the packet
and an input overflow skips a number, so the processor sees a gap either
way and can reset its state.

Thread Safety:
  - The callback touches only the ring, the sequence counter and atomics
  - Gate settings and counters are atomic
  - Recording state is guarded by a mutex shared with Run
*/
package audio

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/analysis"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/config"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
)

// packetRing is the number of capture buffers in flight.
const packetRing = 16

// Stats counts capture events.
type Stats struct {
	Packets   uint64 // Packets handed to Run.
	Dropped   uint64 // Packets dropped because Run fell behind.
	Overflows uint64 // Input overflows reported by PortAudio.
	Gated     uint64 // Packets silenced by the gate.
}

type Engine struct {
	config *config.Config
	log    *log.Logger

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	channels     int
	sampleRate   float64

	// Owned by the callback.
	ring [][]float32
	next int
	seq  uint64

	packets   chan analysis.Packet
	sent      atomic.Uint64
	dropped   atomic.Uint64
	overflows atomic.Uint64
	gated     atomic.Uint64

	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint32 // float32 bits of the linear peak threshold

	recMu       sync.Mutex
	isRecording atomic.Bool
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *goaudio.IntBuffer
}

// NewEngine resolves the configured input device and sizes the capture
// buffers. Capture begins with StartInputStream.
func NewEngine(cfg *config.Config) (*Engine, error) {
	device, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}
	e := newEngine(cfg)
	e.useDevice(device)
	return e, nil
}

func newEngine(cfg *config.Config) *Engine {
	e := &Engine{
		config:     cfg,
		log:        log.Named("audio"),
		channels:   cfg.Audio.InputChannels,
		sampleRate: cfg.Audio.SampleRate,
		ring:       make([][]float32, packetRing),
		packets:    make(chan analysis.Packet, packetRing-2),
	}
	for i := range e.ring {
		e.ring[i] = make([]float32, cfg.Audio.FramesPerBuffer)
	}
	e.SetGateThreshold(cfg.Audio.GateThreshold)
	if cfg.Audio.GateThreshold > 0 {
		e.EnableGate()
	}
	return e
}

func (e *Engine) useDevice(d *portaudio.DeviceInfo) {
	e.inputDevice = d
	e.channels = max(1, min(e.config.Audio.InputChannels, d.MaxInputChannels))
	e.sampleRate = e.config.Audio.SampleRate
	if e.sampleRate == 0 {
		e.sampleRate = d.DefaultSampleRate
	}
	if e.config.Audio.LowLatency {
		e.inputLatency = d.DefaultLowInputLatency
	} else {
		e.inputLatency = d.DefaultHighInputLatency
	}
}

// SampleRate returns the capture rate. After StartInputStream it is the
// rate the device actually runs at.
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// Channels returns the number of captured channels before downmix.
func (e *Engine) Channels() int { return e.channels }

// DeviceName returns the name of the input device.
func (e *Engine) DeviceName() string {
	if e.inputDevice == nil {
		return ""
	}
	return e.inputDevice.Name
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.sampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		e.sampleRate = info.SampleRate
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("start input stream: %w", err)
	}
	e.log.Infof("capturing %s: %d ch @ %.0f Hz, %d frames/buffer",
		e.inputDevice.Name, e.channels, e.sampleRate, e.config.Audio.FramesPerBuffer)
	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream == nil {
		return nil
	}
	if err := e.inputStream.Stop(); err != nil {
		return err
	}
	if err := e.inputStream.Close(); err != nil {
		return err
	}
	e.inputStream = nil
	return nil
}

// SwitchDevice restarts capture on another device. The sequence counter
// skips a number so consumers treat the switch as a gap.
func (e *Engine) SwitchDevice(deviceID int) error {
	device, err := InputDevice(deviceID)
	if err != nil {
		return err
	}
	if err := e.StopInputStream(); err != nil {
		return err
	}
	e.useDevice(device)
	e.seq++
	return e.StartInputStream()
}

// processInputStream is the PortAudio callback. It must not block or
// allocate.
func (e *Engine) processInputStream(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if flags&portaudio.InputOverflow != 0 {
		e.overflows.Add(1)
		e.seq++
	}
	e.capture(in)
}

func (e *Engine) capture(in []float32) {
	buf := e.ring[e.next]
	n := downmix(buf, in, e.channels)
	buf = buf[:n]

	if !e.gateOpen(buf) {
		clear(buf)
		e.gated.Add(1)
	}

	seq := e.seq
	e.seq++
	select {
	case e.packets <- analysis.Packet{Seq: seq, SampleRate: e.sampleRate, Samples: buf}:
		e.next = (e.next + 1) % len(e.ring)
		e.sent.Add(1)
	default:
		e.dropped.Add(1)
	}
}

// downmix averages interleaved frames of in into dst and returns the number
// of frames written.
func downmix(dst, in []float32, channels int) int {
	if channels <= 1 {
		return copy(dst, in)
	}
	n := min(len(dst), len(in)/channels)
	scale := 1 / float32(channels)
	for i := range n {
		var sum float32
		for _, s := range in[i*channels : (i+1)*channels] {
			sum += s
		}
		dst[i] = sum * scale
	}
	return n
}

// Run feeds captured packets to proc until ctx is done or proc fails.
// Only one Run may be active at a time.
func (e *Engine) Run(ctx context.Context, proc analysis.AudioProcessor) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-e.packets:
			e.record(p.Samples)
			if err := proc.Process(p); err != nil {
				return fmt.Errorf("process packet #%d: %w", p.Seq, err)
			}
		}
	}
}

// Stats returns a snapshot of the capture counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Packets:   e.sent.Load(),
		Dropped:   e.dropped.Load(),
		Overflows: e.overflows.Load(),
		Gated:     e.gated.Load(),
	}
}
