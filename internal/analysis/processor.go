// SPDX-License-Identifier: MIT
package analysis

// Packet is one mono capture buffer. Seq increases by one per buffer the
// capture side produced, so a jump means buffers were lost.
type Packet struct {
	Seq        uint64
	SampleRate float64
	Samples    []float32
}

// AudioProcessor consumes capture packets. Process is called from a single
// goroutine; Samples is only valid for the duration of the call.
type AudioProcessor interface {
	Process(p Packet) error
}

// ClosableProcessor combines AudioProcessor with a Close method for resource cleanup.
type ClosableProcessor interface {
	AudioProcessor
	Close() error
}
