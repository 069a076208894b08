package utils

import (
	"math"
	"sync"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/transport"
)

// MockTransport records everything sent to it.
type MockTransport struct {
	mu     sync.Mutex
	frames []transport.Frame
	other  []any
	closed bool
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := data.(transport.Frame); ok {
		m.frames = append(m.frames, f)
	} else {
		m.other = append(m.other, data)
	}
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Frames returns a copy of the frames received so far.
func (m *MockTransport) Frames() []transport.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Frame(nil), m.frames...)
}

// Other returns a copy of the non-frame values received so far.
func (m *MockTransport) Other() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.other...)
}

func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ transport.Transport = (*MockTransport)(nil)

// GenerateSineWave returns size samples of a sine at 0.9 of full scale.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * 0.9)
	}
	return buffer
}

// GenerateComplexWave returns a fundamental with its 2nd and 3rd harmonics,
// the rough spectral shape of a sung vowel.
func GenerateComplexWave(size int, sampleRate, fundamental float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*fundamental*tm)*0.5 +
			math.Sin(2*math.Pi*2*fundamental*tm)*0.3 +
			math.Sin(2*math.Pi*3*fundamental*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateGlide returns a sine whose frequency moves exponentially from
// start to end over size samples.
func GenerateGlide(size int, sampleRate, start, end float64) []float32 {
	buffer := make([]float32, size)
	var phase float64
	for i := range buffer {
		frac := float64(i) / float64(max(size-1, 1))
		f := start * math.Pow(end/start, frac)
		buffer[i] = float32(math.Sin(phase) * 0.9)
		phase += 2 * math.Pi * f / sampleRate
	}
	return buffer
}

// Chunk splits samples into consecutive slices of at most size samples.
// The slices share samples' backing array.
func Chunk(samples []float32, size int) [][]float32 {
	if size <= 0 {
		return nil
	}
	chunks := make([][]float32, 0, (len(samples)+size-1)/size)
	for len(samples) > 0 {
		n := min(size, len(samples))
		chunks = append(chunks, samples[:n:n])
		samples = samples[n:]
	}
	return chunks
}
