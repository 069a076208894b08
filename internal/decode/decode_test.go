// SPDX-License-Identifier: MIT
package decode

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV encodes data (interleaved) and returns the file path.
func writeWAV(t *testing.T, name string, rate, depth, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, depth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{"riff not wave", []byte("RIFF\x24\x00\x00\x00AVI LIST"), ""},
		{"ogg", []byte("OggS\x00\x02"), FormatVorbis},
		{"id3", []byte("ID3\x04\x00"), FormatMP3},
		{"mpeg sync", []byte{0xFF, 0xFB, 0x90, 0x64}, FormatMP3},
		{"text", []byte("hello world!"), ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		if got := Detect(tt.head); got != tt.want {
			t.Errorf("%s: Detect() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFileWAVStereo16(t *testing.T) {
	t.Parallel()
	data := []int{16384, 0, -32768, -32768, 8192, 8192}
	path := writeWAV(t, "stereo.wav", 22050, 16, 2, data)

	a, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if a.SampleRate != 22050 || a.Channels != 2 {
		t.Errorf("format = %v Hz, %d ch", a.SampleRate, a.Channels)
	}
	want := []float32{0.25, -1, 0.25}
	if len(a.Samples) != len(want) {
		t.Fatalf("samples = %v, want %v", a.Samples, want)
	}
	for i := range want {
		if math.Abs(float64(a.Samples[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, a.Samples[i], want[i])
		}
	}
	if d := a.Duration(); math.Abs(d-3.0/22050) > 1e-12 {
		t.Errorf("Duration() = %v", d)
	}
}

func TestFileWAVMono24(t *testing.T) {
	t.Parallel()
	const full = 1 << 23
	path := writeWAV(t, "mono.wav", 48000, 24, 1, []int{full / 2, -full / 4, 0})

	a, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	want := []float32{0.5, -0.25, 0}
	for i := range want {
		if a.Samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, a.Samples[i], want[i])
		}
	}
}

func TestFileExtensionFallback(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "noise.flac")
	if err := os.WriteFile(path, []byte("not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := File(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFileMissing(t *testing.T) {
	t.Parallel()
	if _, err := File(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()
	garbage := bytes.Repeat([]byte{0x42}, 512)
	for _, format := range []string{FormatWAV, FormatMP3, FormatVorbis} {
		if _, err := Decode(bytes.NewReader(garbage), format); err == nil {
			t.Errorf("%s: decoding garbage succeeded", format)
		}
	}
}

func TestMonoFromInt16LE(t *testing.T) {
	t.Parallel()
	// Two stereo frames, then a dangling byte.
	pcm := []byte{0x00, 0x40, 0x00, 0x40, 0x00, 0x80, 0x00, 0x00, 0x01}
	got := monoFromInt16LE(pcm, 2)
	want := []float32{0.5, -0.5}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("monoFromInt16LE = %v, want %v", got, want)
	}
}

func TestAppendMono(t *testing.T) {
	t.Parallel()
	got := appendMono([]float32{9}, []float32{1, 0, 0.5, 0.5, 7}, 2)
	want := []float32{9, 0.5, 0.5}
	if len(got) != len(want) {
		t.Fatalf("appendMono = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("appendMono[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
