// SPDX-License-Identifier: MIT

// Package decode reads audio files into mono float32 samples for offline
// analysis. WAV, MP3 and Ogg Vorbis are supported.
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Formats returned by Detect.
const (
	FormatWAV    = "wav"
	FormatMP3    = "mp3"
	FormatVorbis = "ogg"
)

var (
	ErrUnsupportedFormat = errors.New("decode: unsupported format")
	ErrNoAudio           = errors.New("decode: no audio data")
)

// Audio is a decoded, downmixed file.
type Audio struct {
	SampleRate float64
	Channels   int // Channels in the source before downmix.
	Samples    []float32
}

// Duration returns the length in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / a.SampleRate
}

// File decodes the file at path. The format is sniffed from the content,
// falling back to the extension.
func File(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	format := Detect(head[:n])
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	a, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return a, nil
}

// Decode reads r as the given format.
func Decode(r io.ReadSeeker, format string) (*Audio, error) {
	switch format {
	case FormatWAV, "wave":
		return WAV(r)
	case FormatMP3:
		return MP3(r)
	case FormatVorbis, "oga", "vorbis":
		return Vorbis(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Detect identifies a format from the first bytes of a file, or returns "".
func Detect(head []byte) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatVorbis
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return ""
}

// WAV decodes integer PCM WAV of 8, 16, 24 or 32 bits.
func WAV(r io.ReadSeeker) (*Audio, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a PCM wav file", ErrUnsupportedFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	channels := int(d.NumChans)
	if channels < 1 || len(buf.Data) == 0 {
		return nil, ErrNoAudio
	}

	depth := int(d.BitDepth)
	scale := float32(int64(1) << (depth - 1))
	offset := 0
	if depth == 8 {
		offset = 128 // 8-bit wav is unsigned
	}
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for _, v := range buf.Data[i*channels : (i+1)*channels] {
			sum += float32(v-offset) / scale
		}
		samples[i] = sum / float32(channels)
	}
	return &Audio{SampleRate: float64(d.SampleRate), Channels: channels, Samples: samples}, nil
}

// MP3 decodes an MPEG-1/2 layer III stream. The decoder always produces
// 16-bit stereo.
func MP3(r io.Reader) (*Audio, error) {
	d, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	samples := monoFromInt16LE(pcm, 2)
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}
	return &Audio{SampleRate: float64(d.SampleRate()), Channels: 2, Samples: samples}, nil
}

// monoFromInt16LE averages interleaved little-endian int16 frames.
// Trailing partial frames are dropped.
func monoFromInt16LE(pcm []byte, channels int) []float32 {
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			off := i*frameBytes + 2*c
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[off:]))) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Vorbis decodes an Ogg Vorbis stream.
func Vorbis(r io.Reader) (*Audio, error) {
	d, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("ogg: %w", err)
	}
	channels := d.Channels()
	if channels < 1 {
		return nil, ErrNoAudio
	}

	var samples []float32
	if n := d.Length(); n > 0 {
		samples = make([]float32, 0, n)
	}
	buf := make([]float32, 4096*channels)
	for {
		n, err := d.Read(buf)
		samples = appendMono(samples, buf[:n], channels)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ogg: %w", err)
		}
	}
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}
	return &Audio{SampleRate: float64(d.SampleRate()), Channels: channels, Samples: samples}, nil
}

// appendMono averages interleaved frames of in onto dst.
func appendMono(dst, in []float32, channels int) []float32 {
	for i := 0; i+channels <= len(in); i += channels {
		var sum float32
		for _, v := range in[i : i+channels] {
			sum += v
		}
		dst = append(dst, sum/float32(channels))
	}
	return dst
}
