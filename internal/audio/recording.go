// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrAlreadyRecording is returned by StartRecording while a recording is open.
var ErrAlreadyRecording = errors.New("audio: already recording")

// StartRecording writes the mono stream handed to Run into a WAV file at
// the configured bit depth.
func (e *Engine) StartRecording(filename string) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.isRecording.Load() {
		return ErrAlreadyRecording
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.outputFile = file

	depth := e.config.Recording.BitDepth
	e.wavEncoder = wav.NewEncoder(file, int(e.sampleRate), depth, 1, 1)
	e.sampleBuf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  int(e.sampleRate),
		},
		Data:           make([]int, e.config.Audio.FramesPerBuffer),
		SourceBitDepth: depth,
	}

	e.isRecording.Store(true)
	e.log.Infof("recording to %s (%d-bit)", filename, depth)
	return nil
}

// record appends samples to the open recording, if any.
func (e *Engine) record(samples []float32) {
	if !e.isRecording.Load() {
		return
	}
	e.recMu.Lock()
	defer e.recMu.Unlock()
	if e.wavEncoder == nil {
		return
	}

	if cap(e.sampleBuf.Data) < len(samples) {
		e.sampleBuf.Data = make([]int, len(samples))
	}
	e.sampleBuf.Data = e.sampleBuf.Data[:len(samples)]
	quantize(e.sampleBuf.Data, samples, e.sampleBuf.SourceBitDepth)

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		e.log.Errorf("error writing to WAV file: %v", err)
	}
}

// quantize converts full-scale floats to signed integers of the given depth,
// clipping out-of-range values.
func quantize(dst []int, src []float32, bitDepth int) {
	scale := float64(int64(1)<<(bitDepth-1) - 1)
	for i, s := range src {
		v := math.Max(-1, math.Min(1, float64(s)))
		if math.IsNaN(v) {
			v = 0
		}
		dst[i] = int(math.Round(v * scale))
	}
}

func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if !e.isRecording.Load() {
		return nil
	}
	e.isRecording.Store(false)

	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			return fmt.Errorf("close WAV encoder: %w", err)
		}
		e.wavEncoder = nil
	}
	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			return err
		}
		e.outputFile = nil
	}
	return nil
}

func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}
	return e.StopInputStream()
}
