// SPDX-License-Identifier: MIT
package transport

import (
	"errors"

	"github.com/voice-analyzer/voice-analyzer-ios/pkg/analyzer"
)

// Transport sends pitch frames or other events to a consumer.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}

// Formant is one published formant. Zero values mark an absent slot.
type Formant struct {
	Frequency float32 `json:"frequency" msgpack:"frequency"`
	Bandwidth float32 `json:"bandwidth" msgpack:"bandwidth"`
}

// Frame is one published pitch measurement.
type Frame struct {
	Seq        uint64                         `json:"seq" msgpack:"seq"`   // Capture packet the pitch came from.
	Time       float64                        `json:"time" msgpack:"time"` // Seconds since the stream started.
	Pitch      float32                        `json:"pitch" msgpack:"pitch"`
	Confidence float32                        `json:"confidence" msgpack:"confidence"`
	Note       string                         `json:"note" msgpack:"note"`
	Cents      float32                        `json:"cents" msgpack:"cents"`
	LevelDB    float32                        `json:"level_db" msgpack:"level_db"`
	Formants   [analyzer.FormantCount]Formant `json:"formants" msgpack:"formants"`
}

// Multi fans each Send out to every transport. Send and Close visit all
// transports and return the joined errors.
type Multi []Transport

func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
