// SPDX-License-Identifier: MIT
package transport

import (
	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
)

// LoggingTransport writes every frame to the debug log.
type LoggingTransport struct {
	log *log.Logger
}

func NewLoggingTransport() *LoggingTransport {
	l := log.Named("transport")
	l.Infof("using logging transport")
	return &LoggingTransport{log: l}
}

func (lt *LoggingTransport) Send(data any) error {
	switch f := data.(type) {
	case Frame:
		lt.log.Debugf("#%d t=%.3fs %.1f Hz (%s %+.0f cents) conf=%.2f level=%.1f dBFS",
			f.Seq, f.Time, f.Pitch, f.Note, f.Cents, f.Confidence, f.LevelDB)
	default:
		lt.log.Debugf("%T: %+v", data, data)
	}
	return nil
}

func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("close called")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
