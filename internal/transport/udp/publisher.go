// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
	"github.com/voice-analyzer/voice-analyzer-ios/internal/transport"
)

// Sender is the datagram sink used by UDPPublisher.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// UDPPublisher keeps the latest pitch frame handed to Send and publishes it
// once per interval. Ticks without a new frame send nothing.
type UDPPublisher struct {
	sender   Sender
	interval time.Duration
	log      *log.Logger

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	latestMu sync.Mutex
	latest   transport.Frame
	fresh    bool

	sequenceNum  uint32
	formants     []transport.Formant
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher takes ownership of sender. An interval <= 0 defaults to
// 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender Sender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("udp: sender cannot be nil")
	}
	l := log.Named("udp")
	if interval <= 0 {
		interval = 16 * time.Millisecond
		l.Warnf("invalid interval, defaulting to %s", interval)
	}
	l.Infof("publisher interval %s", interval)

	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		log:          l,
		formants:     make([]transport.Formant, 0, len(transport.Frame{}.Formants)),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send records data as the frame for the next tick. Values other than
// transport.Frame are ignored.
func (p *UDPPublisher) Send(data any) error {
	f, ok := data.(transport.Frame)
	if !ok {
		return nil
	}
	p.latestMu.Lock()
	p.latest, p.fresh = f, true
	p.latestMu.Unlock()
	return nil
}

// Start launches the publishing goroutine. Calls while running are no-ops.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warnf("start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, doneChan := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the publishing goroutine and waits for it. Safe to call when
// not running.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debugf("publisher stopped")
	return nil
}

/*
UDP packet layout (BigEndian)

| Field         | Type      | Bytes | Description                      |
|---------------|-----------|-------|----------------------------------|
| Sequence      | uint32    | 4     | Packet counter, starts at 1      |
| Timestamp     | int64     | 8     | Send time, ns since epoch        |
| Frame time    | float64   | 8     | Seconds since the stream started |
| Pitch         | float32   | 4     | Hz                               |
| Confidence    | float32   | 4     | 0..1                             |
| Level         | float32   | 4     | dBFS                             |
| Formant count | uint16    | 2     | N                                |
| Formants      | N x 2 f32 | N * 8 | frequency, bandwidth pairs       |
*/

// Header is the fixed-size head of a pitch packet.
type Header struct {
	Sequence   uint32
	Timestamp  int64
	FrameTime  float64
	Pitch      float32
	Confidence float32
	LevelDB    float32
	Count      uint16
}

// Packet is a decoded pitch packet.
type Packet struct {
	Header
	Formants []transport.Formant
}

func (p *UDPPublisher) publish() {
	p.latestMu.Lock()
	f, fresh := p.latest, p.fresh
	p.fresh = false
	p.latestMu.Unlock()
	if !fresh {
		return
	}

	p.sequenceNum++
	b, err := p.pack(f, time.Now().UnixNano())
	if err != nil {
		p.log.Errorf("error packing frame: %v", err)
		return
	}
	if err := p.sender.Send(b); err == nil {
		p.log.Debugf("sent packet %d (%d bytes)", p.sequenceNum, len(b))
	}
}

func (p *UDPPublisher) pack(f transport.Frame, timestamp int64) ([]byte, error) {
	p.formants = p.formants[:0]
	for _, fm := range f.Formants {
		if fm.Frequency > 0 {
			p.formants = append(p.formants, fm)
		}
	}

	p.packetBuffer.Reset()
	h := Header{
		Sequence:   p.sequenceNum,
		Timestamp:  timestamp,
		FrameTime:  f.Time,
		Pitch:      f.Pitch,
		Confidence: f.Confidence,
		LevelDB:    f.LevelDB,
		Count:      uint16(len(p.formants)),
	}
	err := binary.Write(p.packetBuffer, binary.BigEndian, &h)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.formants)
	}
	return p.packetBuffer.Bytes(), err
}

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(b []byte) (Packet, error) {
	r := bytes.NewReader(b)
	var pk Packet
	if err := binary.Read(r, binary.BigEndian, &pk.Header); err != nil {
		return Packet{}, fmt.Errorf("udp: header: %w", err)
	}
	pk.Formants = make([]transport.Formant, pk.Count)
	if err := binary.Read(r, binary.BigEndian, pk.Formants); err != nil {
		return Packet{}, fmt.Errorf("udp: formants: %w", err)
	}
	if r.Len() != 0 {
		return Packet{}, fmt.Errorf("udp: %d trailing bytes", r.Len())
	}
	return pk, nil
}

// Close stops publishing and closes the sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

var (
	_ transport.Transport = (*UDPPublisher)(nil)
	_ io.Closer           = (*UDPPublisher)(nil)
)
