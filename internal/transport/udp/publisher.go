// SPDX-License-Identifier: MIT

// Package udp streams pitch events as fixed-size binary datagrams.
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
	"pitchtrack/internal/metrics"
)

// DefaultQueueSize is the number of events buffered ahead of the socket.
const DefaultQueueSize = 256

// PacketSize is the length in bytes of every datagram.
const PacketSize = 26

// NoNote is the note index sent for windows without a pitch.
const NoNote int8 = -1

// Publisher is an event sink that packs each event into a datagram and
// sends it from its own goroutine.
type Publisher struct {
	sender  *Sender
	metrics *metrics.Pipeline
	log     *log.Logger

	queue    chan event.PitchDetected
	doneChan chan struct{}  // Signals the worker goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once.
	wg       sync.WaitGroup // Waits for the worker goroutine during Close.
	mu       sync.RWMutex   // Guards closed against Publish.
	closed   bool

	dropped      atomic.Uint64
	packetBuffer *bytes.Buffer // Reused for every packet.
}

// NewPublisher starts a publisher writing to sender. The publisher owns
// sender and closes it on Close.
func NewPublisher(sender *Sender, queueSize int, m *metrics.Pipeline) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	p := &Publisher{
		sender:       sender,
		metrics:      m,
		log:          log.Named("udp"),
		queue:        make(chan event.PitchDetected, queueSize),
		doneChan:     make(chan struct{}),
		packetBuffer: bytes.NewBuffer(make([]byte, 0, PacketSize)),
	}

	p.wg.Add(1)
	go p.run()
	return p, nil
}

// Name implements transport.Transport.
func (p *Publisher) Name() string { return "udp" }

// Publish queues e for sending, dropping it if the queue is full.
func (p *Publisher) Publish(e event.PitchDetected) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}

	select {
	case p.queue <- e:
	default:
		p.metrics.EventDropped("udp")
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.log.Warnf("queue full, %d events dropped so far", n)
		}
	}
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case e := <-p.queue:
			p.buildAndSendPacket(e)
		case <-p.doneChan:
			return
		}
	}
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Window sequence         |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Frequency         | float32        | 4            | Hz, 0 when no pitch     |
| Clarity           | float32        | 4            | 0..1                    |
| Cents             | float32        | 4            | Deviation from note     |
| Octave            | int8           | 1            | Scientific octave       |
| Note Index        | int8           | 1            | 0=A .. 11=G#, -1 none   |
+-----------------------------------------------------------------------------+

Visual Layout:

|<- 4 ->|<--- 8 --->|<- 4 ->|<- 4 ->|<- 4 ->|<1>|<1>|
+-------+-----------+-------+-------+-------+---+---+
|  Seq  | Timestamp | Freq  | Clar. | Cents |Oct|Idx|
+-------+-----------+-------+-------+-------+---+---+
*/

// packet is the wire layout above; binary.Write encodes it without padding.
type packet struct {
	Sequence  uint32
	Timestamp int64
	Frequency float32
	Clarity   float32
	Cents     float32
	Octave    int8
	NoteIndex int8
}

func newPacket(e event.PitchDetected) packet {
	pk := packet{
		Sequence:  uint32(e.Sequence),
		Timestamp: e.Timestamp.UnixNano(),
		NoteIndex: NoNote,
	}
	if e.HasPitch() {
		pk.Frequency = float32(e.FrequencyHz)
		pk.Clarity = float32(e.Clarity)
		pk.Cents = float32(e.Cents)
		pk.Octave = int8(e.Octave)
		pk.NoteIndex = int8(e.NoteIndex)
	}
	return pk
}

// Encode appends the datagram for e to buf.
func Encode(buf *bytes.Buffer, e event.PitchDetected) error {
	return binary.Write(buf, binary.BigEndian, newPacket(e))
}

func (p *Publisher) buildAndSendPacket(e event.PitchDetected) {
	p.packetBuffer.Reset()
	if err := Encode(p.packetBuffer, e); err != nil {
		p.log.Errorf("error packing event %d: %v", e.Sequence, err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		p.log.Debugf("sent packet %d (%d bytes)", e.Sequence, p.packetBuffer.Len())
	}
}

// Close stops the worker and closes the sender. Events still queued are
// discarded.
func (p *Publisher) Close() error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.doneChan)
		p.wg.Wait()
		err = p.sender.Close()
	})
	return err
}

var _ event.Sink = (*Publisher)(nil)
