// SPDX-License-Identifier: MIT
package transport

import (
	"sync"

	"pitchtrack/internal/event"
	"pitchtrack/internal/metrics"
)

// ChannelSink hands events to an in-process consumer over a bounded
// channel. Events that do not fit are dropped.
type ChannelSink struct {
	ch    chan event.PitchDetected
	drops *dropCounter

	mu     sync.RWMutex
	closed bool
}

// NewChannelSink returns a sink buffering up to size events.
func NewChannelSink(size int, m *metrics.Pipeline) *ChannelSink {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &ChannelSink{
		ch:    make(chan event.PitchDetected, size),
		drops: newDropCounter("channel", m),
	}
}

// Name implements Transport.
func (c *ChannelSink) Name() string { return "channel" }

// Events returns the channel consumers read from. It is closed by Close.
func (c *ChannelSink) Events() <-chan event.PitchDetected { return c.ch }

// Publish implements event.Sink.
func (c *ChannelSink) Publish(e event.PitchDetected) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.ch <- e:
	default:
		c.drops.drop()
	}
	return nil
}

// Close closes the events channel.
func (c *ChannelSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

var _ Transport = (*ChannelSink)(nil)
